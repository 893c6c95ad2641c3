// Command agoranet-health is a lean, fasthttp-backed health probe for
// deployments that front the main server with a separate low-overhead
// liveness/readiness endpoint (e.g. a sidecar or load-balancer health check
// that should not compete with request-path goroutines for the pebble lock).
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasthttp"

	"github.com/intercooperative/agoranet/pkg/httpx"
	"github.com/intercooperative/agoranet/pkg/store"
)

func main() {
	addr := flag.String("addr", ":8081", "listen address for the health probe")
	dbPath := flag.String("db", "./.agoranet", "pebble data directory to report readiness for")
	ver := flag.String("version", "dev", "version string to return")
	flag.Parse()

	if err := store.Open(*dbPath); err != nil {
		fmt.Printf("health probe: failed to open pebble at %s: %v\n", *dbPath, err)
		return
	}
	defer func() { _ = store.Close() }()

	handler := httpx.FastHTTPAdapter(func(w httpx.ResponseWriter, r *httpx.Request) {
		buf := bytebufferpool.Get()
		defer bytebufferpool.Put(buf)

		w.Header().Set("Content-Type", "application/json")
		switch r.Path {
		case "/healthz", "/health":
			fmt.Fprintf(buf, `{"status":"ok","version":%q}`, *ver)
			w.WriteHeader(fasthttp.StatusOK)
		case "/readyz":
			if store.Ready() {
				fmt.Fprintf(buf, `{"status":"ready"}`)
				w.WriteHeader(fasthttp.StatusOK)
			} else {
				fmt.Fprintf(buf, `{"status":"not_ready"}`)
				w.WriteHeader(fasthttp.StatusServiceUnavailable)
			}
		default:
			fmt.Fprintf(buf, `{"error":"not found"}`)
			w.WriteHeader(fasthttp.StatusNotFound)
		}
		_, _ = w.Write(buf.Bytes())
	})

	fmt.Printf("agoranet health probe listening on %s (db=%s)\n", *addr, *dbPath)
	srv := &fasthttp.Server{
		Handler:            handler,
		Name:               "agoranet-health",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		MaxRequestBodySize: 1 << 20,
	}
	if err := srv.ListenAndServe(*addr); err != nil {
		fmt.Printf("health probe exit: %v\n", err)
	}
}
