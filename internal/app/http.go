package app

import (
	"context"
	"net/http"

	"github.com/intercooperative/agoranet/pkg/api"
	"github.com/intercooperative/agoranet/pkg/auth"
	"github.com/intercooperative/agoranet/pkg/banner"
	"github.com/intercooperative/agoranet/pkg/logger"
	"github.com/intercooperative/agoranet/pkg/store"
	"github.com/intercooperative/agoranet/pkg/telemetry"
)

func (a *App) printBanner() {
	banner.Print(a.eff, a.version, a.commit, a.buildDate)
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if !store.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not_ready"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

func (a *App) healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// setupHandlers mounts the AgoraNet route table plus the ambient probe and
// metrics endpoints.
func (a *App) setupHandlers() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", api.NewRouter())
	mux.HandleFunc("/healthz", a.healthzHandler)
	mux.HandleFunc("/readyz", a.readyzHandler)
	mux.Handle("/metrics", telemetry.Handler())
	return mux
}

// startHTTP wraps the route table in the security gateway (CORS, IP
// whitelist, bearer auth, rate limiting) and starts the HTTP server,
// returning a channel that receives the server's terminal error.
func (a *App) startHTTP(ctx context.Context) <-chan error {
	secCfg := auth.SecConfig{
		AllowedOrigins: a.eff.Config.Security.CORS.AllowedOrigins,
		RPS:            a.eff.Config.Security.RateLimit.RPS,
		Burst:          a.eff.Config.Security.RateLimit.Burst,
		IPWhitelist:    a.eff.Config.Security.IPWhitelist,
	}

	handler := auth.Middleware(secCfg, a.verifier)(a.setupHandlers())

	a.srv = &http.Server{
		Addr:    a.eff.Addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_server_starting", "addr", a.eff.Addr)
		var cert, key string
		if a.eff.Config != nil {
			cert, key = a.eff.Config.Server.TLS.CertFile, a.eff.Config.Server.TLS.KeyFile
		}
		var err error
		if cert != "" && key != "" {
			err = a.srv.ListenAndServeTLS(cert, key)
		} else {
			err = a.srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	return errCh
}
