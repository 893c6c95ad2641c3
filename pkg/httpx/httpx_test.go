package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
)

// echoHandler is transport-agnostic: it reads Method/Path off the unified
// Request and must behave identically under both adapters.
func echoHandler(w ResponseWriter, r *Request) {
	w.Header().Set("X-Method", r.Method)
	w.WriteHeader(http.StatusTeapot)
	_, _ = w.Write([]byte(r.Path))
}

func TestNetHTTPAdapter(t *testing.T) {
	srv := httptest.NewServer(NetHTTPAdapter(echoHandler))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/threads")
	assert.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "GET", resp.Header.Get("X-Method"))
}

func TestFastHTTPAdapter(t *testing.T) {
	handler := FastHTTPAdapter(echoHandler)

	var ctx fasthttp.RequestCtx
	ctx.Request.SetRequestURI("/threads")
	ctx.Request.Header.SetMethod("GET")

	handler(&ctx)

	assert.Equal(t, fasthttp.StatusTeapot, ctx.Response.StatusCode())
	assert.Equal(t, "GET", string(ctx.Response.Header.Peek("X-Method")))
	assert.Equal(t, "/threads", string(ctx.Response.Body()))
}
