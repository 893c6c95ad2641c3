// Package app wires AgoraNet's components (config, store, bus, auth,
// runtime consumer, federation sync) into a running process and owns its
// startup/shutdown lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/intercooperative/agoranet/internal/retention"
	"github.com/intercooperative/agoranet/pkg/agoraerr"
	"github.com/intercooperative/agoranet/pkg/auth"
	"github.com/intercooperative/agoranet/pkg/config"
	"github.com/intercooperative/agoranet/pkg/federation"
	"github.com/intercooperative/agoranet/pkg/logger"
	"github.com/intercooperative/agoranet/pkg/runtime"
	"github.com/intercooperative/agoranet/pkg/state"
	"github.com/intercooperative/agoranet/pkg/store"
	"github.com/intercooperative/agoranet/pkg/validation"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.Effective
	version   string
	commit    string
	buildDate string

	verifier      *auth.Verifier
	fedNode       *federation.Node
	srv           *http.Server
	retentionStop context.CancelFunc
}

// New initializes resources that do not require a running context: state
// directories, the pebble store, validation rules, and the token verifier.
// It does not start the runtime consumer, federation node, or HTTP server;
// call Run to start those and block until shutdown.
func New(eff config.Effective, version, commit, buildDate string) (*App, error) {
	logger.InitWithConfig(eff.Config.Logging.Level, eff.Config.Logging.Format)

	_ = godotenv.Load(".env")

	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	if err := state.EnsureStateDirs(eff.DBPath); err != nil {
		return nil, fmt.Errorf("failed to prepare state directories: %w", err)
	}
	if err := logger.AttachAuditFileSink(state.PathsVar.Audit); err != nil {
		logger.Warn("audit_sink_unavailable", "error", err)
	}

	config.SetRuntime(config.Runtime{
		RateRPS:   eff.Config.Security.RateLimit.RPS,
		RateBurst: eff.Config.Security.RateLimit.Burst,
	})

	initValidation(eff)

	if err := store.Open(eff.DBPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}

	a := &App{eff: eff, version: version, commit: commit, buildDate: buildDate, verifier: auth.NewVerifier()}
	return a, nil
}

// Run starts the runtime consumer (if enabled), federation sync (if
// enabled), and the HTTP server, and blocks until ctx is canceled or a
// fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.printBanner()

	if a.eff.Config.Runtime.Enabled {
		go a.runRuntimeConsumer(ctx)
	}
	if a.eff.Config.Federation.Enabled {
		if err := a.startFederation(ctx); err != nil {
			logger.Error("federation_start_failed", "error", err)
		}
	}

	if stop, err := retention.Start(ctx, a.eff); err != nil {
		logger.Error("retention_start_failed", "error", err)
	} else {
		a.retentionStop = stop
	}

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Close releases resources opened by New/Run (store, federation host). The
// HTTP server itself is shut down by the caller via Shutdown.
func (a *App) Close() error {
	if a.retentionStop != nil {
		a.retentionStop()
	}
	if a.fedNode != nil {
		_ = a.fedNode.Close()
	}
	return store.Close()
}

// Shutdown gracefully stops the HTTP server with the given timeout.
func (a *App) Shutdown(timeout time.Duration) error {
	if a.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return a.srv.Shutdown(ctx)
}

func (a *App) runRuntimeConsumer(ctx context.Context) {
	c := runtime.New(runtime.Config{
		APIURL:       a.eff.Config.Runtime.APIURL,
		PollInterval: a.eff.Config.Runtime.PollInterval.Duration(),
		DeferralTTL:  a.eff.Config.Runtime.DeferralTTL.Duration(),
	})
	logger.Info("runtime_consumer_starting", "api_url", a.eff.Config.Runtime.APIURL)
	if err := c.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("runtime_consumer_stopped", "error", err)
	}
}

func (a *App) startFederation(ctx context.Context) error {
	node, err := federation.NewNode(federation.Config{
		NodeID:         a.eff.Config.Federation.NodeID,
		ListenAddr:     a.eff.Config.Federation.ListenAddr,
		BootstrapPeers: a.eff.Config.Federation.BootstrapPeers,
		MaxConnections: a.eff.Config.Federation.MaxConnections,
	})
	if err != nil {
		return agoraerr.Wrap(agoraerr.KindFatal, err, "starting federation node")
	}
	a.fedNode = node
	go func() {
		if err := node.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("federation_node_stopped", "error", err)
		}
	}()
	return nil
}

// initValidation builds validation rules from config and sets them globally.
func initValidation(eff config.Effective) {
	vr := validation.Rules{Types: map[string]string{}, MaxLen: map[string]int{}, Enums: map[string][]string{}}
	vr.Required = append(vr.Required, eff.Config.Validation.Required...)
	for _, t := range eff.Config.Validation.Types {
		vr.Types[t.Path] = t.Type
	}
	for _, ml := range eff.Config.Validation.MaxLen {
		vr.MaxLen[ml.Path] = ml.Max
	}
	for _, e := range eff.Config.Validation.Enums {
		vr.Enums[e.Path] = append([]string{}, e.Values...)
	}
	for _, wt := range eff.Config.Validation.WhenThen {
		vr.WhenThen = append(vr.WhenThen, validation.WhenThenRule{WhenPath: wt.When.Path, Equals: wt.When.Equals, ThenReq: append([]string{}, wt.Then.Required...)})
	}
	validation.SetRules(vr)
}
