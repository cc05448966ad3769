package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"npud/internal/config"
	"npud/internal/httpapi"
	"npud/internal/manager"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

const shutdownTimeout = 10 * time.Second

type serveOpts struct {
	addr         string
	modelsDir    string
	catalog      string
	defaultModel string
	driver       string
	maxContext   int
	preload      bool
	requestLog   string
}

func newServeCmd(g *globalOpts) *cobra.Command {
	o := &serveOpts{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			o.apply(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := g.logger(os.Stderr)
			if err != nil {
				return err
			}
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, ln, cfg, o.requestLog, log)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.addr, "addr", "", "HTTP listen address (default "+config.DefaultAddr+")")
	f.StringVar(&o.modelsDir, "models-dir", "", "Directory scanned for model folders")
	f.StringVar(&o.catalog, "catalog", "", "Model catalog file (.json, .yaml or .toml)")
	f.StringVar(&o.defaultModel, "default-model", "", "Model tag used when a request names none")
	f.StringVar(&o.driver, "driver", "", "Accelerator backend: xrt|sim")
	f.IntVar(&o.maxContext, "max-context", 0, "Context length override for every model (0 keeps the model's own)")
	f.BoolVar(&o.preload, "preload", false, "Load the default model before accepting requests")
	f.StringVar(&o.requestLog, "request-log", "", "Per-request log level: off|error|info|debug")
	return cmd
}

// apply copies the flags that were set on the command line over cfg.
func (o *serveOpts) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("addr") {
		cfg.Addr = o.addr
	}
	if f.Changed("models-dir") {
		cfg.ModelsDir = o.modelsDir
	}
	if f.Changed("catalog") {
		cfg.Catalog = o.catalog
	}
	if f.Changed("default-model") {
		cfg.DefaultModel = o.defaultModel
	}
	if f.Changed("driver") {
		cfg.Driver = o.driver
	}
	if f.Changed("max-context") {
		cfg.MaxContext = o.maxContext
	}
	if f.Changed("preload") {
		cfg.Preload = o.preload
	}
	if v := os.Getenv("NPUD_CORS_ORIGINS"); v != "" {
		cfg.CORS.Enabled = true
		cfg.CORS.Origins = splitCSV(v)
	}
}

// serve runs the HTTP API on ln until ctx is done, then shuts down and
// unloads the model.
func serve(ctx context.Context, ln net.Listener, cfg config.Config, requestLog string, log zerolog.Logger) error {
	mgr, err := buildManager(cfg, log, nil)
	if err != nil {
		_ = ln.Close()
		return err
	}
	configureHTTP(ctx, cfg, requestLog, log)

	srv := &http.Server{
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", ln.Addr().String()).Str("driver", cfg.Driver).Int("models", len(mgr.ListModels())).
			Msg("npud event=listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Preload {
		g.Go(func() error {
			preload(gctx, mgr, log)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info().Msg("npud event=shutdown")
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("npud event=shutdown_error")
		}
		if err := mgr.Unload(); err != nil && !manager.IsModelNotFound(err) {
			log.Warn().Err(err).Msg("npud event=unload_error")
		}
		return nil
	})
	return g.Wait()
}

func configureHTTP(ctx context.Context, cfg config.Config, requestLog string, log zerolog.Logger) {
	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetBaseContext(ctx)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetStreamWriteTimeout(cfg.StreamWriteTimeout.Std())
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.Origins, cfg.CORS.Methods, cfg.CORS.Headers)
	if requestLog != "" {
		httpapi.SetRequestLogLevel(requestLog)
	}
}

func preload(ctx context.Context, mgr *manager.Manager, log zerolog.Logger) {
	release, err := mgr.Acquire(mgr.DefaultModel())
	if err != nil {
		return
	}
	defer release()
	mdl, dur, err := mgr.EnsureModel(ctx, "")
	if err != nil {
		log.Error().Err(err).Str("model", mgr.DefaultModel()).Msg("npud event=preload_failed")
		return
	}
	log.Info().Str("model", mdl.ID).Dur("dur", dur).Msg("npud event=preloaded")
}
