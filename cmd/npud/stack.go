package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"npud/internal/config"
	"npud/internal/manager"
	"npud/internal/npu"
	"npud/internal/registry"
	"npud/internal/session"
)

// simReply is what every model answers with under the sim driver.
const simReply = "This reply comes from the simulated NPU driver."

// buildCatalog loads the catalog file, or scans the models directory when
// no catalog is configured.
func buildCatalog(cfg config.Config) (*registry.Catalog, error) {
	if cfg.Catalog != "" {
		cat, err := registry.LoadCatalog(cfg.Catalog)
		if err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
		return cat, nil
	}
	models, err := registry.LoadDir(cfg.ModelsDir)
	if err != nil {
		return nil, fmt.Errorf("scan models dir: %w", err)
	}
	return registry.FromModels(cfg.ModelsDir, models), nil
}

// buildFactory selects the accelerator backend.
func buildFactory(cfg config.Config, log zerolog.Logger) (session.Factory, error) {
	switch cfg.Driver {
	case "sim":
		return session.SimFactory(simReply, log), nil
	default:
		drv, err := npu.OpenXRT(cfg.DeviceID)
		if err != nil {
			return nil, err
		}
		return session.NPUFactory(drv, log), nil
	}
}

// buildManager wires catalog, session and manager from cfg. A factory error
// leaves the session without one, so requests report the missing runtime
// instead of the process refusing to start.
func buildManager(cfg config.Config, log zerolog.Logger, progress func(int64) io.Writer) (*manager.Manager, error) {
	cat, err := buildCatalog(cfg)
	if err != nil {
		return nil, err
	}
	factory, err := buildFactory(cfg, log)
	if err != nil {
		log.Warn().Err(err).Str("driver", cfg.Driver).Msg("npud event=driver_unavailable")
	}
	opts := []session.Option{
		session.WithLogger(log.With().Str("component", "session").Logger()),
		session.WithSystemInfo(cfg.SystemPrompt),
	}
	if cfg.Sampler != nil {
		opts = append(opts, session.WithSampler(*cfg.Sampler))
	}
	if cfg.MaxContext > 0 {
		opts = append(opts, session.WithMaxLength(cfg.MaxContext))
	}
	if progress != nil {
		opts = append(opts, session.WithLoadProgress(progress))
	}
	ml := log.With().Str("component", "manager").Logger()
	return manager.NewWithConfig(manager.ManagerConfig{
		Catalog:      cat,
		Session:      session.New(factory, opts...),
		DefaultModel: cfg.DefaultModel,
		MaxContext:   cfg.MaxContext,
		Logger:       &ml,
		Version:      version,
	}), nil
}
