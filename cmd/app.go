package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/lab-access/internal/access"
	"github.com/kozaktomas/lab-access/internal/config"
	"github.com/kozaktomas/lab-access/internal/database"
	_ "github.com/kozaktomas/lab-access/internal/database/postgres" // register postgres backend
	_ "github.com/kozaktomas/lab-access/internal/database/sqlite"   // register sqlite backend
	"github.com/kozaktomas/lab-access/internal/embedding"
	"github.com/kozaktomas/lab-access/internal/inference"
	"github.com/kozaktomas/lab-access/internal/logger"
	"github.com/kozaktomas/lab-access/internal/matcher"
	"github.com/kozaktomas/lab-access/internal/vision"
	"github.com/kozaktomas/lab-access/internal/web/handlers"
	"go.uber.org/zap"
)

// faceBackend detects and embeds faces.
type faceBackend interface {
	vision.Localizer
	embedding.Model
	Close() error
}

// app holds the process-wide collaborators shared by every command.
type app struct {
	cfg     *config.Config
	store   database.Store
	backend faceBackend
	index   *database.TemplateIndex
	svc     *access.Service
}

func openBackend(cfg *config.Config) (faceBackend, error) {
	switch cfg.Inference.Backend {
	case "dlib":
		return inference.NewDlibRecognizer(cfg.Inference.DlibModelsDir)
	default:
		return inference.NewClient(cfg.Inference.URL, cfg.Model, cfg.Inference.MinDetectionScore), nil
	}
}

// openApp connects to storage, loads the model backend and builds the access service.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := database.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Database.Driver, err)
	}

	backend, err := openBackend(cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load %s inference backend: %w", cfg.Inference.Backend, err)
	}

	var opts []embedding.Option
	if cache, ok := database.EmbeddingCache(store); ok {
		opts = append(opts, embedding.WithStore(cache))
	}
	extractor, err := embedding.NewExtractor(backend, cfg.Model, opts...)
	if err != nil {
		backend.Close()
		store.Close()
		return nil, err
	}

	a := &app{cfg: cfg, store: store, backend: backend}

	var m matcher.Matcher
	if cfg.Match.Index == "hnsw" {
		a.index = database.NewTemplateIndex(extractor.Model())
		if cfg.Match.IndexPath != "" {
			if err := a.index.Load(cfg.Match.IndexPath); err != nil {
				logger.Warning("discarding saved template index", zap.String("path", cfg.Match.IndexPath), zap.Error(err))
				a.index = database.NewTemplateIndex(extractor.Model())
				a.index.SetPath(cfg.Match.IndexPath)
			}
		}
		logger.Info("template index ready", zap.Int("templates", a.index.Count()))
		m = matcher.NewIndexed(a.index, extractor, cfg.Match.Threshold)
	} else {
		m = matcher.NewLinear(extractor, cfg.Match.Threshold)
	}

	a.svc, err = access.NewService(access.Options{
		Store:         store,
		Localizer:     backend,
		Canonicalizer: vision.NewCanonicalizer(cfg.Model.InputSize),
		Embedder:      extractor,
		Matcher:       m,
		Index:         a.index,
		ScanDebugDir:  cfg.Access.ScanDebugDir,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("access service ready",
		zap.String("database", cfg.Database.Driver),
		zap.String("backend", cfg.Inference.Backend),
		zap.String("model", cfg.Model.Name),
		zap.String("matcher", cfg.Match.Index),
		zap.Float64("threshold", cfg.Match.Threshold),
	)
	return a, nil
}

// healthChecks returns the dependencies reported by the health endpoint.
func (a *app) healthChecks() map[string]handlers.HealthChecker {
	checks := map[string]handlers.HealthChecker{
		"database": handlers.HealthFunc(func(ctx context.Context) error {
			_, err := a.store.Count(ctx)
			return err
		}),
	}
	if hc, ok := a.backend.(handlers.HealthChecker); ok {
		checks["inference"] = hc
	}
	return checks
}

// Close saves the template index and releases the backend and the store.
func (a *app) Close() error {
	var errs []error
	if a.index != nil {
		if err := a.index.Save(); err != nil {
			errs = append(errs, fmt.Errorf("saving template index: %w", err))
		}
	}
	if a.backend != nil {
		errs = append(errs, a.backend.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
