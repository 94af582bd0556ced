package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/marinet/internal/auth"
	"github.com/MarcoPoloResearchLab/marinet/internal/config"
	"github.com/MarcoPoloResearchLab/marinet/internal/database"
	"github.com/MarcoPoloResearchLab/marinet/internal/gateway"
	"github.com/MarcoPoloResearchLab/marinet/internal/groups"
	"github.com/MarcoPoloResearchLab/marinet/internal/ids"
	"github.com/MarcoPoloResearchLab/marinet/internal/kv"
	"github.com/MarcoPoloResearchLab/marinet/internal/posts"
	"github.com/MarcoPoloResearchLab/marinet/internal/records"
	"github.com/MarcoPoloResearchLab/marinet/internal/seed"
	"github.com/MarcoPoloResearchLab/marinet/internal/server"
	"github.com/MarcoPoloResearchLab/marinet/internal/tables"
	"github.com/MarcoPoloResearchLab/marinet/internal/tutor"
	"github.com/MarcoPoloResearchLab/marinet/internal/users"
	"go.uber.org/zap"
)

const (
	tokenIssuer   = "marinet-api"
	tokenAudience = "marinet-client"
)

type application struct {
	logger    *zap.Logger
	store     kv.Store
	tables    records.Tables
	manager   *auth.Manager
	groups    *groups.Service
	posts     *posts.Service
	tutor     *tutor.Service
	tutorName string
	handler   http.Handler
	closers   []func() error
}

// buildApplication opens the configured store and wires every service behind the router.
func buildApplication(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (*application, error) {
	app := &application{logger: logger}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app.store = store
	app.closers = append(app.closers, closeStore)

	storage, err := tables.NewStorage(store, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.tables = records.BindTables(storage)
	idProvider := ids.NewUUIDProvider()

	app.manager, err = auth.NewManager(auth.ManagerConfig{
		Tables:     app.tables,
		Store:      store,
		IDProvider: idProvider,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	app.closers = append(app.closers, func() error { app.manager.Close(); return nil })

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(cfg.SigningSecret),
		Issuer:        tokenIssuer,
		Audience:      tokenAudience,
		TokenTTL:      cfg.TokenTTL,
		Clock:         time.Now,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	validator, err := auth.NewSessionValidator(issuer, cfg.CookieName)
	if err != nil {
		app.Close()
		return nil, err
	}

	userService, err := users.NewService(users.ServiceConfig{Profiles: app.tables.Profiles, Auth: app.manager, Logger: logger})
	if err != nil {
		app.Close()
		return nil, err
	}
	app.posts, err = posts.NewService(posts.ServiceConfig{Tables: app.tables, IDProvider: idProvider, Clock: time.Now, Logger: logger})
	if err != nil {
		app.Close()
		return nil, err
	}
	app.groups, err = groups.NewService(groups.ServiceConfig{Tables: app.tables, IDProvider: idProvider, Clock: time.Now, Logger: logger})
	if err != nil {
		app.Close()
		return nil, err
	}

	// The gateway serves non-upstream traffic from the router, which is built after the tutor.
	emulator := &deferredHandler{}
	httpClient, err := gateway.NewHTTPClient(gateway.Config{
		Emulator:      emulator,
		UpstreamHosts: cfg.UpstreamHosts,
		Offline:       !cfg.TutorOnline(),
		Timeout:       cfg.TutorTimeout,
		Logger:        logger,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	completer, err := newCompleter(ctx, cfg, httpClient)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.tutorName = completer.Name()
	app.tutor, err = tutor.NewService(tutor.ServiceConfig{Store: store, Completer: completer, Clock: time.Now, Logger: logger})
	if err != nil {
		app.Close()
		return nil, err
	}

	app.handler, err = server.NewHTTPHandler(server.Dependencies{
		Auth:     app.manager,
		Tokens:   issuer,
		Sessions: validator,
		Users:    userService,
		Posts:    app.posts,
		Groups:   app.groups,
		Tutor:    app.tutor,
		Logger:   logger,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	emulator.Set(app.handler)
	return app, nil
}

func openStore(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (kv.Store, func() error, error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		return kv.NewMemoryStore(), func() error { return nil }, nil
	case config.StorageRedis:
		client, err := kv.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		store, err := kv.NewRedisStore(client, cfg.RedisPrefix)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		if err := store.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis unreachable: %w", err)
		}
		logger.Info("redis store connected", zap.String("prefix", cfg.RedisPrefix))
		return store, client.Close, nil
	default:
		db, err := database.OpenSQLite(cfg.DatabasePath, logger)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		store, err := database.NewStore(db)
		if err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		return store, sqlDB.Close, nil
	}
}

func newCompleter(ctx context.Context, cfg config.AppConfig, httpClient *http.Client) (tutor.Completer, error) {
	if !cfg.TutorOnline() {
		return tutor.NewCannedCompleter(time.Now), nil
	}
	return tutor.NewGeminiCompleter(ctx, tutor.GeminiConfig{
		APIKey:     cfg.GeminiAPIKey,
		Model:      cfg.GeminiModel,
		BaseURL:    cfg.GeminiBaseURL,
		HTTPClient: httpClient,
		Clock:      time.Now,
	})
}

// seed writes the first-run fixture. Demo students are generated only on the first run
// unless force is set.
func (a *application) seed(ctx context.Context, opts seed.DemoOptions, force bool) error {
	seeded, err := seed.NewSeeder(a.store, a.tables, time.Now, a.logger).Initialize(ctx)
	if err != nil {
		return err
	}
	if opts.Profiles <= 0 || (!seeded && !force) {
		return nil
	}
	result, err := seed.NewPopulation(a.manager, a.groups, a.posts, a.logger).Populate(ctx, opts)
	if err != nil {
		return err
	}
	a.logger.Info("demo population created",
		zap.Int("profiles", len(result.Profiles)),
		zap.Int("posts", result.Posts),
		zap.Int("memberships", result.Memberships),
		zap.Int("votes", result.Votes))
	return nil
}

func (a *application) checkTutor(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.tutor.ValidateKey(checkCtx); err != nil {
		a.logger.Warn("tutor api key rejected", zap.String("completer", a.tutorName), zap.Error(err))
	}
}

// Close releases resources in reverse acquisition order.
func (a *application) Close() {
	for index := len(a.closers) - 1; index >= 0; index-- {
		if err := a.closers[index](); err != nil {
			a.logger.Warn("failed to release resource", zap.Error(err))
		}
	}
	a.closers = nil
}

// deferredHandler forwards to a handler installed after construction.
type deferredHandler struct {
	mu      sync.RWMutex
	handler http.Handler
}

func (d *deferredHandler) Set(handler http.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = handler
}

func (d *deferredHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.RLock()
	handler := d.handler
	d.mu.RUnlock()
	if handler == nil {
		http.Error(w, "emulator not ready", http.StatusServiceUnavailable)
		return
	}
	handler.ServeHTTP(w, r)
}
