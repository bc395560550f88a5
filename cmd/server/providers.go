// File: cmd/server/providers.go
package main

import (
	"context"
	"fmt"
	"time"

	"live_learning_backend/internal/auth"
	"live_learning_backend/internal/config"
	"live_learning_backend/internal/content"
	"live_learning_backend/internal/docstore"
	"live_learning_backend/internal/filestorage"
	"live_learning_backend/internal/firebase"
	"live_learning_backend/internal/identity"
	"live_learning_backend/internal/platform/elasticsearch"
	"live_learning_backend/internal/platform/natsbus"
	"live_learning_backend/internal/profile"
	"live_learning_backend/internal/session"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const startupTimeout = 30 * time.Second

// provideFirebaseApp initializes the Admin SDK only when a backend needs it.
func provideFirebaseApp(cfg *config.Config, logger *zap.Logger) (*firebase.App, func(), error) {
	if !cfg.UsesFirebase() {
		return nil, func() {}, nil
	}
	app, err := firebase.NewApp(context.Background(), cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return app, app.Close, nil
}

func provideTokenVerifier(cfg *config.Config, logger *zap.Logger) identity.TokenVerifier {
	if cfg.GoogleClientID == "" {
		logger.Info("GOOGLE_CLIENT_ID not set; Google sign-in is disabled for the local provider.")
		return nil
	}
	return identity.NewGoogleTokenVerifier(context.Background(), cfg.GoogleClientID)
}

func provideIdentityProvider(
	cfg *config.Config,
	db *gorm.DB,
	app *firebase.App,
	notifier *identity.Notifier,
	verifier identity.TokenVerifier,
	logger *zap.Logger,
) (identity.Provider, error) {
	switch cfg.IdentityProvider {
	case config.IdentityProviderFirebase:
		// Clients built here outlive startup, so they get a background context.
		authClient, err := app.Auth(context.Background())
		if err != nil {
			return nil, err
		}
		provider, err := identity.NewFirebaseProvider(context.Background(), authClient, cfg.FirebaseWebAPIKey, notifier, logger)
		if err != nil {
			return nil, err
		}
		return provider, nil
	default:
		if err := identity.Migrate(db); err != nil {
			return nil, err
		}
		return identity.NewLocalProvider(db, notifier, verifier, cfg.BcryptCost, logger), nil
	}
}

func provideDocstore(cfg *config.Config, db *gorm.DB, app *firebase.App) (docstore.Store, error) {
	switch cfg.DocstoreBackend {
	case config.DocstoreBackendFirestore:
		client, err := app.Firestore(context.Background())
		if err != nil {
			return nil, err
		}
		return docstore.NewFirestoreStore(client), nil
	default:
		if err := docstore.Migrate(db); err != nil {
			return nil, err
		}
		return docstore.NewGORMStore(db), nil
	}
}

func provideSessionRegistry(
	cfg *config.Config,
	provider identity.Provider,
	profiles *profile.Store,
	logger *zap.Logger,
) (*session.Registry, func()) {
	factory := func() *session.Manager {
		return session.NewManager(provider, profiles, logger, session.Options{CallTimeout: cfg.SessionCallTimeout})
	}
	registry := session.NewRegistry(factory, cfg.SessionIdleTTL, logger)
	return registry, registry.Close
}

func provideBlocklist(cfg *config.Config) *auth.InMemoryBlocklist {
	return auth.NewInMemoryBlocklist(auth.InMemoryBlocklistConfig{
		DefaultExpiration: cfg.JWTAccessTokenExpiry,
		CleanupInterval:   10 * time.Minute,
	})
}

// provideContentIndex returns nil when ELASTICSEARCH_URL is unset.
func provideContentIndex(cfg *config.Config, logger *zap.Logger) (*elasticsearch.ContentIndex, error) {
	client, err := elasticsearch.NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	if err := elasticsearch.CreateContentIndexIfNotExists(ctx, client, logger); err != nil {
		logger.Error("Failed to create Elasticsearch content index; search may fail until it exists.", zap.Error(err))
	}
	return elasticsearch.NewContentIndex(client, logger), nil
}

func provideContentService(docs docstore.Store, index *elasticsearch.ContentIndex, logger *zap.Logger) *content.ServiceImplementation {
	// A typed nil must not reach the Indexer interface.
	var indexer content.Indexer
	if index != nil {
		indexer = index
	}
	return content.NewService(docs, indexer, logger)
}

// provideEventBridge returns nil when NATS_URL is unset.
func provideEventBridge(cfg *config.Config, notifier *identity.Notifier, logger *zap.Logger) (*natsbus.Bridge, func(), error) {
	nc, err := natsbus.Connect(cfg.NATSURL, "live-learning-backend", logger)
	if err != nil {
		return nil, nil, err
	}
	if nc == nil {
		return nil, func() {}, nil
	}
	bridge := natsbus.NewBridge(nc, cfg.NATSSubject, notifier, logger)
	if err := bridge.Start(); err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("starting session event bridge: %w", err)
	}
	cleanup := func() {
		bridge.Close()
		if err := nc.Drain(); err != nil {
			logger.Warn("Error draining NATS connection", zap.Error(err))
		}
	}
	return bridge, cleanup, nil
}

func provideImageStore(cfg *config.Config, logger *zap.Logger) (*filestorage.ImageStore, error) {
	return filestorage.NewImageStore(cfg.MediaStoragePath, cfg.MediaBaseURL, cfg.MediaMaxUploadBytes, logger)
}
