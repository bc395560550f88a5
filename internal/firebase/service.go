// File: internal/firebase/service.go
package firebase

import (
	"context"
	"fmt"
	"path/filepath"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"live_learning_backend/internal/config"
)

// App wraps the Firebase Admin SDK app and hands out its clients lazily.
type App struct {
	app    *firebase.App
	logger *zap.Logger

	authClient *auth.Client
	fsClient   *firestore.Client
}

// NewApp initializes the Firebase Admin SDK from the service account file.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg.FirebaseServiceAccountKeyPath == "" {
		logger.Error("Firebase service account key path is not configured.")
		return nil, fmt.Errorf("firebase service account key path is required")
	}

	cleanPath := filepath.Clean(cfg.FirebaseServiceAccountKeyPath)
	opt := option.WithCredentialsFile(cleanPath)

	var conf *firebase.Config
	if cfg.FirebaseProjectID != "" {
		conf = &firebase.Config{ProjectID: cfg.FirebaseProjectID}
	}

	app, err := firebase.NewApp(ctx, conf, opt)
	if err != nil {
		logger.Error("Failed to initialize Firebase Admin SDK app", zap.Error(err), zap.String("keyPath", cleanPath))
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	logger.Info("Firebase Admin SDK initialized successfully.")
	return &App{app: app, logger: logger.Named("firebase")}, nil
}

// Auth returns the Firebase Auth client.
func (a *App) Auth(ctx context.Context) (*auth.Client, error) {
	if a.authClient != nil {
		return a.authClient, nil
	}
	client, err := a.app.Auth(ctx)
	if err != nil {
		a.logger.Error("Failed to get Firebase Auth client", zap.Error(err))
		return nil, fmt.Errorf("error getting Firebase Auth client: %w", err)
	}
	a.authClient = client
	return client, nil
}

// Firestore returns the Cloud Firestore client.
func (a *App) Firestore(ctx context.Context) (*firestore.Client, error) {
	if a.fsClient != nil {
		return a.fsClient, nil
	}
	client, err := a.app.Firestore(ctx)
	if err != nil {
		a.logger.Error("Failed to get Firestore client", zap.Error(err))
		return nil, fmt.Errorf("error getting Firestore client: %w", err)
	}
	a.fsClient = client
	return client, nil
}

// Close releases the Firestore connection if one was opened.
func (a *App) Close() {
	if a == nil || a.fsClient == nil {
		return
	}
	if err := a.fsClient.Close(); err != nil {
		a.logger.Warn("Error closing Firestore client", zap.Error(err))
	}
}
