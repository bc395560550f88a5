// File: cmd/server/wire.go
//go:build wireinject
// +build wireinject

package main

import (
	"live_learning_backend/internal/app"
	"live_learning_backend/internal/auth"
	"live_learning_backend/internal/config"
	"live_learning_backend/internal/content"
	"live_learning_backend/internal/filestorage"
	"live_learning_backend/internal/identity"
	"live_learning_backend/internal/jobs"
	"live_learning_backend/internal/platform/database"
	"live_learning_backend/internal/platform/logger"
	"live_learning_backend/internal/profile"
	"live_learning_backend/internal/user"

	"github.com/google/wire"
)

// initializeServer is the main Wire injector.
func initializeServer(cfg *config.Config) (*app.Server, func(), error) {
	wire.Build(
		// Platform Layer
		logger.New,
		database.NewGORM,
		provideFirebaseApp,
		provideEventBridge,

		// Identity and session
		identity.NewNotifier,
		provideTokenVerifier,
		provideIdentityProvider,
		provideDocstore,
		profile.NewStore,
		provideSessionRegistry,

		// Auth
		auth.NewJWTService,
		wire.Bind(new(auth.TokenService), new(*auth.JWTService)),
		provideBlocklist,
		wire.Bind(new(auth.TokenBlocklist), new(*auth.InMemoryBlocklist)),
		auth.NewGoogleOAuth,
		auth.NewHandler,
		user.NewHandler,

		// Content
		provideContentIndex,
		provideContentService,
		provideImageStore,
		wire.Bind(new(content.Images), new(*filestorage.ImageStore)),
		wire.Bind(new(content.Service), new(*content.ServiceImplementation)),
		wire.Bind(new(jobs.Sweeper), new(*content.ServiceImplementation)),
		content.NewHandler,
		jobs.NewContentSweepJob,

		// Application Layer
		app.NewServer,
	)
	return nil, nil, nil
}
