package container

import (
	"log/slog"

	database "github.com/FACorreiaa/go-identity-service/app/db"
	"github.com/FACorreiaa/go-identity-service/config"
	"github.com/FACorreiaa/go-identity-service/internal/api/auth"
	"github.com/FACorreiaa/go-identity-service/internal/api/deletion"
	"github.com/FACorreiaa/go-identity-service/internal/api/user"
	"github.com/FACorreiaa/go-identity-service/internal/events"
	"github.com/FACorreiaa/go-identity-service/internal/remote"
)

// Container holds all application dependencies
type Container struct {
	Config          *config.Config
	Logger          *slog.Logger
	Pool            database.Pool
	TokenIssuer     *auth.TokenIssuer
	RevokedSubjects *auth.RevokedSubjects
	Publisher       events.Publisher
	AuthHandler     *auth.AuthHandler
	UserHandler     *user.HandlerImpl
	DeletionHandler *deletion.HandlerImpl
}

type Option func(*options)

type options struct {
	remoteOpts []remote.ClientOption
	publisher  events.Publisher
}

// WithRemoteClientOptions is applied to every downstream service client.
func WithRemoteClientOptions(opts ...remote.ClientOption) Option {
	return func(o *options) { o.remoteOpts = append(o.remoteOpts, opts...) }
}

// WithPublisher overrides the publisher chosen from config.
func WithPublisher(p events.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// NewContainer wires repositories, services and handlers on top of pool.
func NewContainer(cfg *config.Config, pool database.Pool, logger *slog.Logger, opts ...Option) (*Container, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	issuer, err := auth.NewTokenIssuer(cfg.JWT)
	if err != nil {
		logger.Error("Failed to create token issuer", slog.Any("error", err))
		return nil, err
	}
	revoked := auth.NewRevokedSubjects(issuer.TTL())

	policy, err := deletion.ParseAdminCheckPolicy(cfg.Deletion.AdminCheckPolicy)
	if err != nil {
		return nil, err
	}

	clients, err := remote.NewClients(cfg.Services, logger, o.remoteOpts...)
	if err != nil {
		logger.Error("Failed to create remote service clients", slog.Any("error", err))
		return nil, err
	}

	publisher := o.publisher
	if publisher == nil {
		if cfg.Events.AMQPURL != "" {
			publisher = events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, logger)
		} else {
			logger.Info("No event broker configured, user events are not published")
			publisher = events.NoopPublisher{}
		}
	}

	// repositories
	userRepo := user.NewPostgresUserRepo(pool, logger)
	tokenStore := auth.NewPostgresRefreshTokenStore(pool, cfg.JWT.RefreshTokenTTL(), logger)

	// services
	userService := user.NewUserService(userRepo, logger)
	authService := auth.NewAuthService(userRepo, tokenStore, issuer, logger)
	deletionService := deletion.NewDeletionService(
		deletion.NewValidationGate(userRepo, clients.Organization, clients.Project, policy, logger),
		deletion.NewCleanupCoordinator(clients.Task, clients.Project, clients.Organization, logger),
		deletion.NewSessionInvalidator(tokenStore, revoked, logger),
		userRepo,
		publisher,
		logger,
	)

	return &Container{
		Config:          cfg,
		Logger:          logger,
		Pool:            pool,
		TokenIssuer:     issuer,
		RevokedSubjects: revoked,
		Publisher:       publisher,
		AuthHandler:     auth.NewAuthHandler(authService, logger),
		UserHandler:     user.NewHandlerImpl(userService, logger),
		DeletionHandler: deletion.NewHandlerImpl(deletionService, logger),
	}, nil
}

// Close releases resources owned by the container. The pool is owned by the caller.
func (c *Container) Close() {
	if err := c.Publisher.Close(); err != nil {
		c.Logger.Warn("Failed to close event publisher", slog.Any("error", err))
	}
	c.Logger.Info("Container resources released")
}
