package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/linesmerrill/laundry-api/api"
	"github.com/linesmerrill/laundry-api/api/scheduler"
	"github.com/linesmerrill/laundry-api/config"
	"github.com/linesmerrill/laundry-api/databases"
	"github.com/linesmerrill/laundry-api/identity"
	"github.com/linesmerrill/laundry-api/notifications"
)

const (
	connectTimeout = 15 * time.Second
	requestTimeout = 30 * time.Second
)

// Services are the flows the routes are served by
type Services struct {
	Registration *identity.RegistrationFlow
	Recovery     *identity.PasswordRecoveryFlow
	Accounts     identity.Accounts
	Verifier     api.TokenVerifier
	RateLimit    api.RateLimitConfig
}

// App stores the router and db connection, so it can be reused
type App struct {
	Router   *mux.Router
	Config   config.Config
	Services Services
	Reaper   *scheduler.Scheduler

	client   databases.ClientHelper
	dbHelper databases.DatabaseHelper
	redis    *redis.Client
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	reg := Registration{Flow: a.Services.Registration}
	rec := PasswordRecovery{Flow: a.Services.Recovery}
	u := User{Accounts: a.Services.Accounts}
	m := api.MiddlewareAuth{Verifier: a.Services.Verifier}
	limiter := api.NewRateLimiter(a.Services.RateLimit)

	// healthchex
	r := api.New()
	r.Use(api.TimeoutMiddleware(requestTimeout))

	apiAuth := r.PathPrefix("/api/v1/auth").Subrouter()
	apiAuth.Use(limiter.Middleware)

	apiAuth.HandleFunc("/check-email", reg.CheckEmailHandler).Methods("POST")
	apiAuth.HandleFunc("/request-code", reg.RequestCodeHandler).Methods("POST")
	apiAuth.HandleFunc("/resend-code", reg.RequestCodeHandler).Methods("POST")
	apiAuth.HandleFunc("/verify-code", reg.VerifyCodeHandler).Methods("POST")
	apiAuth.HandleFunc("/register", reg.RegisterHandler).Methods("POST")
	apiAuth.HandleFunc("/login", u.LoginHandler).Methods("POST")
	apiAuth.HandleFunc("/forgot-password", rec.ForgotPasswordHandler).Methods("POST")
	apiAuth.HandleFunc("/reset-password", rec.ResetPasswordHandler).Methods("POST")

	apiCreate := r.PathPrefix("/api/v1").Subrouter()

	apiCreate.Handle("/user/me", m.Middleware(http.HandlerFunc(u.MeHandler))).Methods("GET")
	apiCreate.Handle("/user/me/password", m.Middleware(http.HandlerFunc(u.ChangePasswordHandler))).Methods("PUT")

	return r
}

// Initialize is invoked by main to connect with the database and create a router
func (a *App) Initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if a.Config.JWTSecret == "" {
		return identity.ErrBearerSecretMissing
	}

	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().Errorw("failed to create new client", "error", err)
		return err
	}

	a.dbHelper = databases.NewDatabase(&a.Config, client)
	err = client.Connect(ctx)
	if err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().Errorw("failed to connect to database", "error", err)
		return err
	}
	a.client = client
	zap.S().Info("laundry-api has connected to the database")

	userDB := databases.NewUserDatabase(a.dbHelper)
	if err := userDB.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	users := databases.NewUserDirectory(userDB)

	pending, err := a.pendingStore(ctx)
	if err != nil {
		return err
	}

	notifier := a.notifier()
	bearer := identity.JWTIssuer{Secret: []byte(a.Config.JWTSecret), TTL: a.Config.JWTTTL}

	a.Services = Services{
		Registration: identity.NewRegistrationFlow(identity.RegistrationConfig{
			Pending:              pending,
			Users:                users,
			Notifier:             notifier,
			Bearer:               bearer,
			VerificationRequired: a.Config.VerificationRequired,
			DirectDelivery:       a.Config.DirectSecretDelivery,
			CodeTTL:              a.Config.CodeTTL,
		}),
		Recovery: identity.NewPasswordRecoveryFlow(identity.RecoveryConfig{
			Users:          users,
			Resets:         users,
			Notifier:       notifier,
			DirectDelivery: a.Config.DirectSecretDelivery,
			ResetTTL:       a.Config.ResetTTL,
		}),
		Accounts: identity.Accounts{Users: users, Bearer: bearer},
		Verifier: bearer,
		RateLimit: api.RateLimitConfig{
			RequestsPerWindow: a.Config.RateLimitRequests,
			Window:            time.Duration(a.Config.RateLimitWindowSec) * time.Second,
			Burst:             a.Config.RateLimitBurst,
			TrustedProxyHops:  a.Config.TrustedProxyHops,
		},
	}
	a.Reaper = scheduler.NewScheduler(pending, a.Config.ReaperSchedule)

	if a.Config.DirectSecretDelivery {
		zap.S().Warn("direct secret delivery is on, codes and reset tokens are returned in responses")
	}

	// initialize api router
	a.initializeRoutes()
	return nil
}

// Close releases the database and redis connections
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.client != nil {
		errs = append(errs, a.client.Disconnect(ctx))
	}
	return errors.Join(errs...)
}

func (a *App) pendingStore(ctx context.Context) (identity.PendingVerificationStore, error) {
	switch a.Config.PendingStore {
	case config.PendingStoreMongo:
		store := databases.NewPendingVerificationDatabase(a.dbHelper, nil, a.Config.MaxCodeAttempts)
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("create pending verification indexes: %w", err)
		}
		zap.S().Info("pending verifications are stored in mongo")
		return store, nil

	case config.PendingStoreRedis:
		opts, err := redis.ParseURL(a.Config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("REDIS_URL: %w", err)
		}
		a.redis = redis.NewClient(opts)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			zap.S().Errorw("failed to connect to redis", "error", err)
			return nil, err
		}
		zap.S().Info("pending verifications are stored in redis")
		return databases.NewRedisPendingStore(a.redis, nil, a.Config.MaxCodeAttempts), nil

	default:
		zap.S().Info("pending verifications are kept in memory")
		return identity.NewMemoryPendingStore(nil, a.Config.MaxCodeAttempts), nil
	}
}

func (a *App) notifier() identity.NotificationDispatcher {
	if a.Config.SendGridAPIKey == "" {
		zap.S().Warn("SENDGRID_API_KEY not set, notifications are only logged")
		return notifications.LogDispatcher{Reveal: a.Config.Env == "local"}
	}
	return notifications.NewSendGridDispatcher(
		a.Config.SendGridAPIKey,
		a.Config.EmailFromName,
		a.Config.EmailFromAddress,
		a.Config.PublicWebBaseURL,
	)
}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}
