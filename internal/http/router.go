package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/casahub/casahub/internal/auth"
	"github.com/casahub/casahub/internal/cache"
	"github.com/casahub/casahub/internal/chat"
	"github.com/casahub/casahub/internal/config"
	"github.com/casahub/casahub/internal/domain/user"
	"github.com/casahub/casahub/internal/http/handlers"
	"github.com/casahub/casahub/internal/http/middlewares"
	"github.com/casahub/casahub/internal/observability"
	"github.com/casahub/casahub/internal/redisclient"
	"github.com/casahub/casahub/internal/repo/postgres"
	"github.com/casahub/casahub/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const (
	maxBodySize     = 1 << 20 // 1 MiB
	listingCacheTTL = 15 * time.Second
)

func NewRouter(
	cfg config.Config,
	log *slog.Logger,
	pool *pgxpool.Pool,
	rds *redisclient.Client,
	jwtManager *auth.Manager,
	prom *observability.Prom,
	registry *prometheus.Registry,
) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(maxBodySize))
	r.Use(otelgin.Middleware("casahub-api"))
	r.Use(prom.GinHandleMiddleware())
	r.Use(middlewares.RequestLogger(log))

	// health + metrics

	ping := func() error {
		if pool == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		return pool.Ping(ctx)
	}

	health := handlers.NewHealthHandler(ping)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// wire up repositories

	usersRepo := postgres.NewUsersRepo(pool, prom)
	sessionsRepo := postgres.NewSessionsRepo(pool, prom)
	propertiesRepo := postgres.NewPropertiesRepo(pool, prom)
	requestsRepo := postgres.NewRequestsRepo(pool, prom)
	wishlistRepo := postgres.NewWishlistRepo(pool, prom)
	reviewsRepo := postgres.NewReviewsRepo(pool, prom)
	subscriptionsRepo := postgres.NewSubscriptionsRepo(pool, prom)
	jobsRepo := postgres.NewJobsRepo(pool, prom)

	// wire up handlers

	otp := security.NewOneTimeTokens(rds)

	authHandler := handlers.NewAuthHandler(usersRepo, sessionsRepo, jwtManager, otp, jobsRepo, cfg, prom, log)
	profileHandler := handlers.NewProfileHandler(usersRepo)
	propertiesHandler := handlers.NewPropertiesHandler(propertiesRepo, subscriptionsRepo, cache.NewTTL(listingCacheTTL), log)
	requestsHandler := handlers.NewRequestsHandler(requestsRepo, propertiesRepo)
	wishlistHandler := handlers.NewWishlistHandler(wishlistRepo)
	reviewsHandler := handlers.NewReviewsHandler(reviewsRepo, propertiesRepo)
	subscriptionsHandler := handlers.NewSubscriptionsHandler(subscriptionsRepo)
	chatHandler := handlers.NewChatHandler(chat.NewHub(log), propertiesRepo, cfg.AllowedOrigins, log)

	gate := middlewares.NewAuthMiddleware(jwtManager, sessionsRepo, prom)

	// credential endpoints get a tight per-IP limit
	authLimiter := middlewares.NewRateLimiter(15, time.Minute)

	api := r.Group("/api/v1")
	api.Use(middlewares.RequireJSON())

	authGroup := api.Group("/auth")
	{
		limited := authLimiter.RateLimiterMiddleware(middlewares.KeyByIP)

		authGroup.POST("/register", limited, authHandler.Register)
		authGroup.GET("/confirm", authHandler.ConfirmEmail)
		authGroup.POST("/login", limited, authHandler.Login)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.POST("/forgot-password", limited, authHandler.ForgotPassword)
		authGroup.POST("/reset-password", limited, authHandler.ResetPassword)
	}

	// public browse

	api.GET("/properties", propertiesHandler.List)
	api.GET("/properties/:id", propertiesHandler.Get)
	api.GET("/properties/:id/reviews", reviewsHandler.List)

	// everything below requires a live session

	protected := api.Group("")
	protected.Use(gate.RequireSession())
	{
		protected.GET("/me", profileHandler.Get)
		protected.PUT("/me", profileHandler.Update)

		protected.GET("/ws/properties/:id/chat", chatHandler.Join)

		owner := protected.Group("")
		owner.Use(gate.RequireRole(user.RoleOwner))
		{
			owner.POST("/properties", propertiesHandler.Create)
			owner.GET("/me/properties", propertiesHandler.ListMine)
			owner.PUT("/properties/:id", propertiesHandler.Update)
			owner.DELETE("/properties/:id", propertiesHandler.Delete)

			owner.GET("/me/requests/incoming", requestsHandler.ListIncoming)
			owner.POST("/requests/:id/approve", requestsHandler.Approve)
			owner.POST("/requests/:id/reject", requestsHandler.Reject)

			owner.POST("/subscriptions/payments", subscriptionsHandler.RecordPayment)
			owner.GET("/subscriptions/current", subscriptionsHandler.Current)
		}

		customer := protected.Group("")
		customer.Use(gate.RequireRole(user.RoleCustomer))
		{
			customer.POST("/properties/:id/requests", requestsHandler.Create)
			customer.GET("/me/requests", requestsHandler.ListMine)
			customer.POST("/requests/:id/cancel", requestsHandler.Cancel)

			customer.POST("/properties/:id/wishlist", wishlistHandler.Add)
			customer.DELETE("/properties/:id/wishlist", wishlistHandler.Remove)
			customer.GET("/me/wishlist", wishlistHandler.List)

			customer.POST("/properties/:id/reviews", reviewsHandler.Create)
		}
	}

	return r
}
