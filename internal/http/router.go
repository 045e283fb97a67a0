// Package httpapi assembles the Gin engine: the middleware chain, the
// arcade API under the configured base path, and the operational endpoints
// (/health, /metrics, /swagger).
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/retronova/arcade-backend/internal/config"
	_ "github.com/retronova/arcade-backend/internal/docs" // swagger spec
	"github.com/retronova/arcade-backend/internal/domain"
	"github.com/retronova/arcade-backend/internal/events"
	"github.com/retronova/arcade-backend/internal/http/handlers"
	"github.com/retronova/arcade-backend/internal/http/middleware"
	"github.com/retronova/arcade-backend/internal/repo"
	"github.com/retronova/arcade-backend/internal/services"
)

// Deps are the runtime dependencies of the router.
type Deps struct {
	DB *gorm.DB
	// Events receives domain events. Nil disables publishing.
	Events events.Publisher
	// Redis backs the shared rate limiter when cfg.RateBackend is "redis".
	Redis redis.UniversalClient
}

// RegisterRoutes installs the middleware chain and every route on r.
//
// Order matters. Tracing and the request id come first so that every log
// line and error envelope carries them; Recovery sits after the logger so a
// panic still produces an access line; Auth runs before the idempotency
// check and the limiter because both key on the caller; the idempotency
// check runs before the limiter so a replayed redemption is never throttled.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	db := deps.DB
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	// Unredacted access logs only in debug mode.
	if cfg.GinMode == gin.DebugMode {
		r.Use(middleware.Logger())
	} else {
		r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	}
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.Use(corsPolicy(cfg.CORS.AllowedOrigins)...)

	// HSTS is only sent over HTTPS.
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:    cfg.Security.EnableHSTS,
		HSTSMaxAge:    cfg.Security.HSTSMaxAge,
		NoStoreWrites: true,
		EnablePolicy:  true,
		Expose:        []string{handlers.HeaderReplayed},
	}))

	r.Use(middleware.Auth(middleware.AuthOptions{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.Issuer,
		Required: cfg.Auth.Required,
	}))

	apiBase := cfg.APIBasePath
	redeemPath := joinPath(apiBase, "/promo_codes/redeem")
	idem := middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, domain.ScopePromoRedeem, redeemLookup(db))
	r.Use(func(c *gin.Context) {
		if c.FullPath() == redeemPath {
			idem(c)
			return
		}
		c.Next()
	})

	// Shared through Redis when several replicas serve the API.
	if cfg.RateBackend == "redis" && deps.Redis != nil {
		r.Use(middleware.NewRedisLimiter(deps.Redis, cfg.RateBurst, time.Second, middleware.KeyByUserOrIP()).Handler())
	} else {
		r.Use(middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).Handler())
	}

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	userSvc := &services.UserService{DB: db}
	friendSvc := &services.FriendshipService{DB: db, Events: deps.Events}
	promoSvc := &services.PromoService{
		DB:             db,
		Events:         deps.Events,
		IdempotencyTTL: cfg.IdempotencyTTL,
		CodeLength:     cfg.PromoCodeLength,
	}
	h := handlers.New(userSvc, friendSvc, promoSvc)

	api := groupWithPrefix(r, apiBase)
	h.Register(api)

	games := &handlers.Resource[domain.Game, *domain.Game, services.GamePatch]{
		Name: "games", Store: services.NewGameService(db), Stats: tableStats(db, &domain.Game{}),
	}
	machines := &handlers.Resource[domain.ArcadeMachine, *domain.ArcadeMachine, services.MachinePatch]{
		Name: "arcade_machines", Store: services.NewMachineService(db), Stats: tableStats(db, &domain.ArcadeMachine{}),
	}
	payments := &handlers.Resource[domain.Payment, *domain.Payment, services.PaymentPatch]{
		Name: "payments", Store: services.NewPaymentService(db), Stats: tableStats(db, &domain.Payment{}),
	}
	parties := &handlers.Resource[domain.Party, *domain.Party, services.PartyPatch]{
		Name: "parties", Store: services.NewPartyService(db), Stats: tableStats(db, &domain.Party{}),
	}
	games.Register(api.Group("/games"))
	machines.Register(api.Group("/arcade_machines"))
	payments.Register(api.Group("/payments"))
	parties.Register(api.Group("/parties"))
}

// redeemLookup reports whether the caller (a firebase id) already has a live
// redemption recorded under key. Redemptions are recorded under the internal
// id of the sending account, whichever user they credit, so the identity is
// resolved first.
func redeemLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, firebaseID, scope, key string, now time.Time) (bool, error) {
		u, err := repo.GetUserByFirebaseID(ctx, db, firebaseID, false)
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		_, err = repo.GetIdempotency(ctx, db, u.ID, scope, key, now)
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	}
}

func tableStats(db *gorm.DB, model any) handlers.StatsFunc {
	return func(ctx context.Context, includeDeleted bool) (int64, *time.Time, error) {
		return repo.TableStats(ctx, db, model, includeDeleted)
	}
}

// corsPolicy allows every origin when none is configured. Otherwise only
// the listed origins are echoed back; the echo also covers same-host
// requests, which gin-contrib/cors leaves alone.
func corsPolicy(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match",
			middleware.HeaderUserID, middleware.HeaderIdempotencyKey,
		},
		ExposeHeaders: []string{"X-Request-ID", "Content-Length", "ETag", handlers.HeaderReplayed},
		MaxAge:        12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					c.Writer.Header().Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

const maxBodyBytes = 1 << 20

// limitBody caps request bodies; reads past maxBytes fail in the binder.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix treats "" and "/" as the root group.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return base + p
}
