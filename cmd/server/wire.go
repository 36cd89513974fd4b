package main

import (
	"context"
	"fmt"
	"net/http"

	"courier-dispatch/config"
	"courier-dispatch/internal/auth"
	"courier-dispatch/internal/clock"
	"courier-dispatch/internal/courier"
	"courier-dispatch/internal/dispatch"
	"courier-dispatch/internal/gateway"
	"courier-dispatch/internal/jwt"
	"courier-dispatch/internal/location"
	"courier-dispatch/internal/order"
	"courier-dispatch/internal/redis"
	pgstore "courier-dispatch/internal/repo/postgres"
	"courier-dispatch/internal/scheduler"
	"courier-dispatch/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
)

type AppContext struct {
	DB     *sqlx.DB
	Config *config.Config
	Redis  *goredis.Client
	Router *gin.Engine

	// Infrastructure
	JWTService       *jwt.Service
	Hub              *ws.Hub
	LocationCache    *redis.LocationCache
	SessionStore     *redis.SessionStore
	IdempotencyStore *redis.IdempotencyStore
	RateLimiter      *redis.RateLimiter
	Sweeper          *scheduler.Sweeper

	AuthHandler     *auth.Handler
	OrderHandler    *order.Handler
	DispatchHandler *dispatch.Handler
	CourierHandler  *courier.Handler
	LocationHandler *location.Handler
	Gateway         *gateway.Gateway

	OrderService    order.Service
	CourierService  courier.Service
	LocationService location.Service
	Resolver        dispatch.Resolver

	OrderRepo   order.Repository
	CourierRepo courier.Repository
}

// orderReader bridges the order repository to location.Orders so the location
// service doesn't depend on the order service (avoiding a construction cycle
// with the tracker).
type orderReader struct {
	db   *sqlx.DB
	repo order.Repository
}

func (r *orderReader) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return r.repo.GetByID(ctx, r.db, id)
}

func wireApp(cfg *config.Config) (*AppContext, error) {
	// ── Postgres ──
	db, err := pgstore.Connect(cfg.Postgres.DSN(), pgstore.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	if err := pgstore.RunMigrationsUp(db); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	// ── Redis ──
	var rdb *goredis.Client
	if cfg.Redis.URL != "" {
		opts, err := goredis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("redis parse url: %w", err)
		}
		rdb = goredis.NewClient(opts)
	} else {
		rdb = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	// ── Infrastructure ──
	clk := clock.System()
	hub := ws.NewHub()
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.ExpiryHours)
	locationCache := redis.NewLocationCache(rdb, cfg.Location.CacheTTLSec)
	sessionStore := redis.NewSessionStore(rdb, cfg.Dispatch.HeartbeatTTL)
	idempotencyStore := redis.NewIdempotencyStore(rdb, cfg.Dispatch.IdempotencyTTLSec)
	rateLimiter := redis.NewRateLimiter(rdb, cfg.RateLimiter.MaxRequests, cfg.RateLimiter.WindowSeconds)

	// ── Repositories ──
	orderRepo := order.NewRepository()
	courierRepo := courier.NewRepository()

	// ── Services ──
	locationService := location.NewService(
		&orderReader{db: db, repo: orderRepo},
		locationCache, hub, clk, cfg.Location.MinPublishInterval)

	orderService := order.NewService(orderRepo, db, clk, hub, locationService, cfg.Dispatch.AcceptanceLockout)
	courierService := courier.NewService(courierRepo, db, sessionStore, clk, cfg.Dispatch.DefaultPackageLimit)
	authService := auth.NewAuthService(jwtService)

	dispatchStore := dispatch.NewStore(db, orderRepo, courierRepo)
	resolver := dispatch.NewResolver(dispatchStore, courierService, hub, clk, cfg.Dispatch.AcceptanceLockout)

	sweeper := scheduler.NewSweeper(scheduler.NewStore(db, orderRepo), hub, clk, scheduler.Config{
		Interval:          cfg.Dispatch.SweepInterval,
		AcceptanceLockout: cfg.Dispatch.AcceptanceLockout,
		AutoDeleteWindow:  cfg.Dispatch.AutoDeleteWindow,
		DeliverySLA:       cfg.Dispatch.DeliverySLA,
	})

	// ── Handlers ──
	authHandler := auth.NewHandler(authService)
	orderHandler := order.NewHandler(orderService)
	dispatchHandler := dispatch.NewHandler(resolver)
	courierHandler := courier.NewHandler(courierService)
	locationHandler := location.NewHandler(locationService)
	gw := gateway.New(hub, courierService, locationService, orderService)

	return &AppContext{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Router: gin.Default(),

		JWTService:       jwtService,
		Hub:              hub,
		LocationCache:    locationCache,
		SessionStore:     sessionStore,
		IdempotencyStore: idempotencyStore,
		RateLimiter:      rateLimiter,
		Sweeper:          sweeper,

		OrderRepo:   orderRepo,
		CourierRepo: courierRepo,

		OrderService:    orderService,
		CourierService:  courierService,
		LocationService: locationService,
		Resolver:        resolver,

		AuthHandler:     authHandler,
		OrderHandler:    orderHandler,
		DispatchHandler: dispatchHandler,
		CourierHandler:  courierHandler,
		LocationHandler: locationHandler,
		Gateway:         gw,
	}, nil
}

func (a *AppContext) Close() {
	a.DB.Close()
	a.Redis.Close()
}

func (a *AppContext) healthCheck(c *gin.Context) {
	ctx := c.Request.Context()
	checks := map[string]string{}
	healthy := true

	if err := a.DB.PingContext(ctx); err != nil {
		checks["postgres"] = err.Error()
		healthy = false
	} else {
		checks["postgres"] = "ok"
	}

	if err := a.Redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	} else {
		checks["redis"] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":          checks,
		"couriers_online": a.Hub.RoomSize(ws.RoomCouriers),
	})
}
