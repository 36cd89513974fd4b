package main

import (
	"courier-dispatch/internal/auth"
	"courier-dispatch/internal/middleware"
)

func (a *AppContext) setupRoutes() {
	r := a.Router

	// ── Global Middleware (outermost → innermost) ──
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RateLimit(a.RateLimiter))
	r.Use(middleware.Auth(a.JWTService))

	// ── Health (no auth, no rate limit) ──
	r.GET("/health", a.healthCheck)

	// ── Auth ──
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/token", a.AuthHandler.GenerateToken)
	}

	// ── WebSocket (token validated by Auth, via query param for browsers) ──
	r.GET("/ws", a.Gateway.Serve)

	// ── Restaurant Routes ──
	restaurantGroup := r.Group("/restaurant")
	restaurantGroup.Use(middleware.RoleGuard(auth.RoleRestaurant))
	{
		mutations := restaurantGroup.Group("")
		mutations.Use(middleware.Bulkhead(a.Config.Bulkhead.MutationPool))
		mutations.Use(middleware.Idempotency(a.IdempotencyStore))
		{
			mutations.POST("/orders", a.OrderHandler.CreateOrder)
			mutations.POST("/orders/approve", a.OrderHandler.Approve)
			mutations.POST("/orders/cancel", a.OrderHandler.Cancel)
		}

		reads := restaurantGroup.Group("")
		reads.Use(middleware.Bulkhead(a.Config.Bulkhead.ReadPool))
		{
			reads.GET("/restaurants/:id/orders", a.OrderHandler.ActiveByRestaurant)
			reads.GET("/restaurants/:id/pending-approvals", a.OrderHandler.PendingApprovalByRestaurant)
			reads.GET("/orders/:id/location", a.LocationHandler.Latest)
		}
	}

	// ── Courier Routes ──
	courierGroup := r.Group("/courier")
	courierGroup.Use(middleware.RoleGuard(auth.RoleCourier))
	{
		// Heartbeat gets its own bulkhead pool (high concurrency)
		heartbeat := courierGroup.Group("")
		heartbeat.Use(middleware.Bulkhead(a.Config.Bulkhead.HeartbeatPool))
		{
			heartbeat.POST("/me/heartbeat", a.CourierHandler.Heartbeat)
			heartbeat.POST("/me/offline", a.CourierHandler.GoOffline)
		}

		reads := courierGroup.Group("")
		reads.Use(middleware.Bulkhead(a.Config.Bulkhead.ReadPool))
		{
			reads.GET("/orders/open", a.OrderHandler.OpenWithPreferences)
			reads.GET("/couriers/:id/orders", a.OrderHandler.ActiveByCourier)
			reads.GET("/couriers/:id/pending-approvals", a.OrderHandler.PendingApprovalByCourier)
		}

		mutations := courierGroup.Group("")
		mutations.Use(middleware.Bulkhead(a.Config.Bulkhead.MutationPool))
		mutations.Use(middleware.Idempotency(a.IdempotencyStore))
		{
			mutations.POST("/orders/accept", a.DispatchHandler.AcceptOrders)
			mutations.POST("/orders/deliver", a.OrderHandler.Deliver)
			mutations.POST("/orders/approve-request", a.OrderHandler.RequestApproval)
		}
	}

	// ── Admin Routes ──
	adminGroup := r.Group("/admin")
	adminGroup.Use(middleware.RoleGuard(auth.RoleAdmin))
	adminGroup.Use(middleware.Bulkhead(a.Config.Bulkhead.MutationPool))
	{
		adminGroup.PATCH("/couriers/:id/blocked", a.CourierHandler.SetBlocked)
		adminGroup.PATCH("/couriers/:id/package-limit", a.CourierHandler.SetPackageLimit)
	}
}
