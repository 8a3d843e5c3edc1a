package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/01moynul/storefront-api/internal/handlers"
	"github.com/01moynul/storefront-api/internal/middleware"
	"github.com/01moynul/storefront-api/internal/ratelimit"
)

// Options carries router settings that are not handler dependencies.
type Options struct {
	AllowedOrigins []string
	// WebhookLimiter throttles POST /api/webhooks/paystack per client IP.
	WebhookLimiter ratelimit.Limiter
	// TrustedProxies lists the proxies whose X-Forwarded-For is honored.
	// Empty means the client IP is always the socket peer.
	TrustedProxies []string
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowOrigins = []string{"http://localhost:5173"}
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func SetupRouter(h *handlers.Handlers, opts Options) *gin.Engine {
	router := gin.New()
	if len(opts.TrustedProxies) == 0 {
		opts.TrustedProxies = nil
	}
	if err := router.SetTrustedProxies(opts.TrustedProxies); err != nil {
		h.Log.Error("invalid trusted proxies, ignoring forwarded headers", "proxies", opts.TrustedProxies, "error", err)
		_ = router.SetTrustedProxies(nil)
	}

	// --- Global Middleware ---
	// CORS must run first so preflight requests are answered before auth.
	router.Use(cors.New(corsConfig(opts.AllowedOrigins)))
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(h.Log))
	router.Use(gin.Recovery())

	requireAuth := middleware.AuthMiddleware(h.Tokens)
	requireAdmin := middleware.AdminMiddleware(h.Users)

	if h.UploadDir != "" {
		router.Static(handlers.UploadsRoute, h.UploadDir)
	}

	api := router.Group("/api")
	{
		api.GET("/health", h.Health)

		// --- User Routes ---
		users := api.Group("/users")
		{
			users.POST("/register", h.RegisterUser)
			users.POST("/login", h.LoginUser)
			users.GET("/profile", requireAuth, h.GetProfile)
		}

		// --- Product Routes ---
		products := api.Group("/products")
		{
			products.GET("", h.ListProducts)
			products.GET("/:slug", h.GetProduct)
			products.POST("", requireAuth, requireAdmin, h.CreateProduct)
		}

		// --- Image Uploads (product photos, custom designs) ---
		api.POST("/uploads", requireAuth, h.UploadImage)

		// --- Cart Routes ---
		api.POST("/cart/estimate", h.EstimateCart)
		cart := api.Group("/cart", requireAuth)
		{
			cart.GET("", h.GetCart)
			cart.PUT("", h.SaveCart)
			cart.DELETE("", h.ClearCart)
		}

		// --- Order Routes (Login Required) ---
		orders := api.Group("/orders", requireAuth)
		{
			orders.POST("", h.CreateOrder)
			orders.GET("", requireAdmin, h.ListOrders)
			orders.GET("/myorders", h.GetMyOrders)
			orders.GET("/:id", h.GetOrder)
			orders.PUT("/:id/pay", h.PayOrder)
			orders.PUT("/:id/status", requireAdmin, h.UpdateOrderStatus)
			orders.PUT("/:id/cancel", h.CancelOrder)
			orders.PUT("/:id/confirm-delivery", h.ConfirmDelivery)
		}

		// --- Payment Routes (Login Required) ---
		payments := api.Group("/payments", requireAuth)
		{
			payments.POST("/paystack/initialize", h.InitializePaystack)
			payments.GET("/paystack/verify/:reference", h.VerifyPaystack)
			payments.POST("/retry/:orderId", h.RetryPayment)
		}

		// --- Admin Routes ---
		admin := api.Group("/admin", requireAuth, requireAdmin)
		{
			admin.GET("/dashboard-stats", h.GetDashboardStats)
		}

		// --- Gateway Webhooks (Public, Signed) ---
		webhooks := api.Group("/webhooks")
		if opts.WebhookLimiter != nil {
			webhooks.Use(middleware.RateLimit(opts.WebhookLimiter, "webhook", h.Log))
		}
		webhooks.POST("/paystack", h.PaystackWebhook)
	}

	return router
}
