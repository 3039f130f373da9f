package handlers

import (
	"github.com/gin-gonic/gin"

	"storefront/internal/metrics"
	"storefront/internal/middleware"
)

type Dependencies struct {
	Checkouts CheckoutService
	Orders    OrderService
	Carts     CartService
	Products  ProductCatalog
	DB        Pinger
	Metrics   *metrics.ServerMetrics
	JWTSecret string
}

// NewRouter mounts every route at the root and again under /api.
func NewRouter(d Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), middleware.RequestID())
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	r.GET("/health", Health(d.DB))

	mount(r.Group("/"), d)
	mount(r.Group("/api"), d)
	return r
}

func mount(g *gin.RouterGroup, d Dependencies) {
	g.GET("/products", GetProducts(d.Products, d.DB))
	g.GET("/products/:id", GetProductByID(d.Products, d.DB))

	auth := middleware.UserAuth(d.JWTSecret)

	checkout := g.Group("/checkout")
	checkout.Use(auth)
	{
		checkout.POST("", CreateCheckout(d.Checkouts, d.DB))
		checkout.PUT("/:id/pay", ConfirmPayment(d.Checkouts, d.DB))
		checkout.POST("/:id/finalize", FinalizeCheckout(d.Checkouts, d.DB))
	}

	orders := g.Group("/orders")
	orders.Use(auth)
	{
		orders.GET("/my-orders", GetMyOrders(d.Orders, d.DB))
		orders.GET("/:id", GetOrderByID(d.Orders, d.DB))
	}

	cart := g.Group("/cart")
	{
		optional := middleware.OptionalUserAuth(d.JWTSecret)
		cart.GET("", optional, GetCart(d.Carts, d.DB))
		cart.POST("", optional, AddToCart(d.Carts, d.DB))
		cart.PUT("", optional, UpdateCart(d.Carts, d.DB))
		cart.DELETE("", optional, RemoveFromCart(d.Carts, d.DB))
		cart.POST("/merge", auth, MergeCart(d.Carts, d.DB))
	}
}
