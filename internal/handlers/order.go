package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/middleware"
	"storefront/internal/models"
)

type OrderService interface {
	ListMine(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error)
	Get(ctx context.Context, id string, callerID primitive.ObjectID, isAdmin bool) (*models.OrderDetail, error)
}

func GetMyOrders(svc OrderService, db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders/my-orders"
		defer handlePanic(c, route)

		if err := ensureDBConnection(c.Request.Context(), db); err != nil {
			respondWithError(c, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		userID, ok := middleware.CallerID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		ctx, cancel := storeContext(c)
		defer cancel()

		orders, err := svc.ListMine(ctx, userID)
		if err != nil {
			respondWithAppError(c, route, err, http.StatusConflict)
			return
		}

		log.Printf("[%s] returning %d orders", route, len(orders))
		c.JSON(http.StatusOK, orders)
	}
}

func GetOrderByID(svc OrderService, db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders/:id"
		defer handlePanic(c, route)

		if err := ensureDBConnection(c.Request.Context(), db); err != nil {
			respondWithError(c, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		userID, ok := middleware.CallerID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		ctx, cancel := storeContext(c)
		defer cancel()

		order, err := svc.Get(ctx, c.Param("id"), userID, middleware.IsAdmin(c))
		if err != nil {
			respondWithAppError(c, route, err, http.StatusConflict)
			return
		}

		c.JSON(http.StatusOK, order)
	}
}
