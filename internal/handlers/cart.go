package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/cart"
	"storefront/internal/middleware"
	"storefront/internal/models"
)

type CartService interface {
	Get(ctx context.Context, owner models.CartOwner) (*models.Cart, error)
	Add(ctx context.Context, in cart.AddInput) (*models.Cart, error)
	UpdateQuantity(ctx context.Context, owner models.CartOwner, key models.LineKey, quantity int) (*models.Cart, error)
	Remove(ctx context.Context, owner models.CartOwner, key models.LineKey) (*models.Cart, error)
	Merge(ctx context.Context, guestID string, userID primitive.ObjectID) (*models.Cart, error)
}

type addToCartRequest struct {
	ProductID string   `json:"productId" binding:"required"`
	Quantity  int      `json:"quantity" binding:"required,min=1"`
	Size      string   `json:"size"`
	Color     string   `json:"color"`
	Name      string   `json:"name"`
	Image     string   `json:"image"`
	Price     *float64 `json:"price" binding:"omitempty,gte=0"`
	GuestID   string   `json:"guestId"`
}

type updateCartRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  *int   `json:"quantity" binding:"required,gte=0"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	GuestID   string `json:"guestId"`
}

type removeFromCartRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	GuestID   string `json:"guestId"`
}

type mergeCartRequest struct {
	GuestID string `json:"guestId" binding:"required"`
}

// cartOwner resolves who a cart request acts for. An authenticated caller
// always wins over a guest id from the request.
func cartOwner(c *gin.Context, guestID string) models.CartOwner {
	if userID, ok := middleware.CallerID(c); ok {
		return models.UserOwner(userID)
	}
	guestID = strings.TrimSpace(guestID)
	if guestID == "" {
		guestID = strings.TrimSpace(c.Query("guestId"))
	}
	if guestID == "" {
		return models.CartOwner{}
	}
	return models.GuestOwner(guestID)
}

func lineKey(productID, size, color string) (models.LineKey, bool) {
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(productID))
	if err != nil {
		return models.LineKey{}, false
	}
	return models.LineKey{ProductID: oid, Size: size, Color: color}, true
}

func GetCart(svc CartService, db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /cart"
		defer handlePanic(c, route)

		if err := ensureDBConnection(c.Request.Context(), db); err != nil {
			respondWithError(c, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		owner := cartOwner(c, "")
		if owner.IsZero() {
			respondWithError(c, http.StatusBadRequest, route, "user ID or guest ID is required")
			return
		}

		ctx, cancel := storeContext(c)
		defer cancel()

		result, err := svc.Get(ctx, owner)
		if err != nil {
			respondWithAppError(c, route, err, http.StatusConflict)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func AddToCart(svc CartService, db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /cart"
		defer handlePanic(c, route)

		if err := ensureDBConnection(c.Request.Context(), db); err != nil {
			respondWithError(c, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		var req addToCartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		productID, err := primitive.ObjectIDFromHex(strings.TrimSpace(req.ProductID))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid productId")
			return
		}

		ctx, cancel := storeContext(c)
		defer cancel()

		result, err := svc.Add(ctx, cart.AddInput{
			Owner:     cartOwner(c, req.GuestID),
			ProductID: productID,
			Quantity:  req.Quantity,
			Size:      req.Size,
			Color:     req.Color,
			Name:      req.Name,
			Image:     req.Image,
			Price:     req.Price,
		})
		if err != nil {
			respondWithAppError(c, route, err, http.StatusConflict)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func UpdateCart(svc CartService, db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /cart"
		defer handlePanic(c, route)

		if err := ensureDBConnection(c.Request.Context(), db); err != nil {
			respondWithError(c, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		var req updateCartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		key, ok := lineKey(req.ProductID, req.Size, req.Color)
		if !ok {
			respondWithError(c, http.StatusBadRequest, route, "invalid productId")
			return
		}
		owner := cartOwner(c, req.GuestID)
		if owner.IsZero() {
			respondWithError(c, http.StatusBadRequest, route, "user ID or guest ID is required")
			return
		}

		ctx, cancel := storeContext(c)
		defer cancel()

		result, err := svc.UpdateQuantity(ctx, owner, key, *req.Quantity)
		if err != nil {
			respondWithAppError(c, route, err, http.StatusConflict)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func RemoveFromCart(svc CartService, db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /cart"
		defer handlePanic(c, route)

		if err := ensureDBConnection(c.Request.Context(), db); err != nil {
			respondWithError(c, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		var req removeFromCartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		key, ok := lineKey(req.ProductID, req.Size, req.Color)
		if !ok {
			respondWithError(c, http.StatusBadRequest, route, "invalid productId")
			return
		}
		owner := cartOwner(c, req.GuestID)
		if owner.IsZero() {
			respondWithError(c, http.StatusBadRequest, route, "user ID or guest ID is required")
			return
		}

		ctx, cancel := storeContext(c)
		defer cancel()

		result, err := svc.Remove(ctx, owner, key)
		if err != nil {
			respondWithAppError(c, route, err, http.StatusConflict)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func MergeCart(svc CartService, db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /cart/merge"
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

		var req mergeCartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		ctx, cancel := storeContext(c)
		defer cancel()

		result, err := svc.Merge(ctx, req.GuestID, userID)
		if err != nil {
			respondWithAppError(c, route, err, http.StatusConflict)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
