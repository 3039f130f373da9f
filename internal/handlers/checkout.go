package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/checkout"
	"storefront/internal/middleware"
	"storefront/internal/models"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type CheckoutService interface {
	Create(ctx context.Context, in checkout.CreateInput) (*models.Checkout, error)
	ConfirmPayment(ctx context.Context, id string, callerID primitive.ObjectID, status string, details json.RawMessage) (*models.Checkout, error)
	Finalize(ctx context.Context, id string, callerID primitive.ObjectID, idempotencyKey string) (*checkout.FinalizeResult, error)
}

/* =========================
   REQUEST DTOs
========================= */

type lineItemRequest struct {
	ProductID string  `json:"productId" binding:"required"`
	Name      string  `json:"name" binding:"required"`
	Image     string  `json:"image"`
	Price     float64 `json:"price" binding:"gte=0"`
	Quantity  int     `json:"quantity" binding:"required,min=1"`
	Size      string  `json:"size"`
	Color     string  `json:"color"`
}

type shippingAddressRequest struct {
	Address    string `json:"address" binding:"required"`
	City       string `json:"city" binding:"required"`
	PostalCode string `json:"postalCode" binding:"required"`
	Country    string `json:"country" binding:"required"`
}

type createCheckoutRequest struct {
	CheckoutItems   []lineItemRequest      `json:"checkoutItems" binding:"dive"`
	ShippingAddress shippingAddressRequest `json:"shippingAddress"`
	PaymentMethod   string                 `json:"paymentMethod" binding:"required"`
	TotalPrice      float64                `json:"totalPrice" binding:"gte=0"`
}

type confirmPaymentRequest struct {
	PaymentStatus  string          `json:"paymentStatus"`
	PaymentDetails json.RawMessage `json:"paymentDetails"`
}

func (r lineItemRequest) toModel() (models.LineItem, bool) {
	productID, err := primitive.ObjectIDFromHex(strings.TrimSpace(r.ProductID))
	if err != nil {
		return models.LineItem{}, false
	}
	return models.LineItem{
		ProductID: productID,
		Name:      r.Name,
		Image:     r.Image,
		Price:     r.Price,
		Quantity:  r.Quantity,
		Size:      r.Size,
		Color:     r.Color,
	}, true
}

/* =========================
   CREATE CHECKOUT
========================= */

func CreateCheckout(svc CheckoutService, db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /checkout"
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

		var req createCheckoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		items := make([]models.LineItem, 0, len(req.CheckoutItems))
		for _, item := range req.CheckoutItems {
			model, ok := item.toModel()
			if !ok {
				respondWithError(c, http.StatusBadRequest, route, "invalid productId")
				return
			}
			items = append(items, model)
		}

		ctx, cancel := storeContext(c)
		defer cancel()

		created, err := svc.Create(ctx, checkout.CreateInput{
			User:  userID,
			Items: items,
			ShippingAddress: models.ShippingAddress{
				Address:    req.ShippingAddress.Address,
				City:       req.ShippingAddress.City,
				PostalCode: req.ShippingAddress.PostalCode,
				Country:    req.ShippingAddress.Country,
			},
			PaymentMethod: req.PaymentMethod,
			TotalPrice:    req.TotalPrice,
		})
		if err != nil {
			respondWithAppError(c, route, err, http.StatusConflict)
			return
		}

		log.Printf("[%s] created checkout=%s", route, created.ID.Hex())
		c.JSON(http.StatusCreated, created)
	}
}

/* =========================
   CONFIRM PAYMENT
========================= */

func ConfirmPayment(svc CheckoutService, db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /checkout/:id/pay"
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

		var req confirmPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid request body")
			return
		}

		ctx, cancel := storeContext(c)
		defer cancel()

		updated, err := svc.ConfirmPayment(ctx, c.Param("id"), userID, req.PaymentStatus, req.PaymentDetails)
		if err != nil {
			respondWithAppError(c, route, err, http.StatusConflict)
			return
		}

		c.JSON(http.StatusOK, updated)
	}
}

/* =========================
   FINALIZE CHECKOUT
========================= */

func FinalizeCheckout(svc CheckoutService, db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /checkout/:id/finalize"
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

		key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
		result, err := svc.Finalize(ctx, c.Param("id"), userID, key)
		if err != nil {
			respondWithAppError(c, route, err, http.StatusBadRequest)
			return
		}

		if result.Replayed {
			c.JSON(http.StatusOK, result.Order)
			return
		}
		c.JSON(http.StatusCreated, result.Order)
	}
}
