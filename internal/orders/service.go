// Package orders serves read-only order history.
package orders

import (
	"context"
	"errors"
	"log"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/repository"
)

type Service struct {
	orders repository.OrderRepository
	users  repository.UserRepository
}

func NewService(orders repository.OrderRepository, users repository.UserRepository) *Service {
	return &Service{orders: orders, users: users}
}

// ListMine returns the caller's orders newest first, never nil.
func (s *Service) ListMine(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error) {
	list, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Store("server error", err)
	}
	if list == nil {
		list = []models.Order{}
	}
	return list, nil
}

// Get returns one order with its owner attached. Orders owned by someone
// else are reported as missing unless the caller is an admin.
func (s *Service) Get(ctx context.Context, id string, callerID primitive.ObjectID, isAdmin bool) (*models.OrderDetail, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperr.NotFound("order not found")
	}

	order, err := s.orders.FindByID(ctx, oid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("order not found")
		}
		return nil, apperr.Store("server error", err)
	}
	if order.User != callerID && !isAdmin {
		log.Printf("[ORDERS] [WARN] order=%s requested by non-owner user=%s", oid.Hex(), callerID.Hex())
		return nil, apperr.NotFound("order not found")
	}

	owner := models.OrderOwner{ID: order.User}
	user, err := s.users.FindByID(ctx, order.User)
	switch {
	case err == nil:
		owner = user.Public()
	case errors.Is(err, repository.ErrNotFound):
		log.Printf("[ORDERS] [WARN] order=%s owner user=%s missing", oid.Hex(), order.User.Hex())
	default:
		return nil, apperr.Store("server error", err)
	}

	return &models.OrderDetail{Order: *order, User: owner}, nil
}
