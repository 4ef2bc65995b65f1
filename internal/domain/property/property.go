package property

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("property not found")
var ErrNotOwner = errors.New("property belongs to a different owner")

type Property struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	City        string    `json:"city"`
	Address     string    `json:"address"`
	PriceCents  int64     `json:"priceCents"`
	Bedrooms    int       `json:"bedrooms"`
	Bathrooms   int       `json:"bathrooms"`
	AreaSqm     float64   `json:"areaSqm"`
	Available   bool      `json:"available"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type CreatePropertyRequest struct {
	Title       string  `json:"title" binding:"required,min=3,max=150"`
	Description string  `json:"description" binding:"max=5000"`
	City        string  `json:"city" binding:"required,min=2,max=100"`
	Address     string  `json:"address" binding:"required,max=255"`
	PriceCents  int64   `json:"priceCents" binding:"required,gt=0"`
	Bedrooms    int     `json:"bedrooms" binding:"gte=0"`
	Bathrooms   int     `json:"bathrooms" binding:"gte=0"`
	AreaSqm     float64 `json:"areaSqm" binding:"gte=0"`

	// filled in from the authenticated identity, never from the body
	OwnerID string `json:"-"`
}

type UpdatePropertyRequest struct {
	Title       string  `json:"title" binding:"required,min=3,max=150"`
	Description string  `json:"description" binding:"max=5000"`
	City        string  `json:"city" binding:"required,min=2,max=100"`
	Address     string  `json:"address" binding:"required,max=255"`
	PriceCents  int64   `json:"priceCents" binding:"required,gt=0"`
	Bedrooms    int     `json:"bedrooms" binding:"gte=0"`
	Bathrooms   int     `json:"bathrooms" binding:"gte=0"`
	AreaSqm     float64 `json:"areaSqm" binding:"gte=0"`
	Available   *bool   `json:"available"`
}

// ListFilter narrows the public listing. Pointers distinguish "not set"
// from zero values.
type ListFilter struct {
	City     *string
	MinPrice *int64
	MaxPrice *int64
	Limit    int
}

func NewFromCreateRequest(req CreatePropertyRequest) Property {
	now := time.Now().UTC()

	return Property{
		ID:          uuid.NewString(),
		OwnerID:     req.OwnerID,
		Title:       req.Title,
		Description: req.Description,
		City:        req.City,
		Address:     req.Address,
		PriceCents:  req.PriceCents,
		Bedrooms:    req.Bedrooms,
		Bathrooms:   req.Bathrooms,
		AreaSqm:     req.AreaSqm,
		Available:   true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
