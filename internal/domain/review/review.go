package review

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("review not found")

// one review per customer per property
var ErrAlreadyReviewed = errors.New("property already reviewed by this customer")

type Review struct {
	ID         string    `json:"id"`
	PropertyID string    `json:"propertyId"`
	CustomerID string    `json:"customerId"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type CreateReviewRequest struct {
	PropertyID string `json:"-"`
	CustomerID string `json:"-"`
	Rating     int    `json:"rating" binding:"required,min=1,max=5"`
	Comment    string `json:"comment" binding:"max=1000"`
}

func NewFromCreateRequest(req CreateReviewRequest) Review {
	return Review{
		ID:         uuid.NewString(),
		PropertyID: req.PropertyID,
		CustomerID: req.CustomerID,
		Rating:     req.Rating,
		Comment:    req.Comment,
		CreatedAt:  time.Now().UTC(),
	}
}
