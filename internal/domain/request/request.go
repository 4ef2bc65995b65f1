package request

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

var ErrNotFound = errors.New("viewing request not found")

// a customer can only have one open request per property at a time
var ErrAlreadyRequested = errors.New("request already exists for this property")

var ErrInvalidTransition = errors.New("invalid status transition")

// ViewingRequest is a customer asking an owner to see a property.
// pending -> approved | rejected (owner), pending -> cancelled (customer).
type ViewingRequest struct {
	ID         string    `json:"id"`
	PropertyID string    `json:"propertyId"`
	CustomerID string    `json:"customerId"`
	Message    string    `json:"message,omitempty"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type CreateRequest struct {
	PropertyID string `json:"-"`
	CustomerID string `json:"-"`
	Message    string `json:"message" binding:"max=500"`
}

func CanTransition(from, to Status) bool {
	if from != StatusPending {
		return false
	}
	return to == StatusApproved || to == StatusRejected || to == StatusCancelled
}

func NewFromCreateRequest(req CreateRequest) ViewingRequest {
	now := time.Now().UTC()
	return ViewingRequest{
		ID:         uuid.NewString(),
		PropertyID: req.PropertyID,
		CustomerID: req.CustomerID,
		Message:    req.Message,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
