package wishlist

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("wishlist item not found")

type Item struct {
	CustomerID string    `json:"customerId"`
	PropertyID string    `json:"propertyId"`
	AddedAt    time.Time `json:"addedAt"`
}
