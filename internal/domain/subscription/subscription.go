package subscription

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Plan string

const (
	PlanBasic   Plan = "basic"
	PlanPremium Plan = "premium"
)

var ErrNoActiveSubscription = errors.New("no active subscription")
var ErrInvalidPlan = errors.New("unknown subscription plan")

// plan durations are fixed; payment gateway integration stays outside,
// this is bookkeeping of payments that already happened.

func PlanDuration(p Plan) (time.Duration, error) {
	switch p {
	case PlanBasic, PlanPremium:
		return 30 * 24 * time.Hour, nil
	default:
		return 0, ErrInvalidPlan
	}
}

type Subscription struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Plan        Plan      `json:"plan"`
	AmountCents int64     `json:"amountCents"`
	PaidAt      time.Time `json:"paidAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (s Subscription) IsActive(ref time.Time) bool {
	return ref.Before(s.ExpiresAt)
}

type RecordPaymentRequest struct {
	OwnerID     string `json:"-"`
	Plan        Plan   `json:"plan" binding:"required,oneof=basic premium"`
	AmountCents int64  `json:"amountCents" binding:"required,gt=0"`
	Reference   string `json:"reference" binding:"required"`
}

func NewFromPayment(req RecordPaymentRequest) (Subscription, error) {
	d, err := PlanDuration(req.Plan)
	if err != nil {
		return Subscription{}, err
	}

	now := time.Now().UTC()

	return Subscription{
		ID:          uuid.NewString(),
		OwnerID:     req.OwnerID,
		Plan:        req.Plan,
		AmountCents: req.AmountCents,
		PaidAt:      now,
		ExpiresAt:   now.Add(d),
	}, nil
}
