package payment

import (
	"context"
	"errors"
)

var ErrInvalidAmount = errors.New("payment: amount must be zero or greater")

type Status string

const (
	StatusApproved Status = "approved"
	StatusDeclined Status = "declined"
)

// Decline reasons. They are opaque to players beyond "try again".
const (
	DeclineRandom       = "random_decline"
	DeclineTimeout      = "timeout"
	DeclineInvalidCard  = "invalid_card"
	DeclineGatewayError = "gateway_error"
)

type Decision struct {
	Status Status
	Reason string
	// Message is safe to show to the player.
	Message string
}

func Approved() Decision { return Decision{Status: StatusApproved} }

func Declined(reason, message string) Decision {
	return Decision{Status: StatusDeclined, Reason: reason, Message: message}
}

func (d Decision) Approved() bool { return d.Status == StatusApproved }

// Charge is one authorization request. A zero Card means the player's stored method.
type Charge struct {
	Reference string
	Amount    int64
	Card      Card
}

// Gateway authorizes charges. It never touches balances or inventory.
// Implementations must return once ctx is done.
type Gateway interface {
	Authorize(ctx context.Context, charge Charge) (Decision, error)
}
