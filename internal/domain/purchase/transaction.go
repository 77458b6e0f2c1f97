package purchase

import (
	"errors"
	"time"

	"github.com/Zhima-Mochi/gameshop/internal/domain/catalog"
)

var (
	ErrNotFound                = errors.New("purchase: transaction not found")
	ErrConflict                = errors.New("purchase: transaction already exists")
	ErrInvalidStateTransition  = errors.New("purchase: invalid state transition")
	ErrTransactionInProgress   = errors.New("purchase: another purchase is in progress for this player")
	ErrNotCancellable          = errors.New("purchase: transaction can no longer be cancelled")
	ErrInvalidTransactionInput = errors.New("purchase: invalid request")
)

type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseValidating      Phase = "validating"
	PhaseAwaitingPayment Phase = "awaiting_payment"
	PhaseCommitting      Phase = "committing"
	PhaseCommitted       Phase = "committed"
	PhaseRejected        Phase = "rejected"
	PhaseFailed          Phase = "failed"
)

func (p Phase) Terminal() bool {
	return p == PhaseCommitted || p == PhaseRejected || p == PhaseFailed
}

type Result string

const (
	ResultPending   Result = "pending"
	ResultCommitted Result = "committed"
	ResultRejected  Result = "rejected"
	ResultFailed    Result = "failed"
)

type Reason string

const (
	ReasonNone              Reason = ""
	ReasonInsufficientFunds Reason = "insufficient_funds"
	ReasonInventoryFull     Reason = "inventory_full"
	ReasonSlotOccupied      Reason = "slot_occupied"
	ReasonDeclined          Reason = "declined"
	ReasonCancelled         Reason = "cancelled"
	ReasonInvalidArgument   Reason = "invalid_argument"

	// ReasonTransactionInProgress never ends a transaction; it labels the refusal of a
	// second concurrent request (ErrTransactionInProgress).
	ReasonTransactionInProgress Reason = "transaction_in_progress"
)

// Message is the player-facing text for a terminal reason.
func (r Reason) Message() string {
	switch r {
	case ReasonInsufficientFunds:
		return "Not enough gold for this item."
	case ReasonInventoryFull:
		return "Your inventory is full."
	case ReasonSlotOccupied:
		return "The item could not be placed in your inventory. Your gold was refunded."
	case ReasonDeclined:
		return "Payment failed. Please try again."
	case ReasonCancelled:
		return "Purchase cancelled."
	case ReasonInvalidArgument:
		return "The purchase request was invalid."
	case ReasonTransactionInProgress:
		return "Another purchase is still being processed."
	default:
		return ""
	}
}

// Transaction is one purchase attempt. It lives until it reaches a terminal phase and
// is owned by the flow that created it.
type Transaction struct {
	ID             string
	PlayerID       string
	Item           catalog.Item
	Amount         int64
	Reason         Reason
	DeclineReason  string
	// DeclineMessage is the gateway's player-facing text, e.g. which card field is wrong.
	DeclineMessage string
	SlotIndex      int
	CreatedAt      time.Time
	UpdatedAt      time.Time

	state phaseState
}

func New(id, playerID string, item catalog.Item) (*Transaction, error) {
	if id == "" || playerID == "" {
		return nil, ErrInvalidTransactionInput
	}
	if item.Price < 0 {
		return nil, ErrInvalidTransactionInput
	}
	now := time.Now().UTC()
	return &Transaction{
		ID:        id,
		PlayerID:  playerID,
		Item:      item,
		Amount:    item.Price,
		SlotIndex: -1,
		CreatedAt: now,
		UpdatedAt: now,
		state:     validatingState{},
	}, nil
}

func (t *Transaction) Phase() Phase {
	if t.state == nil {
		return PhaseIdle
	}
	return t.state.Phase()
}

func (t *Transaction) Result() Result {
	switch t.Phase() {
	case PhaseCommitted:
		return ResultCommitted
	case PhaseRejected:
		return ResultRejected
	case PhaseFailed:
		return ResultFailed
	default:
		return ResultPending
	}
}

func (t *Transaction) Terminal() bool { return t.Phase().Terminal() }

func (t *Transaction) Validated() error {
	return t.apply(func(s phaseState) (phaseState, error) { return s.OnValidated(t) })
}

func (t *Transaction) Reject(reason Reason) error {
	return t.apply(func(s phaseState) (phaseState, error) { return s.OnRejected(t, reason) })
}

func (t *Transaction) Approve() error {
	return t.apply(func(s phaseState) (phaseState, error) { return s.OnApproved(t) })
}

// Decline records the gateway's refusal. An empty message falls back to the generic
// declined text.
func (t *Transaction) Decline(declineReason, message string) error {
	return t.apply(func(s phaseState) (phaseState, error) { return s.OnDeclined(t, declineReason, message) })
}

func (t *Transaction) Cancel() error {
	return t.apply(func(s phaseState) (phaseState, error) { return s.OnCancelled(t) })
}

func (t *Transaction) Commit(slotIndex int) error {
	return t.apply(func(s phaseState) (phaseState, error) { return s.OnCommitted(t, slotIndex) })
}

func (t *Transaction) FailCommit(reason Reason) error {
	return t.apply(func(s phaseState) (phaseState, error) { return s.OnCommitFailed(t, reason) })
}

// Outcome builds the terminal notification. It is only meaningful once Terminal is true.
func (t *Transaction) Outcome() Outcome {
	o := Outcome{
		TransactionID: t.ID,
		PlayerID:      t.PlayerID,
		ItemKey:       t.Item.Key,
		AssetRef:      t.Item.AssetRef,
		Amount:        t.Amount,
		Result:        t.Result(),
		Reason:        t.Reason,
		DeclineReason: t.DeclineReason,
		Message:       t.Reason.Message(),
	}
	switch {
	case t.Reason == ReasonDeclined && t.DeclineMessage != "":
		o.Message = t.DeclineMessage
	case t.Phase() == PhaseFailed && t.Reason == ReasonInventoryFull:
		// the debit already happened and was credited back
		o.Message += " Your gold was refunded."
	}
	if t.Phase() == PhaseCommitted {
		slot := t.SlotIndex
		o.SlotIndex = &slot
		o.Message = "Purchased " + t.Item.Name + "!"
	}
	return o
}

func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

func (t *Transaction) apply(fn func(phaseState) (phaseState, error)) error {
	cur := t.state
	if cur == nil {
		cur = validatingState{}
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}
	t.state = next
	t.touch()
	return nil
}

func (t *Transaction) touch() {
	t.UpdatedAt = time.Now().UTC()
}
