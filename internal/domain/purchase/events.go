package purchase

import "time"

// Outcome is the single notification emitted when a transaction reaches a terminal phase.
type Outcome struct {
	TransactionID string
	PlayerID      string
	ItemKey       string
	AssetRef      string
	Amount        int64
	Result        Result
	Reason        Reason
	DeclineReason string
	Message       string
	// SlotIndex is set only for committed purchases.
	SlotIndex *int
}

// FinishedEvent carries an Outcome through the event bus to the presentation side
// (asset materialization, UI banners).
type FinishedEvent struct {
	Outcome    Outcome
	OccurredAt time.Time
}

func (FinishedEvent) EventName() string { return "purchase.finished" }

func NewFinishedEvent(o Outcome) FinishedEvent {
	return FinishedEvent{
		Outcome:    o,
		OccurredAt: time.Now().UTC(),
	}
}

// EventID keys the event by transaction; one transaction finishes exactly once.
func (e FinishedEvent) EventID() string { return e.Outcome.TransactionID }
