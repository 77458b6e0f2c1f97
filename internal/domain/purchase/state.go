package purchase

// phaseState implements the state pattern for the purchase lifecycle:
// validating -> awaiting_payment -> committing -> {committed | rejected | failed}.
type phaseState interface {
	Phase() Phase
	OnValidated(t *Transaction) (phaseState, error)
	OnRejected(t *Transaction, reason Reason) (phaseState, error)
	OnApproved(t *Transaction) (phaseState, error)
	OnDeclined(t *Transaction, declineReason, message string) (phaseState, error)
	OnCancelled(t *Transaction) (phaseState, error)
	OnCommitted(t *Transaction, slotIndex int) (phaseState, error)
	OnCommitFailed(t *Transaction, reason Reason) (phaseState, error)
}

// terminal rejects every transition; terminal states embed it.
type terminal struct{}

func (terminal) OnValidated(*Transaction) (phaseState, error) { return nil, ErrInvalidStateTransition }
func (terminal) OnRejected(*Transaction, Reason) (phaseState, error) {
	return nil, ErrInvalidStateTransition
}
func (terminal) OnApproved(*Transaction) (phaseState, error) { return nil, ErrInvalidStateTransition }
func (terminal) OnDeclined(*Transaction, string, string) (phaseState, error) {
	return nil, ErrInvalidStateTransition
}
func (terminal) OnCancelled(*Transaction) (phaseState, error) { return nil, ErrInvalidStateTransition }
func (terminal) OnCommitted(*Transaction, int) (phaseState, error) {
	return nil, ErrInvalidStateTransition
}
func (terminal) OnCommitFailed(*Transaction, Reason) (phaseState, error) {
	return nil, ErrInvalidStateTransition
}

type validatingState struct{ terminal }

func (validatingState) Phase() Phase { return PhaseValidating }

func (validatingState) OnValidated(*Transaction) (phaseState, error) {
	return awaitingPaymentState{}, nil
}

func (validatingState) OnRejected(t *Transaction, reason Reason) (phaseState, error) {
	t.Reason = reason
	return rejectedState{}, nil
}

type awaitingPaymentState struct{ terminal }

func (awaitingPaymentState) Phase() Phase { return PhaseAwaitingPayment }

func (awaitingPaymentState) OnApproved(*Transaction) (phaseState, error) {
	return committingState{}, nil
}

func (awaitingPaymentState) OnDeclined(t *Transaction, declineReason, message string) (phaseState, error) {
	t.Reason = ReasonDeclined
	t.DeclineReason = declineReason
	t.DeclineMessage = message
	return failedState{}, nil
}

func (awaitingPaymentState) OnCancelled(t *Transaction) (phaseState, error) {
	t.Reason = ReasonCancelled
	return rejectedState{}, nil
}

type committingState struct{ terminal }

func (committingState) Phase() Phase { return PhaseCommitting }

func (committingState) OnCommitted(t *Transaction, slotIndex int) (phaseState, error) {
	t.Reason = ReasonNone
	t.SlotIndex = slotIndex
	return committedState{}, nil
}

func (committingState) OnCommitFailed(t *Transaction, reason Reason) (phaseState, error) {
	t.Reason = reason
	return failedState{}, nil
}

type committedState struct{ terminal }

func (committedState) Phase() Phase { return PhaseCommitted }

type rejectedState struct{ terminal }

func (rejectedState) Phase() Phase { return PhaseRejected }

type failedState struct{ terminal }

func (failedState) Phase() Phase { return PhaseFailed }
