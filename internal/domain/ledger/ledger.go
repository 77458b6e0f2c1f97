package ledger

import (
	"errors"
	"math"
	"sync/atomic"
)

var (
	ErrInvalidArgument   = errors.New("ledger: amount must be zero or greater")
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrBalanceOverflow   = errors.New("ledger: balance overflow")
)

// Ledger holds a player's gold. Reads are lock-free; Debit compares and swaps the same
// value it checked, so a concurrent spend can never push the balance below zero.
type Ledger struct {
	balance atomic.Int64
}

func New(initial int64) (*Ledger, error) {
	if initial < 0 {
		return nil, ErrInvalidArgument
	}
	l := &Ledger{}
	l.balance.Store(initial)
	return l, nil
}

func (l *Ledger) Balance() int64 {
	return l.balance.Load()
}

func (l *Ledger) CanAfford(amount int64) (bool, error) {
	if amount < 0 {
		return false, ErrInvalidArgument
	}
	return l.balance.Load() >= amount, nil
}

func (l *Ledger) Debit(amount int64) error {
	if amount < 0 {
		return ErrInvalidArgument
	}
	for {
		cur := l.balance.Load()
		if cur < amount {
			return ErrInsufficientFunds
		}
		if l.balance.CompareAndSwap(cur, cur-amount) {
			return nil
		}
	}
}

func (l *Ledger) Credit(amount int64) error {
	if amount < 0 {
		return ErrInvalidArgument
	}
	for {
		cur := l.balance.Load()
		if cur > math.MaxInt64-amount {
			return ErrBalanceOverflow
		}
		if l.balance.CompareAndSwap(cur, cur+amount) {
			return nil
		}
	}
}
