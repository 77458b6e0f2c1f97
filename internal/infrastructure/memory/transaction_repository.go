package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Zhima-Mochi/gameshop/internal/domain/purchase"
)

type TransactionRepository struct {
	mu           sync.RWMutex
	transactions map[string]*purchase.Transaction
}

func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{
		transactions: make(map[string]*purchase.Transaction),
	}
}

func (r *TransactionRepository) Insert(ctx context.Context, tx *purchase.Transaction) error {
	_ = ctx
	if tx == nil || tx.ID == "" {
		return fmt.Errorf("transaction repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.transactions[tx.ID]; exists {
		return purchase.ErrConflict
	}
	r.transactions[tx.ID] = tx.Clone()
	return nil
}

func (r *TransactionRepository) Get(ctx context.Context, id string) (*purchase.Transaction, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, ok := r.transactions[id]
	if !ok {
		return nil, purchase.ErrNotFound
	}
	return tx.Clone(), nil
}

func (r *TransactionRepository) Update(ctx context.Context, tx *purchase.Transaction) error {
	_ = ctx
	if tx == nil || tx.ID == "" {
		return fmt.Errorf("transaction repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.transactions[tx.ID]; !exists {
		return purchase.ErrNotFound
	}
	r.transactions[tx.ID] = tx.Clone()
	return nil
}
