package service

import (
	"context"
	"fmt"

	"github.com/voyagen/guidevault/internal/reconcile"
	"github.com/voyagen/guidevault/internal/store"
)

// BatchStore is the single store operation the applier needs.
type BatchStore interface {
	ApplyBatch(ctx context.Context, ops []reconcile.Op) error
}

// Applier submits reconciliation operations to the store in bounded batches.
// Each batch is one atomic store call; there is no rollback across batches.
type Applier struct {
	store     BatchStore
	batchSize int
}

// NewApplier creates an Applier. batchSize caps operations per store call;
// values outside (0, store.MaxBatchOps] fall back to store.MaxBatchOps.
func NewApplier(s BatchStore, batchSize int) *Applier {
	if batchSize <= 0 || batchSize > store.MaxBatchOps {
		batchSize = store.MaxBatchOps
	}
	return &Applier{store: s, batchSize: batchSize}
}

// Apply submits ops in order, chunked to the configured batch size. On the
// first failed batch it stops immediately and returns the failure: batches
// already committed stay committed, and the caller must treat the sync as
// partially applied and retry it whole on the next attempt. The retry
// recomputes the diff and naturally skips records that already match.
func (a *Applier) Apply(ctx context.Context, ops []reconcile.Op) error {
	for start := 0; start < len(ops); start += a.batchSize {
		end := start + a.batchSize
		if end > len(ops) {
			end = len(ops)
		}
		if err := a.store.ApplyBatch(ctx, ops[start:end]); err != nil {
			return fmt.Errorf("apply batch %d-%d of %d ops: %w", start, end, len(ops), err)
		}
	}
	return nil
}
