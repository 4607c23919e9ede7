// Package reconcile diffs a channel's stored programmes against a freshly
// generated schedule and produces the insert/update/delete operations that
// convert the old state into the new one while keeping row identity stable
// for programmes that merely shifted or changed metadata.
package reconcile

import "github.com/voyagen/guidevault/internal/models"

// OpKind discriminates the three store operations.
type OpKind int

const (
	OpInsert OpKind = iota
	OpUpdate
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Op is one store mutation. ProgramID is set for updates and deletes; Program
// carries the new row content for inserts and updates.
type Op struct {
	Kind      OpKind
	ProgramID int64
	Program   models.Program
}

// Reconcile compares oldPrograms (the channel's current store state) with
// newPrograms (the generated schedule) and returns the operations to apply,
// in order. Both inputs must be sorted ascending by start time; the store and
// the schedule generator both guarantee that ordering.
//
// The merge is greedy, single-pass and non-backtracking: on pathological
// orderings it can emit a delete+insert pair where an update would have
// sufficed. The update-vs-delete choice decides whether external
// per-programme metadata survives, so any change here changes user-visible
// behaviour.
func Reconcile(oldPrograms []models.StoredProgram, newPrograms []models.Program) []Op {
	if len(newPrograms) == 0 {
		return nil
	}

	// Programmes that ended before the new window opens are reaped by the
	// store on its own schedule; skip them without emitting deletes.
	oldIdx := 0
	for oldIdx < len(oldPrograms) && oldPrograms[oldIdx].EndTimeUtcMilli <= newPrograms[0].StartTimeUtcMilli {
		oldIdx++
	}

	var ops []Op
	newIdx := 0
	for newIdx < len(newPrograms) {
		newProgram := newPrograms[newIdx]
		if oldIdx >= len(oldPrograms) {
			ops = append(ops, Op{Kind: OpInsert, Program: newProgram})
			newIdx++
			continue
		}
		oldProgram := oldPrograms[oldIdx]
		switch {
		case oldProgram.Program.Equal(newProgram):
			// Exact match, nothing to reconcile.
			oldIdx++
			newIdx++
		case needsUpdate(oldProgram, newProgram):
			// Partial match: update in place so settings tied to the old
			// row id survive.
			ops = append(ops, Op{Kind: OpUpdate, ProgramID: oldProgram.ID, Program: newProgram})
			oldIdx++
			newIdx++
		case oldProgram.EndTimeUtcMilli < newProgram.EndTimeUtcMilli:
			// No match; drop the old row and let the next old programme try
			// against the same new one.
			ops = append(ops, Op{Kind: OpDelete, ProgramID: oldProgram.ID})
			oldIdx++
		default:
			// No surviving old programme can match this new one.
			ops = append(ops, Op{Kind: OpInsert, Program: newProgram})
			newIdx++
		}
	}
	return ops
}

// needsUpdate reports whether the old row should be rewritten in place with
// the new content: same title (case-sensitive) and overlapping intervals.
// A retitled-and-moved programme intentionally falls through to delete+insert.
func needsUpdate(oldProgram models.StoredProgram, newProgram models.Program) bool {
	return oldProgram.Title == newProgram.Title &&
		oldProgram.StartTimeUtcMilli <= newProgram.EndTimeUtcMilli &&
		newProgram.StartTimeUtcMilli <= oldProgram.EndTimeUtcMilli
}
