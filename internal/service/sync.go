package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/voyagen/guidevault/internal/models"
	"github.com/voyagen/guidevault/internal/reconcile"
	"github.com/voyagen/guidevault/internal/schedule"
)

// SyncMode selects the look-ahead window for a sync run.
type SyncMode string

const (
	// ModeFull syncs the long look-ahead horizon (two-week class).
	ModeFull SyncMode = "full"
	// ModeCurrentOnly syncs a short horizon (one-hour class) so callers get a
	// fast initial result before a full background sync completes.
	ModeCurrentOnly SyncMode = "current_only"
)

// ParseSyncMode validates a mode string from the API or a queued job.
// The empty string means ModeFull.
func ParseSyncMode(s string) (SyncMode, error) {
	switch SyncMode(s) {
	case "":
		return ModeFull, nil
	case ModeFull, ModeCurrentOnly:
		return SyncMode(s), nil
	default:
		return "", fmt.Errorf("unknown sync mode %q", s)
	}
}

// ProgramStore is the store surface the orchestrator needs per channel.
type ProgramStore interface {
	StoredPrograms(ctx context.Context, channelRowID int64) ([]models.StoredProgram, error)
	ApplyBatch(ctx context.Context, ops []reconcile.Op) error
}

// Syncer drives schedule generation, reconciliation, and batched application
// for every channel of a listing.
type Syncer struct {
	store         ProgramStore
	applier       *Applier
	fullWindow    time.Duration
	currentWindow time.Duration
	workers       int
	now           func() time.Time
	logger        zerolog.Logger
}

// NewSyncer wires a Syncer. workers bounds per-channel parallelism; values
// below 1 mean serial execution.
func NewSyncer(s ProgramStore, applier *Applier, fullWindow, currentWindow time.Duration, workers int) *Syncer {
	if workers < 1 {
		workers = 1
	}
	return &Syncer{
		store:         s,
		applier:       applier,
		fullWindow:    fullWindow,
		currentWindow: currentWindow,
		workers:       workers,
		now:           time.Now,
		logger:        log.With().Str("component", "sync").Logger(),
	}
}

// SyncPrograms reconciles every channel in index against the listing for the
// window selected by mode. Channels are independent: one channel's failure is
// logged and collected but never stops the others. Cancellation is honoured
// at channel granularity: an in-flight channel finishes its current batch,
// and no new channel starts after ctx is done.
//
// The returned error aggregates per-channel failures; nil means every channel
// reconciled cleanly.
func (s *Syncer) SyncPrograms(ctx context.Context, index map[int64]models.Channel, listing *models.Listing, mode SyncMode) error {
	startMs := s.now().UnixMilli()
	endMs := startMs + s.window(mode).Milliseconds()

	var (
		mu   sync.Mutex
		errs []error
	)
	g := &errgroup.Group{}
	g.SetLimit(s.workers)

	for rowID, channel := range index {
		if ctx.Err() != nil {
			s.logger.Warn().Msg("sync cancelled; skipping remaining channels")
			mu.Lock()
			errs = append(errs, ctx.Err())
			mu.Unlock()
			break
		}
		g.Go(func() error {
			if err := s.syncChannel(ctx, rowID, channel, listing, startMs, endMs); err != nil {
				s.logger.Error().Err(err).Int64("channel_id", rowID).Str("channel", channel.DisplayName).Msg("channel sync failed")
				mu.Lock()
				errs = append(errs, fmt.Errorf("channel %d (%s): %w", rowID, channel.DisplayName, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (s *Syncer) syncChannel(ctx context.Context, rowID int64, channel models.Channel, listing *models.Listing, startMs, endMs int64) error {
	newPrograms, err := schedule.Generate(channel, listing.Programs, startMs, endMs)
	if err != nil {
		if errors.Is(err, schedule.ErrEmptyCycle) {
			// Data problem on this channel only; nothing to reconcile.
			s.logger.Warn().Int64("channel_id", rowID).Str("channel", channel.DisplayName).Msg("empty repeat cycle, channel skipped")
			return nil
		}
		return fmt.Errorf("generate: %w", err)
	}
	if len(newPrograms) == 0 {
		return nil
	}

	oldPrograms, err := s.store.StoredPrograms(ctx, rowID)
	if err != nil {
		return fmt.Errorf("query stored programs: %w", err)
	}

	ops := reconcile.Reconcile(oldPrograms, newPrograms)
	if len(ops) == 0 {
		s.logger.Debug().Int64("channel_id", rowID).Msg("schedule already up to date")
		return nil
	}
	if err := s.applier.Apply(ctx, ops); err != nil {
		return err
	}
	s.logger.Info().
		Int64("channel_id", rowID).
		Str("channel", channel.DisplayName).
		Int("programs", len(newPrograms)).
		Int("ops", len(ops)).
		Msg("channel reconciled")
	return nil
}

func (s *Syncer) window(mode SyncMode) time.Duration {
	if mode == ModeCurrentOnly {
		return s.currentWindow
	}
	return s.fullWindow
}
