package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/guidevault/internal/models"
	"github.com/voyagen/guidevault/internal/reconcile"
)

// fakeProgramStore serves canned stored programmes per channel and records
// every applied operation, with optional per-channel query failures.
type fakeProgramStore struct {
	mu      sync.Mutex
	stored  map[int64][]models.StoredProgram
	failFor map[int64]bool // channels whose StoredPrograms query fails
	applied []reconcile.Op
}

func newFakeProgramStore() *fakeProgramStore {
	return &fakeProgramStore{
		stored:  make(map[int64][]models.StoredProgram),
		failFor: make(map[int64]bool),
	}
}

func (f *fakeProgramStore) StoredPrograms(_ context.Context, channelRowID int64) ([]models.StoredProgram, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[channelRowID] {
		return nil, errors.New("query failed")
	}
	return f.stored[channelRowID], nil
}

func (f *fakeProgramStore) ApplyBatch(_ context.Context, ops []reconcile.Op) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, ops...)
	return nil
}

func (f *fakeProgramStore) appliedForChannel(channelID int64) []reconcile.Op {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []reconcile.Op
	for _, op := range f.applied {
		if op.Program.ChannelID == channelID {
			out = append(out, op)
		}
	}
	return out
}

func testSyncer(f *fakeProgramStore) *Syncer {
	s := NewSyncer(f, NewApplier(f, 100), 14*24*time.Hour, time.Hour, 2)
	// Fixed clock so window arithmetic is reproducible.
	s.now = func() time.Time { return time.UnixMilli(0) }
	return s
}

func listingFor(channels ...models.Channel) (*models.Listing, map[int64]models.Channel) {
	index := make(map[int64]models.Channel, len(channels))
	listing := &models.Listing{}
	for _, ch := range channels {
		index[ch.RowID] = ch
		listing.Channels = append(listing.Channels, ch)
		listing.Programs = append(listing.Programs, models.RawProgram{
			ChannelFeedID:     ch.FeedID,
			Title:             "Show " + ch.FeedID,
			StartTimeUtcMilli: 0,
			EndTimeUtcMilli:   30 * int64(time.Minute/time.Millisecond),
		})
	}
	return listing, index
}

func TestSyncProgramsInsertsGeneratedSchedule(t *testing.T) {
	f := newFakeProgramStore()
	s := testSyncer(f)

	ch := models.Channel{RowID: 1, FeedID: "a", DisplayName: "Alpha"}
	listing, index := listingFor(ch)

	require.NoError(t, s.SyncPrograms(context.Background(), index, listing, ModeFull))
	ops := f.appliedForChannel(1)
	require.Len(t, ops, 1)
	assert.Equal(t, reconcile.OpInsert, ops[0].Kind)
	assert.Equal(t, "Show a", ops[0].Program.Title)
}

func TestSyncProgramsCurrentOnlyUsesShortWindow(t *testing.T) {
	f := newFakeProgramStore()
	s := testSyncer(f)

	ch := models.Channel{RowID: 1, FeedID: "a", DisplayName: "Alpha"}
	listing := &models.Listing{
		Channels: []models.Channel{ch},
		Programs: []models.RawProgram{{
			// Starts two hours out: inside the full window, outside the
			// one-hour current window.
			ChannelFeedID:     "a",
			Title:             "Later",
			StartTimeUtcMilli: 2 * int64(time.Hour/time.Millisecond),
			EndTimeUtcMilli:   3 * int64(time.Hour/time.Millisecond),
		}},
	}
	index := map[int64]models.Channel{1: ch}

	require.NoError(t, s.SyncPrograms(context.Background(), index, listing, ModeCurrentOnly))
	assert.Empty(t, f.applied, "programme outside the current window must not sync")

	require.NoError(t, s.SyncPrograms(context.Background(), index, listing, ModeFull))
	assert.Len(t, f.appliedForChannel(1), 1)
}

// A failure on one channel is reported but never stops the others.
func TestSyncProgramsChannelFailuresAreIndependent(t *testing.T) {
	f := newFakeProgramStore()
	f.failFor[1] = true
	s := testSyncer(f)

	chA := models.Channel{RowID: 1, FeedID: "a", DisplayName: "Broken"}
	chB := models.Channel{RowID: 2, FeedID: "b", DisplayName: "Healthy"}
	listing, index := listingFor(chA, chB)

	err := s.SyncPrograms(context.Background(), index, listing, ModeFull)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Broken")
	assert.Len(t, f.appliedForChannel(2), 1, "healthy channel still synced")
}

func TestSyncProgramsEmptyCycleSkipsChannelWithoutError(t *testing.T) {
	f := newFakeProgramStore()
	s := testSyncer(f)

	ch := models.Channel{RowID: 1, FeedID: "a", DisplayName: "Looper", RepeatPrograms: true}
	// Zero-duration cycle: generation fails with ErrEmptyCycle, which is a
	// data problem on that channel only.
	listing := &models.Listing{
		Channels: []models.Channel{ch},
		Programs: []models.RawProgram{{ChannelFeedID: "a", Title: "Nothing", StartTimeUtcMilli: 5, EndTimeUtcMilli: 5}},
	}

	err := s.SyncPrograms(context.Background(), map[int64]models.Channel{1: ch}, listing, ModeFull)
	require.NoError(t, err)
	assert.Empty(t, f.applied)
}

func TestSyncProgramsUpToDateChannelAppliesNothing(t *testing.T) {
	f := newFakeProgramStore()
	s := testSyncer(f)

	ch := models.Channel{RowID: 1, FeedID: "a", DisplayName: "Alpha"}
	listing, index := listingFor(ch)

	// Pre-populate the store with exactly the schedule generation produces.
	require.NoError(t, s.SyncPrograms(context.Background(), index, listing, ModeFull))
	inserted := f.appliedForChannel(1)
	require.Len(t, inserted, 1)
	f.stored[1] = []models.StoredProgram{{ID: 42, Program: inserted[0].Program}}
	f.applied = nil

	require.NoError(t, s.SyncPrograms(context.Background(), index, listing, ModeFull))
	assert.Empty(t, f.applied, "matching store state must reconcile to zero ops")
}

func TestSyncProgramsHonoursCancellation(t *testing.T) {
	f := newFakeProgramStore()
	s := testSyncer(f)

	ch := models.Channel{RowID: 1, FeedID: "a", DisplayName: "Alpha"}
	listing, index := listingFor(ch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.SyncPrograms(ctx, index, listing, ModeFull)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.applied, "no channel may start after cancellation")
}

func TestParseSyncMode(t *testing.T) {
	mode, err := ParseSyncMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeFull, mode)

	mode, err = ParseSyncMode("current_only")
	require.NoError(t, err)
	assert.Equal(t, ModeCurrentOnly, mode)

	_, err = ParseSyncMode("hourly")
	require.Error(t, err)
}
