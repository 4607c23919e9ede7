package store

import (
	"context"
	"errors"

	"github.com/voyagen/guidevault/internal/models"
	"github.com/voyagen/guidevault/internal/reconcile"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrBatchTooLarge is returned by ApplyBatch when a single call exceeds the
// store's per-call payload bound.
var ErrBatchTooLarge = errors.New("batch exceeds store payload bound")

// Store defines persistence for sources, channels, and programmes.
type Store interface {
	// CreateOrGetSource creates a source by name if absent and returns its id.
	CreateOrGetSource(ctx context.Context, name, xmltvURL, m3uURL, userAgent string) (int64, error)
	// ListSources returns all sources.
	ListSources(ctx context.Context) ([]models.Source, error)
	// GetSourceByID returns a single source by id.
	GetSourceByID(ctx context.Context, sourceID int64) (*models.Source, error)
	// UpdateSource updates mutable fields of a source.
	UpdateSource(ctx context.Context, sourceID int64, fields SourceUpdate) error
	// DeleteSource deletes a source and cascades to its channels and programmes.
	DeleteSource(ctx context.Context, sourceID int64) error
	// UpdateSourceLastSynced sets last_synced for the source.
	UpdateSourceLastSynced(ctx context.Context, sourceID int64) error

	// UpsertChannel inserts or updates a channel row keyed on
	// (source_id, display_number); returns the row id.
	UpsertChannel(ctx context.Context, ch *models.Channel) (int64, error)
	// RemoveStaleChannels deletes the source's channels whose row ids are not
	// in keepIDs, together with their programmes.
	RemoveStaleChannels(ctx context.Context, sourceID int64, keepIDs []int64) error
	// ResolveChannelRowIDs maps stored channel row ids to the matching feed
	// channels by display-number match. Feed channels with no stored row are
	// absent from the result.
	ResolveChannelRowIDs(ctx context.Context, sourceID int64, channels []models.Channel) (map[int64]models.Channel, error)
	// ListChannels returns a source's channels ordered by display number.
	ListChannels(ctx context.Context, sourceID *int64) ([]models.Channel, error)
	// GetChannelByID returns a single channel by row id.
	GetChannelByID(ctx context.Context, channelID int64) (*models.Channel, error)

	// StoredPrograms returns a channel's programmes sorted ascending by start
	// time. Overlapping rows are returned as-is.
	StoredPrograms(ctx context.Context, channelRowID int64) ([]models.StoredProgram, error)
	// ProgramsInWindow returns a channel's programmes intersecting
	// [fromMs, toMs], sorted by start time.
	ProgramsInWindow(ctx context.Context, channelRowID, fromMs, toMs int64) ([]models.StoredProgram, error)
	// ApplyBatch applies the operations as one atomic unit. Calls carrying
	// more than the documented bound fail with ErrBatchTooLarge.
	ApplyBatch(ctx context.Context, ops []reconcile.Op) error
}

// SourceUpdate holds mutable fields for source updates.
// Pointer fields: nil = don't change, non-nil = set.
type SourceUpdate struct {
	Name      *string
	XmltvURL  *string
	M3uURL    *string
	UserAgent *string
	Enabled   *bool
}
