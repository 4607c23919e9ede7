package service

import (
	"context"
	"fmt"
	"time"

	"github.com/voyagen/guidevault/internal/fetcher"
	"github.com/voyagen/guidevault/internal/models"
	"github.com/voyagen/guidevault/internal/store"
)

// Ingest runs one full sync of a source: fetch the listing, reconcile the
// channel rows against the feed, then reconcile every channel's programmes
// for the window selected by mode. A fetch or parse failure aborts the whole
// run; no partial listing is ever applied.
//
// Channel rows are updated in place (keyed on display number) so row ids stay
// stable across syncs; channels that vanished from the feed are removed along
// with their programmes.
func Ingest(ctx context.Context, s store.Store, syncer *Syncer, src models.Source, userAgent string, timeout time.Duration, mode SyncMode) (channelCount int, err error) {
	if src.XmltvURL == "" {
		return 0, fmt.Errorf("source %d has no XMLTV URL", src.ID)
	}
	if src.UserAgent != "" {
		userAgent = src.UserAgent
	}

	listing, err := fetcher.FetchListing(ctx, src.XmltvURL, src.M3uURL, userAgent, timeout)
	if err != nil {
		return 0, fmt.Errorf("fetch listing: %w", err)
	}

	keepIDs := make([]int64, 0, len(listing.Channels))
	for i := range listing.Channels {
		// Allow graceful shutdown between rows during long ingests.
		if err := ctx.Err(); err != nil {
			return channelCount, fmt.Errorf("ingest cancelled: %w", err)
		}
		ch := &listing.Channels[i]
		ch.SourceID = src.ID
		id, err := s.UpsertChannel(ctx, ch)
		if err != nil {
			return channelCount, fmt.Errorf("UpsertChannel: %w", err)
		}
		ch.RowID = id
		keepIDs = append(keepIDs, id)
		channelCount++
	}

	if err := s.RemoveStaleChannels(ctx, src.ID, keepIDs); err != nil {
		return channelCount, fmt.Errorf("RemoveStaleChannels: %w", err)
	}

	index, err := s.ResolveChannelRowIDs(ctx, src.ID, listing.Channels)
	if err != nil {
		return channelCount, fmt.Errorf("ResolveChannelRowIDs: %w", err)
	}

	syncErr := syncer.SyncPrograms(ctx, index, listing, mode)

	if err := s.UpdateSourceLastSynced(ctx, src.ID); err != nil {
		return channelCount, fmt.Errorf("UpdateSourceLastSynced: %w", err)
	}
	return channelCount, syncErr
}
