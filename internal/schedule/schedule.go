// Package schedule turns a channel's raw feed programmes into the concrete
// programme rows that must exist for a requested time window.
package schedule

import (
	"errors"

	"github.com/voyagen/guidevault/internal/models"
)

// ErrInvalidWindow is returned when the requested window start is after its end.
var ErrInvalidWindow = errors.New("schedule: window start is after window end")

// ErrEmptyCycle is returned for a repeating channel whose programme list has
// zero total duration, making cycle arithmetic impossible.
var ErrEmptyCycle = errors.New("schedule: repeating channel has zero cycle duration")

// Generate returns the ordered programmes that belong to channel within
// [startMs, endMs). rawPrograms may span multiple channels; only entries
// matching the channel's feed id are considered, in feed-declared order.
//
// Non-repeating channels contribute every programme whose declared interval
// intersects the window, with declared times preserved. Repeating channels
// treat their programme list as one cycle anchored at the UNIX epoch, so any
// two invocations for the same window compute identical schedules regardless
// of when or where they run. The walk stops once a step starts at or past
// endMs; the last emitted programme may therefore extend beyond the window.
func Generate(channel models.Channel, rawPrograms []models.RawProgram, startMs, endMs int64) ([]models.Program, error) {
	if startMs > endMs {
		return nil, ErrInvalidWindow
	}

	var channelPrograms []models.RawProgram
	for _, p := range rawPrograms {
		if p.ChannelFeedID == channel.FeedID {
			channelPrograms = append(channelPrograms, p)
		}
	}

	if !channel.RepeatPrograms {
		var out []models.Program
		for _, p := range channelPrograms {
			if p.StartTimeUtcMilli <= endMs && p.EndTimeUtcMilli >= startMs {
				out = append(out, build(channel, p, p.StartTimeUtcMilli, p.EndTimeUtcMilli))
			}
		}
		return out, nil
	}

	// Repeat scheduling loops the programme list indefinitely. Cycle
	// boundaries are anchored at the epoch, never at the sync time, so every
	// device plays the same programme at the same moment.
	var totalDurationMs int64
	for _, p := range channelPrograms {
		totalDurationMs += p.DurationMillis()
	}
	if totalDurationMs <= 0 {
		return nil, ErrEmptyCycle
	}

	var out []models.Program
	programStartMs := startMs - startMs%totalDurationMs
	for i := 0; programStartMs < endMs; i++ {
		p := channelPrograms[i%len(channelPrograms)]
		programEndMs := programStartMs + p.DurationMillis()
		if programEndMs <= startMs {
			// Still before the window; advance without emitting.
			programStartMs = programEndMs
			continue
		}
		out = append(out, build(channel, p, programStartMs, programEndMs))
		programStartMs = programEndMs
	}
	return out, nil
}

func build(channel models.Channel, p models.RawProgram, startMs, endMs int64) models.Program {
	videoURL := p.VideoSrc
	if videoURL == "" {
		videoURL = channel.URL
	}
	return models.Program{
		ChannelID:            channel.RowID,
		Title:                p.Title,
		Description:          p.Description,
		ContentRatings:       models.ParseContentRatings(p.Rating),
		CanonicalGenres:      p.Categories,
		PosterURI:            p.Icon,
		InternalProviderData: models.EncodeProviderPayload(p.VideoType, videoURL),
		StartTimeUtcMilli:    startMs,
		EndTimeUtcMilli:      endMs,
	}
}
