package models

// RawProgram is a feed-side programme as parsed from XMLTV, before schedule
// generation. On a non-repeating channel the declared start/end times are
// authoritative; on a repeating channel they are only used to derive the
// programme's duration within the cycle.
type RawProgram struct {
	ChannelFeedID     string
	Title             string
	Description       string
	Categories        []string
	Rating            string // raw content-rating string, may be empty
	Icon              string
	VideoSrc          string // optional per-programme source URL override
	VideoType         int
	StartTimeUtcMilli int64
	EndTimeUtcMilli   int64
}

// DurationMillis returns the declared length of the programme.
func (p RawProgram) DurationMillis() int64 {
	return p.EndTimeUtcMilli - p.StartTimeUtcMilli
}

// Program is a generated programme: the concrete row content that must exist
// in the store for a channel and window. It carries no persistent identity.
type Program struct {
	ChannelID            int64           `json:"channel_id"`
	Title                string          `json:"title"`
	Description          string          `json:"description,omitempty"`
	ContentRatings       []ContentRating `json:"content_ratings,omitempty"`
	CanonicalGenres      []string        `json:"canonical_genres,omitempty"`
	PosterURI            string          `json:"poster_uri,omitempty"`
	InternalProviderData string          `json:"internal_provider_data"`
	StartTimeUtcMilli    int64           `json:"start_time_utc_millis"`
	EndTimeUtcMilli      int64           `json:"end_time_utc_millis"`
}

// Equal reports content equality: every field must match exactly. Persistent
// identity is not part of a Program, so two store rows with different ids can
// still be equal.
func (p Program) Equal(o Program) bool {
	if p.ChannelID != o.ChannelID ||
		p.Title != o.Title ||
		p.Description != o.Description ||
		p.PosterURI != o.PosterURI ||
		p.InternalProviderData != o.InternalProviderData ||
		p.StartTimeUtcMilli != o.StartTimeUtcMilli ||
		p.EndTimeUtcMilli != o.EndTimeUtcMilli {
		return false
	}
	if len(p.ContentRatings) != len(o.ContentRatings) {
		return false
	}
	for i := range p.ContentRatings {
		if p.ContentRatings[i] != o.ContentRatings[i] {
			return false
		}
	}
	if len(p.CanonicalGenres) != len(o.CanonicalGenres) {
		return false
	}
	for i := range p.CanonicalGenres {
		if p.CanonicalGenres[i] != o.CanonicalGenres[i] {
			return false
		}
	}
	return true
}

// StoredProgram is a Program plus the row id assigned by the store at insert
// time. The id must survive in-place updates so that per-programme metadata
// attached to it elsewhere is not lost.
type StoredProgram struct {
	ID int64 `json:"id"`
	Program
}

// Listing is the in-memory result of one feed fetch: all channels and all raw
// programmes for a single sync invocation.
type Listing struct {
	Channels []Channel
	Programs []RawProgram
}
