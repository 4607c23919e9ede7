package models

// Channel is one guide channel, immutable for the duration of a sync run.
// RowID is the persistent store identity; FeedID is the channel id the
// upstream XMLTV document uses to attach programmes to the channel.
type Channel struct {
	RowID          int64   `json:"id,omitempty"`
	FeedID         string  `json:"feed_id"`
	DisplayNumber  string  `json:"display_number"`
	DisplayName    string  `json:"display_name"`
	RepeatPrograms bool    `json:"repeat_programs"`
	URL            string  `json:"url,omitempty"` // default playback URL when a programme has no own source
	Icon           *string `json:"icon,omitempty"`
	SourceID       int64   `json:"source_id,omitempty"`
}
