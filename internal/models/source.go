package models

import "time"

// Source represents one EPG feed: an XMLTV document for programme data plus
// an optional M3U playlist supplying the channels' stream URLs.
type Source struct {
	ID         int64      `json:"id,omitempty"`
	Name       string     `json:"name"`
	XmltvURL   string     `json:"xmltv_url"`
	M3uURL     string     `json:"m3u_url,omitempty"`
	UserAgent  string     `json:"user_agent,omitempty"`
	Enabled    bool       `json:"enabled"`
	LastSynced *time.Time `json:"last_synced,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
}
