package models

import "strings"

// ContentRating is a single flattened content-rating token, e.g.
// "com.android.tv/US_TV/US_TV_PG". The store persists a channel's ratings as
// one comma-joined string; one ContentRating per comma-separated token.
type ContentRating string

// ParseContentRatings splits a comma-separated rating string into individual
// ratings, trimming surrounding whitespace. An empty input yields nil.
func ParseContentRatings(s string) []ContentRating {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	ratings := make([]ContentRating, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			ratings = append(ratings, ContentRating(t))
		}
	}
	if len(ratings) == 0 {
		return nil
	}
	return ratings
}

// FlattenContentRatings joins ratings back into the persisted comma-separated
// form. The empty string is returned for no ratings.
func FlattenContentRatings(ratings []ContentRating) string {
	if len(ratings) == 0 {
		return ""
	}
	parts := make([]string, len(ratings))
	for i, r := range ratings {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}
