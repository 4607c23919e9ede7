// Package fetcher retrieves and parses EPG feeds: an XMLTV document for
// channels and programmes, optionally combined with an M3U playlist that
// carries the channels' stream URLs.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voyagen/guidevault/internal/models"
)

// ErrFetch wraps transport-level failures (connection, HTTP status).
var ErrFetch = errors.New("feed fetch failed")

// ErrParse wraps document-level failures. A sync run never proceeds on a
// partially parsed listing.
var ErrParse = errors.New("feed parse failed")

// FetchListing downloads and parses the feed for one source. m3uURL is
// optional; when present, playlist stream URLs are merged onto the parsed
// channels (by feed id, falling back to display name).
func FetchListing(ctx context.Context, xmltvURL, m3uURL, userAgent string, timeout time.Duration) (*models.Listing, error) {
	body, err := fetch(ctx, xmltvURL, userAgent, timeout)
	if err != nil {
		return nil, err
	}
	listing, err := ParseXMLTV(body)
	if err != nil {
		return nil, fmt.Errorf("%w: xmltv: %v", ErrParse, err)
	}

	if m3uURL != "" {
		playlist, err := fetch(ctx, m3uURL, userAgent, timeout)
		if err != nil {
			return nil, err
		}
		urls, err := ParseM3U(playlist)
		if err != nil {
			return nil, fmt.Errorf("%w: m3u: %v", ErrParse, err)
		}
		mergeStreamURLs(listing, urls)
	}
	return listing, nil
}

func fetch(ctx context.Context, url, userAgent string, timeout time.Duration) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d from %s", ErrFetch, resp.StatusCode, url)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return body, nil
}

// mergeStreamURLs fills each channel's default playback URL from the
// playlist. The feed id (tvg-id) match wins; the display name is a fallback
// for playlists without tvg attributes.
func mergeStreamURLs(listing *models.Listing, urls map[string]string) {
	for i := range listing.Channels {
		ch := &listing.Channels[i]
		if u, ok := urls[ch.FeedID]; ok {
			ch.URL = u
			continue
		}
		if u, ok := urls[ch.DisplayName]; ok {
			ch.URL = u
		}
	}
}
