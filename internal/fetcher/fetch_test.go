package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/guidevault/internal/models"
)

func listingWithChannels() *models.Listing {
	return &models.Listing{Channels: []models.Channel{
		{FeedID: "news.example", DisplayName: "Example News", URL: "http://orig/a"},
		{FeedID: "loop.example", DisplayName: "Example Loop", URL: "http://orig/b"},
		{FeedID: "other.example", DisplayName: "Other", URL: "http://orig/c"},
	}}
}

func TestFetchListing(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		switch r.URL.Path {
		case "/guide.xml":
			w.Write([]byte(sampleXMLTV))
		case "/channels.m3u":
			w.Write([]byte(samplePlaylist))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	listing, err := FetchListing(context.Background(), srv.URL+"/guide.xml", srv.URL+"/channels.m3u", "GuideVault/1.0", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "GuideVault/1.0", gotUA)

	require.Len(t, listing.Channels, 2)
	assert.Equal(t, "http://cdn.example.com/news/index.m3u8", listing.Channels[0].URL, "playlist URL overrides the feed URL")
	assert.Equal(t, "http://cdn.example.com/loop/index.m3u8", listing.Channels[1].URL, "merged by display name")
	assert.Len(t, listing.Programs, 2)
}

func TestFetchListingWithoutPlaylist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleXMLTV))
	}))
	defer srv.Close()

	listing, err := FetchListing(context.Background(), srv.URL, "", "", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/news/live.m3u8", listing.Channels[0].URL, "feed URL kept when no playlist is configured")
}

func TestFetchListingHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := FetchListing(context.Background(), srv.URL, "", "", 5*time.Second)
	require.ErrorIs(t, err, ErrFetch)
	assert.Contains(t, err.Error(), "502")
}

func TestFetchListingParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not xml"))
	}))
	defer srv.Close()

	_, err := FetchListing(context.Background(), srv.URL, "", "", 5*time.Second)
	require.ErrorIs(t, err, ErrParse)
}

func TestFetchListingHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := FetchListing(ctx, srv.URL, "", "", 5*time.Second)
	require.ErrorIs(t, err, ErrFetch)
}
