package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/guidevault/internal/config"
	"github.com/voyagen/guidevault/internal/models"
	"github.com/voyagen/guidevault/internal/reconcile"
	"github.com/voyagen/guidevault/internal/service"
	"github.com/voyagen/guidevault/internal/store"
)

// fakeStore serves canned rows for the handler tests.
type fakeStore struct {
	sources  map[int64]models.Source
	channels map[int64]models.Channel
	programs map[int64][]models.StoredProgram
	deleted  []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sources:  make(map[int64]models.Source),
		channels: make(map[int64]models.Channel),
		programs: make(map[int64][]models.StoredProgram),
	}
}

func (f *fakeStore) CreateOrGetSource(_ context.Context, name, xmltvURL, m3uURL, userAgent string) (int64, error) {
	id := int64(len(f.sources) + 1)
	f.sources[id] = models.Source{ID: id, Name: name, XmltvURL: xmltvURL, M3uURL: m3uURL, UserAgent: userAgent, Enabled: true}
	return id, nil
}

func (f *fakeStore) ListSources(context.Context) ([]models.Source, error) {
	var out []models.Source
	for _, s := range f.sources {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStore) GetSourceByID(_ context.Context, sourceID int64) (*models.Source, error) {
	s, ok := f.sources[sourceID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (f *fakeStore) UpdateSource(_ context.Context, sourceID int64, fields store.SourceUpdate) error {
	s, ok := f.sources[sourceID]
	if !ok {
		return store.ErrNotFound
	}
	if fields.Name != nil {
		s.Name = *fields.Name
	}
	if fields.Enabled != nil {
		s.Enabled = *fields.Enabled
	}
	f.sources[sourceID] = s
	return nil
}

func (f *fakeStore) DeleteSource(_ context.Context, sourceID int64) error {
	if _, ok := f.sources[sourceID]; !ok {
		return store.ErrNotFound
	}
	delete(f.sources, sourceID)
	f.deleted = append(f.deleted, sourceID)
	return nil
}

func (f *fakeStore) UpdateSourceLastSynced(context.Context, int64) error { return nil }

func (f *fakeStore) UpsertChannel(_ context.Context, ch *models.Channel) (int64, error) {
	f.channels[ch.RowID] = *ch
	return ch.RowID, nil
}

func (f *fakeStore) RemoveStaleChannels(context.Context, int64, []int64) error { return nil }

func (f *fakeStore) ResolveChannelRowIDs(context.Context, int64, []models.Channel) (map[int64]models.Channel, error) {
	return nil, nil
}

func (f *fakeStore) ListChannels(_ context.Context, _ *int64) ([]models.Channel, error) {
	var out []models.Channel
	for _, ch := range f.channels {
		out = append(out, ch)
	}
	return out, nil
}

func (f *fakeStore) GetChannelByID(_ context.Context, channelID int64) (*models.Channel, error) {
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &ch, nil
}

func (f *fakeStore) StoredPrograms(_ context.Context, channelRowID int64) ([]models.StoredProgram, error) {
	return f.programs[channelRowID], nil
}

func (f *fakeStore) ProgramsInWindow(_ context.Context, channelRowID, _, _ int64) ([]models.StoredProgram, error) {
	return f.programs[channelRowID], nil
}

func (f *fakeStore) ApplyBatch(context.Context, []reconcile.Op) error { return nil }

func testServer(f *fakeStore) *Server {
	cfg := &config.Config{ServerPort: "0", UserAgent: "test", Timeout: time.Second}
	syncer := service.NewSyncer(f, service.NewApplier(f, 100), time.Hour, time.Minute, 1)
	return New(f, cfg, syncer, nil)
}

func doJSON(t *testing.T, srv *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.ContentLength = int64(buf.Len())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := doJSON(t, testServer(newFakeStore()), http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAddSourceValidation(t *testing.T) {
	srv := testServer(newFakeStore())

	rec := doJSON(t, srv, http.MethodPost, "/api/sources", map[string]string{"name": "no-url"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/sources", map[string]string{"xmltv_url": "ftp://bad.example/guide.xml"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/sources", map[string]string{"xmltv_url": "https://good.example/guide.xml"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestGetSourceNotFound(t *testing.T) {
	rec := doJSON(t, testServer(newFakeStore()), http.MethodGet, "/api/sources/42", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestSyncDisabledSourceConflicts(t *testing.T) {
	f := newFakeStore()
	f.sources[1] = models.Source{ID: 1, Name: "epg", XmltvURL: "https://x/guide.xml", Enabled: false}

	rec := doJSON(t, testServer(f), http.MethodPost, "/api/sources/1/sync", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSyncRejectsUnknownMode(t *testing.T) {
	f := newFakeStore()
	f.sources[1] = models.Source{ID: 1, Name: "epg", XmltvURL: "https://x/guide.xml", Enabled: true}

	rec := doJSON(t, testServer(f), http.MethodPost, "/api/sources/1/sync", map[string]string{"mode": "hourly"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChannelProgramsDecodesPayload(t *testing.T) {
	f := newFakeStore()
	f.channels[5] = models.Channel{RowID: 5, DisplayNumber: "5", DisplayName: "Five"}
	f.programs[5] = []models.StoredProgram{
		{ID: 1, Program: models.Program{
			ChannelID:            5,
			Title:                "Playable",
			InternalProviderData: models.EncodeProviderPayload(models.VideoTypeHLS, "http://cdn/a.m3u8"),
			StartTimeUtcMilli:    0,
			EndTimeUtcMilli:      1000,
		}},
		{ID: 2, Program: models.Program{
			ChannelID:            5,
			Title:                "Corrupt",
			InternalProviderData: "garbage",
			StartTimeUtcMilli:    1000,
			EndTimeUtcMilli:      2000,
		}},
	}

	rec := doJSON(t, testServer(f), http.MethodGet, "/api/channels/5/programs?from=0&to=2000", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)

	assert.Equal(t, float64(models.VideoTypeHLS), got[0]["video_type"])
	assert.Equal(t, "http://cdn/a.m3u8", got[0]["video_url"])

	// Corrupt payloads are surfaced as rows without playback fields.
	assert.Equal(t, "Corrupt", got[1]["title"])
	_, hasType := got[1]["video_type"]
	assert.False(t, hasType)
}

func TestChannelProgramsWindowValidation(t *testing.T) {
	f := newFakeStore()
	f.channels[5] = models.Channel{RowID: 5}

	rec := doJSON(t, testServer(f), http.MethodGet, "/api/channels/5/programs?from=100&to=50", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, testServer(f), http.MethodGet, "/api/channels/5/programs?from=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteSource(t *testing.T) {
	f := newFakeStore()
	f.sources[1] = models.Source{ID: 1, Name: "epg", XmltvURL: "https://x/guide.xml", Enabled: true}

	rec := doJSON(t, testServer(f), http.MethodDelete, "/api/sources/1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []int64{1}, f.deleted)

	rec = doJSON(t, testServer(f), http.MethodDelete, "/api/sources/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
