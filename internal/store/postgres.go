package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyagen/guidevault/internal/models"
	"github.com/voyagen/guidevault/internal/reconcile"
)

// MaxBatchOps is the documented per-call payload bound for ApplyBatch.
// Callers batching operations must not exceed it.
const MaxBatchOps = 100

// Postgres implements Store using PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store from a DSN. Caller must call Close when done.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// --- sources ---

func (p *Postgres) CreateOrGetSource(ctx context.Context, name, xmltvURL, m3uURL, userAgent string) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO sources (name, xmltv_url, m3u_url, user_agent, enabled)
		 VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), true)
		 ON CONFLICT (name) DO UPDATE SET
		   xmltv_url = EXCLUDED.xmltv_url, m3u_url = EXCLUDED.m3u_url, user_agent = EXCLUDED.user_agent
		 RETURNING id`,
		name, xmltvURL, m3uURL, userAgent,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("CreateOrGetSource: %w", err)
	}
	return id, nil
}

func (p *Postgres) ListSources(ctx context.Context) ([]models.Source, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, name, xmltv_url, COALESCE(m3u_url,''), COALESCE(user_agent,''), enabled, last_synced, created_at
		 FROM sources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ListSources: %w", err)
	}
	defer rows.Close()

	var sources []models.Source
	for rows.Next() {
		var s models.Source
		if err := rows.Scan(&s.ID, &s.Name, &s.XmltvURL, &s.M3uURL, &s.UserAgent, &s.Enabled, &s.LastSynced, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListSources scan: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func (p *Postgres) GetSourceByID(ctx context.Context, sourceID int64) (*models.Source, error) {
	var s models.Source
	err := p.pool.QueryRow(ctx,
		`SELECT id, name, xmltv_url, COALESCE(m3u_url,''), COALESCE(user_agent,''), enabled, last_synced, created_at
		 FROM sources WHERE id = $1`, sourceID,
	).Scan(&s.ID, &s.Name, &s.XmltvURL, &s.M3uURL, &s.UserAgent, &s.Enabled, &s.LastSynced, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetSourceByID: %w", err)
	}
	return &s, nil
}

func (p *Postgres) UpdateSource(ctx context.Context, sourceID int64, fields SourceUpdate) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE sources SET
		   name       = COALESCE($2, name),
		   xmltv_url  = COALESCE($3, xmltv_url),
		   m3u_url    = COALESCE($4, m3u_url),
		   user_agent = COALESCE($5, user_agent),
		   enabled    = COALESCE($6, enabled)
		 WHERE id = $1`,
		sourceID, fields.Name, fields.XmltvURL, fields.M3uURL, fields.UserAgent, fields.Enabled)
	if err != nil {
		return fmt.Errorf("UpdateSource: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteSource(ctx context.Context, sourceID int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM sources WHERE id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("DeleteSource: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) UpdateSourceLastSynced(ctx context.Context, sourceID int64) error {
	_, err := p.pool.Exec(ctx, `UPDATE sources SET last_synced = NOW() WHERE id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("UpdateSourceLastSynced: %w", err)
	}
	return nil
}

// --- channels ---

func (p *Postgres) UpsertChannel(ctx context.Context, ch *models.Channel) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO channels (source_id, feed_id, display_number, display_name, repeat_programs, url, icon)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (source_id, display_number) DO UPDATE SET
		   feed_id = EXCLUDED.feed_id, display_name = EXCLUDED.display_name,
		   repeat_programs = EXCLUDED.repeat_programs, url = EXCLUDED.url, icon = EXCLUDED.icon
		 RETURNING id`,
		ch.SourceID, ch.FeedID, ch.DisplayNumber, ch.DisplayName, ch.RepeatPrograms, ch.URL, ch.Icon,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("UpsertChannel: %w", err)
	}
	return id, nil
}

func (p *Postgres) RemoveStaleChannels(ctx context.Context, sourceID int64, keepIDs []int64) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM channels WHERE source_id = $1 AND NOT (id = ANY($2))`,
		sourceID, keepIDs)
	if err != nil {
		return fmt.Errorf("RemoveStaleChannels: %w", err)
	}
	return nil
}

func (p *Postgres) ResolveChannelRowIDs(ctx context.Context, sourceID int64, channels []models.Channel) (map[int64]models.Channel, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, display_number FROM channels WHERE source_id = $1`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("ResolveChannelRowIDs: %w", err)
	}
	defer rows.Close()

	byNumber := make(map[string]models.Channel, len(channels))
	for _, ch := range channels {
		byNumber[ch.DisplayNumber] = ch
	}

	index := make(map[int64]models.Channel)
	for rows.Next() {
		var rowID int64
		var displayNumber string
		if err := rows.Scan(&rowID, &displayNumber); err != nil {
			return nil, fmt.Errorf("ResolveChannelRowIDs scan: %w", err)
		}
		ch, ok := byNumber[displayNumber]
		if !ok {
			continue
		}
		ch.RowID = rowID
		index[rowID] = ch
	}
	return index, rows.Err()
}

func (p *Postgres) ListChannels(ctx context.Context, sourceID *int64) ([]models.Channel, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, source_id, feed_id, display_number, display_name, repeat_programs, COALESCE(url,''), icon
		 FROM channels
		 WHERE ($1::bigint IS NULL OR source_id = $1)
		 ORDER BY display_number`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("ListChannels: %w", err)
	}
	defer rows.Close()

	var channels []models.Channel
	for rows.Next() {
		var ch models.Channel
		if err := rows.Scan(&ch.RowID, &ch.SourceID, &ch.FeedID, &ch.DisplayNumber, &ch.DisplayName, &ch.RepeatPrograms, &ch.URL, &ch.Icon); err != nil {
			return nil, fmt.Errorf("ListChannels scan: %w", err)
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

func (p *Postgres) GetChannelByID(ctx context.Context, channelID int64) (*models.Channel, error) {
	var ch models.Channel
	err := p.pool.QueryRow(ctx,
		`SELECT id, source_id, feed_id, display_number, display_name, repeat_programs, COALESCE(url,''), icon
		 FROM channels WHERE id = $1`, channelID,
	).Scan(&ch.RowID, &ch.SourceID, &ch.FeedID, &ch.DisplayNumber, &ch.DisplayName, &ch.RepeatPrograms, &ch.URL, &ch.Icon)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetChannelByID: %w", err)
	}
	return &ch, nil
}

// --- programmes ---

const programColumns = `id, channel_id, title, COALESCE(description,''), COALESCE(content_rating,''),
	canonical_genres, COALESCE(poster_uri,''), internal_provider_data,
	start_time_utc_millis, end_time_utc_millis`

func (p *Postgres) StoredPrograms(ctx context.Context, channelRowID int64) ([]models.StoredProgram, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+programColumns+` FROM programs
		 WHERE channel_id = $1 ORDER BY start_time_utc_millis`, channelRowID)
	if err != nil {
		return nil, fmt.Errorf("StoredPrograms: %w", err)
	}
	defer rows.Close()
	return scanPrograms(rows)
}

func (p *Postgres) ProgramsInWindow(ctx context.Context, channelRowID, fromMs, toMs int64) ([]models.StoredProgram, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+programColumns+` FROM programs
		 WHERE channel_id = $1 AND start_time_utc_millis <= $3 AND end_time_utc_millis >= $2
		 ORDER BY start_time_utc_millis`, channelRowID, fromMs, toMs)
	if err != nil {
		return nil, fmt.Errorf("ProgramsInWindow: %w", err)
	}
	defer rows.Close()
	return scanPrograms(rows)
}

func scanPrograms(rows pgx.Rows) ([]models.StoredProgram, error) {
	var programs []models.StoredProgram
	for rows.Next() {
		var sp models.StoredProgram
		var rating string
		if err := rows.Scan(&sp.ID, &sp.ChannelID, &sp.Title, &sp.Description, &rating,
			&sp.CanonicalGenres, &sp.PosterURI, &sp.InternalProviderData,
			&sp.StartTimeUtcMilli, &sp.EndTimeUtcMilli); err != nil {
			return nil, fmt.Errorf("scan program: %w", err)
		}
		sp.ContentRatings = models.ParseContentRatings(rating)
		programs = append(programs, sp)
	}
	return programs, rows.Err()
}

// ApplyBatch applies the operations inside one transaction. Atomicity holds
// within a single call only; the caller owns cross-batch failure semantics.
func (p *Postgres) ApplyBatch(ctx context.Context, ops []reconcile.Op) error {
	if len(ops) == 0 {
		return nil
	}
	if len(ops) > MaxBatchOps {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(ops), MaxBatchOps)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ApplyBatch begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, op := range ops {
		switch op.Kind {
		case reconcile.OpInsert:
			_, err = tx.Exec(ctx,
				`INSERT INTO programs (channel_id, title, description, content_rating, canonical_genres,
				   poster_uri, internal_provider_data, start_time_utc_millis, end_time_utc_millis)
				 VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), $5, NULLIF($6,''), $7, $8, $9)`,
				op.Program.ChannelID, op.Program.Title, op.Program.Description,
				models.FlattenContentRatings(op.Program.ContentRatings), op.Program.CanonicalGenres,
				op.Program.PosterURI, op.Program.InternalProviderData,
				op.Program.StartTimeUtcMilli, op.Program.EndTimeUtcMilli)
		case reconcile.OpUpdate:
			_, err = tx.Exec(ctx,
				`UPDATE programs SET
				   channel_id = $2, title = $3, description = NULLIF($4,''), content_rating = NULLIF($5,''),
				   canonical_genres = $6, poster_uri = NULLIF($7,''), internal_provider_data = $8,
				   start_time_utc_millis = $9, end_time_utc_millis = $10
				 WHERE id = $1`,
				op.ProgramID, op.Program.ChannelID, op.Program.Title, op.Program.Description,
				models.FlattenContentRatings(op.Program.ContentRatings), op.Program.CanonicalGenres,
				op.Program.PosterURI, op.Program.InternalProviderData,
				op.Program.StartTimeUtcMilli, op.Program.EndTimeUtcMilli)
		case reconcile.OpDelete:
			_, err = tx.Exec(ctx, `DELETE FROM programs WHERE id = $1`, op.ProgramID)
		default:
			err = fmt.Errorf("unknown op kind %d", op.Kind)
		}
		if err != nil {
			return fmt.Errorf("ApplyBatch %s: %w", op.Kind, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ApplyBatch commit: %w", err)
	}
	return nil
}
