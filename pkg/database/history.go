package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/latoulicious/radio/pkg/pipeline"
	"github.com/latoulicious/radio/pkg/player"
	"github.com/latoulicious/radio/pkg/relay"
	_ "github.com/mattn/go-sqlite3"
)

// historyWrite is a queued write; barrier writes only signal
type historyWrite struct {
	apply   func(ctx context.Context, db *sql.DB) error
	barrier chan struct{}
}

// HistoryStore persists play history to SQLite. As a player.Observer it
// queues writes so the track loop never waits on disk.
type HistoryStore struct {
	player.NopObserver

	db     *sql.DB
	config *DatabaseConfig
	logger pipeline.Logger

	queue    chan historyWrite
	stopChan chan struct{}
	doneChan chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped int64
	failed  int64
}

// OpenHistoryStore opens (creating if needed) the database at
// config.DatabasePath and migrates it to the latest schema
func OpenHistoryStore(config *DatabaseConfig, logger pipeline.Logger) (*HistoryStore, error) {
	if config == nil {
		config = DefaultDatabaseConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}
	if logger == nil {
		logger = pipeline.NullLogger()
	}

	db, err := sql.Open("sqlite3", buildConnectionString(config))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetMaxIdleConns(config.MaxConnections)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	version, err := migrate(ctx, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &HistoryStore{
		db:       db,
		config:   config,
		logger:   logger.With(pipeline.String("component", "history")),
		queue:    make(chan historyWrite, config.QueueSize),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	go s.run()

	s.logger.Info("History store opened",
		pipeline.String("path", config.DatabasePath),
		pipeline.Int("schema_version", version),
	)
	return s, nil
}

// buildConnectionString builds the SQLite DSN with pragmas
func buildConnectionString(config *DatabaseConfig) string {
	dsn := "file:" + config.DatabasePath + "?_foreign_keys=on"
	if config.WALMode {
		dsn += "&_journal_mode=WAL"
	}
	dsn += "&_synchronous=" + config.SynchronousMode
	if config.BusyTimeout > 0 {
		dsn += fmt.Sprintf("&_busy_timeout=%d", config.BusyTimeout.Milliseconds())
	}
	return dsn
}

func (s *HistoryStore) run() {
	defer close(s.doneChan)
	for {
		select {
		case w := <-s.queue:
			s.apply(w)
		case <-s.stopChan:
			// drain what was queued before Close
			for {
				select {
				case w := <-s.queue:
					s.apply(w)
				default:
					return
				}
			}
		}
	}
}

func (s *HistoryStore) apply(w historyWrite) {
	if w.barrier != nil {
		close(w.barrier)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.WriteTimeout)
	defer cancel()

	if err := w.apply(ctx, s.db); err != nil {
		s.mu.Lock()
		s.failed++
		s.mu.Unlock()
		s.logger.Warn("Failed to write history", pipeline.Error(err))
	}
}

func (s *HistoryStore) enqueue(w historyWrite) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}
	select {
	case s.queue <- w:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *HistoryStore) enqueueOrDrop(what string, apply func(ctx context.Context, db *sql.DB) error) {
	if err := s.enqueue(historyWrite{apply: apply}); err != nil {
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		s.logger.Warn("Dropped history write", pipeline.String("event", what), pipeline.Error(err))
	}
}

func (s *HistoryStore) SessionStarted(e player.SessionEvent) {
	s.enqueueOrDrop("session_started", func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT OR IGNORE INTO play_sessions (id, guild_id, channel_id, loop, started_at) VALUES (?, ?, ?, ?, ?)`,
			e.SessionID, e.GuildID, e.ChannelID, e.Loop, e.StartedAt.UTC(),
		)
		return err
	})
}

func (s *HistoryStore) TrackFinished(e player.TrackEvent) {
	var errText sql.NullString
	if e.Outcome.Err != nil && e.Outcome.Status == relay.Failed {
		errText = sql.NullString{String: e.Outcome.Err.Error(), Valid: true}
	}
	finished := e.StartedAt.Add(e.Outcome.Elapsed)

	s.enqueueOrDrop("track_finished", func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO track_plays
			(session_id, guild_id, track_name, track_path, started_at, finished_at, outcome, bytes, elapsed_ms, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.SessionID, e.GuildID, e.Track.Name, e.Track.Path,
			e.StartedAt.UTC(), finished.UTC(), e.Outcome.Status.String(),
			e.Outcome.Bytes, e.Outcome.Elapsed.Milliseconds(), errText,
		)
		return err
	})
}

func (s *HistoryStore) SessionEnded(e player.SessionEvent) {
	reason := "completed"
	if e.Err != nil {
		reason = e.Err.Error()
	}
	ended := e.EndedAt
	if ended.IsZero() {
		ended = time.Now()
	}

	s.enqueueOrDrop("session_ended", func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`UPDATE play_sessions SET ended_at = ?, end_reason = ? WHERE id = ?`,
			ended.UTC(), reason, e.SessionID,
		)
		return err
	})
}

// Sync waits until every write queued before the call has been applied
func (s *HistoryStore) Sync(ctx context.Context) error {
	barrier := make(chan struct{})

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	select {
	case s.queue <- historyWrite{barrier: barrier}:
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	s.mu.RUnlock()

	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecentPlays returns guildID's most recent plays, newest first
func (s *HistoryStore) RecentPlays(ctx context.Context, guildID string, limit int) ([]TrackPlay, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, session_id, guild_id, track_name, track_path, started_at, finished_at, outcome, bytes, elapsed_ms, error
	FROM track_plays
	WHERE guild_id = ?
	ORDER BY started_at DESC, id DESC
	LIMIT ?
	`, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent plays: %w", err)
	}
	defer rows.Close()

	var plays []TrackPlay
	for rows.Next() {
		var p TrackPlay
		var elapsedMS int64
		var errText sql.NullString
		if err := rows.Scan(&p.ID, &p.SessionID, &p.GuildID, &p.TrackName, &p.TrackPath,
			&p.StartedAt, &p.FinishedAt, &p.Outcome, &p.Bytes, &elapsedMS, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan play: %w", err)
		}
		p.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		p.Error = errText.String
		plays = append(plays, p)
	}
	return plays, rows.Err()
}

// Session returns one recorded session
func (s *HistoryStore) Session(ctx context.Context, id string) (*PlaySession, error) {
	var p PlaySession
	var ended sql.NullTime
	var reason sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, guild_id, channel_id, loop, started_at, ended_at, end_reason FROM play_sessions WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.GuildID, &p.ChannelID, &p.Loop, &p.StartedAt, &ended, &reason)
	if err != nil {
		return nil, err
	}
	if ended.Valid {
		p.EndedAt = &ended.Time
	}
	p.EndReason = reason.String
	return &p, nil
}

// GuildStats summarises guildID's recorded history
func (s *HistoryStore) GuildStats(ctx context.Context, guildID string) (*GuildStats, error) {
	stats := &GuildStats{}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM play_sessions WHERE guild_id = ?`, guildID,
	).Scan(&stats.Sessions)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}

	var listenedMS int64
	err = s.db.QueryRowContext(ctx, `
	SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN outcome = 'completed' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN outcome = 'cancelled' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN outcome = 'failed' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(elapsed_ms), 0)
	FROM track_plays WHERE guild_id = ?
	`, guildID).Scan(&stats.Plays, &stats.Completed, &stats.Skipped, &stats.Failed, &listenedMS)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate plays: %w", err)
	}
	stats.Listened = time.Duration(listenedMS) * time.Millisecond
	return stats, nil
}

// PruneBefore deletes sessions that ended before cutoff, with their plays
func (s *HistoryStore) PruneBefore(ctx context.Context, cutoff time.Time) (*PruneStats, error) {
	start := time.Now()
	stats := &PruneStats{}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin prune: %w", err)
	}
	defer tx.Rollback()

	const expired = `SELECT id FROM play_sessions WHERE ended_at IS NOT NULL AND ended_at < ?`
	res, err := tx.ExecContext(ctx, `DELETE FROM track_plays WHERE session_id IN (`+expired+`)`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to prune plays: %w", err)
	}
	stats.Plays, _ = res.RowsAffected()

	res, err = tx.ExecContext(ctx, `DELETE FROM play_sessions WHERE ended_at IS NOT NULL AND ended_at < ?`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to prune sessions: %w", err)
	}
	stats.Sessions, _ = res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit prune: %w", err)
	}
	stats.Duration = time.Since(start)

	s.logger.Info("Pruned play history",
		pipeline.Int64("sessions", stats.Sessions),
		pipeline.Int64("plays", stats.Plays),
		pipeline.Duration("took", stats.Duration),
	)
	return stats, nil
}

// Stats returns how many writes were dropped or failed
func (s *HistoryStore) Stats() (dropped, failed int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped, s.failed
}

// Close flushes queued writes and closes the database
func (s *HistoryStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stopChan)
	s.mu.Unlock()

	select {
	case <-s.doneChan:
	case <-time.After(s.config.WriteTimeout + time.Second):
		s.logger.Warn("History writer did not drain before close")
	}
	return s.db.Close()
}
