package archive

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"rapport-lite/apps/server/internal/codec"
)

const defaultLocalDBName = "rapport_local.db"

type SQLiteService struct {
	db          *sql.DB
	recentLimit int
	savedLimit  int
	tapeCache   *lru.Cache[string, []EventItem]
}

func NewSQLiteServiceFromEnv() (*SQLiteService, error) {
	dbPath, err := archiveLocalDatabasePathFromEnv()
	if err != nil {
		return nil, err
	}
	return NewSQLiteService(dbPath)
}

func NewSQLiteService(dbPath string) (*SQLiteService, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("empty sqlite database path")
	}
	if dbPath != ":memory:" {
		parent := filepath.Dir(dbPath)
		if parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSQLiteArchiveSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	cache, err := lru.New[string, []EventItem](tapeCacheSize)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteService{
		db:          db,
		recentLimit: envIntOrDefault("ARCHIVE_RECENT_LIMIT", defaultRecentLimit),
		savedLimit:  envIntOrDefault("ARCHIVE_SAVED_LIMIT", defaultSavedLimit),
		tapeCache:   cache,
	}, nil
}

func (s *SQLiteService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteService) AppendLiveEvent(tapeID string, env *codec.ServerEnvelope, encoded []byte) {
	if strings.TrimSpace(tapeID) == "" || env == nil {
		return
	}
	if encoded == nil {
		raw, err := json.Marshal(env)
		if err != nil {
			log.Printf("[Archive] marshal live event failed: tape=%s err=%v", tapeID, err)
			return
		}
		encoded = raw
	}

	payloadB64 := base64.StdEncoding.EncodeToString(encoded)
	nowMs := time.Now().UTC().UnixMilli()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO archive_event_stream (
    source, tape_id, seq, event_type, payload_b64, server_ts_ms, created_at_ms
)
VALUES ('live', ?, ?, ?, ?, ?, ?)
ON CONFLICT (source, tape_id, seq) DO NOTHING
`, tapeID, int64(env.ServerSeq), env.Type, payloadB64, nullableInt64(env.ServerTsMs), nowMs)
	if err != nil {
		log.Printf("[Archive] append live event failed: tape=%s seq=%d err=%v", tapeID, env.ServerSeq, err)
	}
}

func (s *SQLiteService) UpsertLiveTape(userID uint64, tapeID string, playedAt time.Time, summary map[string]any) {
	s.upsertLiveTapeInternal(userID, tapeID, playedAt, summary, nil)
}

func (s *SQLiteService) UpsertLiveTapeWithEvents(
	userID uint64,
	tapeID string,
	playedAt time.Time,
	summary map[string]any,
	events []EventItem,
) {
	var tapeBlob []byte
	if len(events) > 0 {
		raw, err := json.Marshal(events)
		if err != nil {
			log.Printf("[Archive] marshal live tape events failed: user=%d tape=%s err=%v", userID, tapeID, err)
		} else {
			tapeBlob = raw
		}
	}
	s.upsertLiveTapeInternal(userID, tapeID, playedAt, summary, tapeBlob)
	s.tapeCache.Remove(tapeCacheKey(userID, SourceLive, tapeID))
}

func (s *SQLiteService) upsertLiveTapeInternal(
	userID uint64,
	tapeID string,
	playedAt time.Time,
	summary map[string]any,
	tapeBlob []byte,
) {
	if userID == 0 || strings.TrimSpace(tapeID) == "" {
		return
	}
	if playedAt.IsZero() {
		playedAt = time.Now().UTC()
	}
	if summary == nil {
		summary = map[string]any{}
	}
	summaryRaw, err := json.Marshal(summary)
	if err != nil {
		log.Printf("[Archive] marshal tape summary failed: user=%d tape=%s err=%v", userID, tapeID, err)
		return
	}

	playedAtMs := playedAt.UTC().UnixMilli()
	nowMs := time.Now().UTC().UnixMilli()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("[Archive] begin upsert live tape tx failed: user=%d tape=%s err=%v", userID, tapeID, err)
		return
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO archive_user_tape_history (
    user_id, source, tape_id, played_at_ms, summary_json, tape_blob, is_saved, saved_at_ms, created_at_ms, updated_at_ms
)
VALUES (?, 'live', ?, ?, ?, ?, 0, NULL, ?, ?)
ON CONFLICT (user_id, source, tape_id) DO UPDATE
SET
    played_at_ms = excluded.played_at_ms,
    summary_json = excluded.summary_json,
    tape_blob = COALESCE(excluded.tape_blob, archive_user_tape_history.tape_blob),
    updated_at_ms = excluded.updated_at_ms
`, userID, tapeID, playedAtMs, string(summaryRaw), nullableBytes(tapeBlob), nowMs, nowMs)
	if err != nil {
		log.Printf("[Archive] upsert live tape failed: user=%d tape=%s err=%v", userID, tapeID, err)
		return
	}

	if s.recentLimit > 0 {
		_, err = tx.ExecContext(ctx, `
DELETE FROM archive_user_tape_history
WHERE user_id = ?
  AND source = 'live'
  AND is_saved = 0
  AND id IN (
      SELECT id
      FROM archive_user_tape_history
      WHERE user_id = ?
        AND source = 'live'
        AND is_saved = 0
      ORDER BY played_at_ms DESC, id DESC
      LIMIT -1 OFFSET ?
  )
`, userID, userID, s.recentLimit)
		if err != nil {
			log.Printf("[Archive] trim live tapes failed: user=%d err=%v", userID, err)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[Archive] commit live tape failed: user=%d tape=%s err=%v", userID, tapeID, err)
	}
}

func (s *SQLiteService) UpsertAuthoredTape(
	ctx context.Context,
	userID uint64,
	tapeID string,
	events []EventItem,
	summary map[string]any,
) error {
	if userID == 0 || strings.TrimSpace(tapeID) == "" {
		return ErrNotFound
	}
	if len(events) == 0 {
		return fmt.Errorf("events is required")
	}
	if summary == nil {
		summary = map[string]any{}
	}
	if _, ok := summary["event_count"]; !ok {
		summary["event_count"] = len(events)
	}
	summaryRaw, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	nowMs := time.Now().UTC().UnixMilli()
	for _, e := range events {
		if e.EventType == "" {
			e.EventType = "unknown"
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO archive_event_stream (
    source, tape_id, seq, event_type, payload_b64, server_ts_ms, created_at_ms
)
VALUES ('authored', ?, ?, ?, ?, ?, ?)
ON CONFLICT (source, tape_id, seq) DO UPDATE
SET
    event_type = excluded.event_type,
    payload_b64 = excluded.payload_b64,
    server_ts_ms = excluded.server_ts_ms
`, tapeID, int64(e.Seq), e.EventType, e.PayloadB64, nullableInt64Ptr(e.ServerTsMs), nowMs)
		if err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO archive_user_tape_history (
    user_id, source, tape_id, played_at_ms, summary_json, is_saved, saved_at_ms, created_at_ms, updated_at_ms
)
VALUES (?, 'authored', ?, ?, ?, 0, NULL, ?, ?)
ON CONFLICT (user_id, source, tape_id) DO UPDATE
SET
    played_at_ms = excluded.played_at_ms,
    summary_json = excluded.summary_json,
    updated_at_ms = excluded.updated_at_ms
`, userID, tapeID, nowMs, string(summaryRaw), nowMs, nowMs)
	if err != nil {
		return err
	}

	if s.recentLimit > 0 {
		_, err = tx.ExecContext(ctx, `
DELETE FROM archive_user_tape_history
WHERE user_id = ?
  AND source = 'authored'
  AND is_saved = 0
  AND id IN (
      SELECT id
      FROM archive_user_tape_history
      WHERE user_id = ?
        AND source = 'authored'
        AND is_saved = 0
      ORDER BY played_at_ms DESC, id DESC
      LIMIT -1 OFFSET ?
  )
`, userID, userID, s.recentLimit)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.tapeCache.Remove(tapeCacheKey(userID, SourceAuthored, tapeID))
	return nil
}

func (s *SQLiteService) ListRecent(ctx context.Context, userID uint64, source Source, limit int) ([]TapeItem, error) {
	if userID == 0 {
		return []TapeItem{}, nil
	}
	if !isArchiveSource(source) {
		return nil, fmt.Errorf("invalid source %q", source)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT tape_id, source, played_at_ms, summary_json, is_saved, saved_at_ms, updated_at_ms
FROM archive_user_tape_history
WHERE user_id = ?
  AND source = ?
ORDER BY played_at_ms DESC, id DESC
LIMIT ?
`, userID, string(source), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]TapeItem, 0, limit)
	for rows.Next() {
		var item TapeItem
		var sourceRaw string
		var playedAtMs int64
		var summaryRaw []byte
		var isSaved int64
		var savedAtMs sql.NullInt64
		var updatedAtMs int64
		if err := rows.Scan(&item.TapeID, &sourceRaw, &playedAtMs, &summaryRaw, &isSaved, &savedAtMs, &updatedAtMs); err != nil {
			return nil, err
		}
		item.Source = Source(sourceRaw)
		item.PlayedAt = time.UnixMilli(playedAtMs).UTC()
		item.IsSaved = isSaved == 1
		if savedAtMs.Valid {
			t := time.UnixMilli(savedAtMs.Int64).UTC()
			item.SavedAt = &t
		}
		item.UpdatedAt = time.UnixMilli(updatedAtMs).UTC()
		if len(summaryRaw) > 0 {
			_ = json.Unmarshal(summaryRaw, &item.Summary)
		}
		if item.Summary == nil {
			item.Summary = map[string]any{}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLiteService) GetTapeEvents(ctx context.Context, userID uint64, source Source, tapeID string) ([]EventItem, error) {
	if userID == 0 || strings.TrimSpace(tapeID) == "" {
		return nil, ErrNotFound
	}
	if !isArchiveSource(source) {
		return nil, fmt.Errorf("invalid source %q", source)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cacheKey := tapeCacheKey(userID, source, tapeID)
	if events, ok := s.tapeCache.Get(cacheKey); ok {
		return events, nil
	}

	var tapeBlob []byte
	err := s.db.QueryRowContext(ctx, `
SELECT tape_blob
FROM archive_user_tape_history
WHERE user_id = ?
  AND source = ?
  AND tape_id = ?
`, userID, string(source), tapeID).Scan(&tapeBlob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(tapeBlob) > 0 {
		var events []EventItem
		if err := json.Unmarshal(tapeBlob, &events); err == nil && len(events) > 0 {
			s.tapeCache.Add(cacheKey, events)
			return events, nil
		}
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT seq, event_type, payload_b64, server_ts_ms
FROM archive_event_stream
WHERE source = ?
  AND tape_id = ?
ORDER BY seq ASC
`, string(source), tapeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]EventItem, 0, 64)
	for rows.Next() {
		var e EventItem
		var seq int64
		var serverTs sql.NullInt64
		if err := rows.Scan(&seq, &e.EventType, &e.PayloadB64, &serverTs); err != nil {
			return nil, err
		}
		e.Seq = uint64(seq)
		if serverTs.Valid {
			v := serverTs.Int64
			e.ServerTsMs = &v
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}
	s.tapeCache.Add(cacheKey, events)
	return events, nil
}

func (s *SQLiteService) SetSaved(ctx context.Context, userID uint64, source Source, tapeID string, saved bool) error {
	if userID == 0 || strings.TrimSpace(tapeID) == "" {
		return ErrNotFound
	}
	if !isArchiveSource(source) {
		return fmt.Errorf("invalid source %q", source)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current int64
	err = tx.QueryRowContext(ctx, `
SELECT is_saved
FROM archive_user_tape_history
WHERE user_id = ?
  AND source = ?
  AND tape_id = ?
`, userID, string(source), tapeID).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if (current == 1) == saved {
		return tx.Commit()
	}

	nowMs := time.Now().UTC().UnixMilli()
	if saved {
		var savedCount int
		if err := tx.QueryRowContext(ctx, `
SELECT COUNT(1)
FROM archive_user_tape_history
WHERE user_id = ?
  AND source = ?
  AND is_saved = 1
`, userID, string(source)).Scan(&savedCount); err != nil {
			return err
		}
		if savedCount >= s.savedLimit {
			return ErrSavedLimitReach
		}
		_, err := tx.ExecContext(ctx, `
UPDATE archive_user_tape_history
SET is_saved = 1,
    saved_at_ms = ?,
    updated_at_ms = ?
WHERE user_id = ?
  AND source = ?
  AND tape_id = ?
`, nowMs, nowMs, userID, string(source), tapeID)
		if err != nil {
			return err
		}
		return tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `
UPDATE archive_user_tape_history
SET is_saved = 0,
    saved_at_ms = NULL,
    updated_at_ms = ?
WHERE user_id = ?
  AND source = ?
  AND tape_id = ?
`, nowMs, userID, string(source), tapeID)
	if err != nil {
		return err
	}

	if s.recentLimit > 0 {
		_, err = tx.ExecContext(ctx, `
DELETE FROM archive_user_tape_history
WHERE user_id = ?
  AND source = ?
  AND is_saved = 0
  AND id IN (
      SELECT id
      FROM archive_user_tape_history
      WHERE user_id = ?
        AND source = ?
        AND is_saved = 0
      ORDER BY played_at_ms DESC, id DESC
      LIMIT -1 OFFSET ?
  )
`, userID, string(source), userID, string(source), s.recentLimit)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func ensureSQLiteArchiveSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`
CREATE TABLE IF NOT EXISTS archive_event_stream (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,
    tape_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    event_type TEXT NOT NULL,
    payload_b64 TEXT NOT NULL DEFAULT '',
    server_ts_ms INTEGER,
    created_at_ms INTEGER NOT NULL,
    UNIQUE (source, tape_id, seq)
)`,
		`CREATE INDEX IF NOT EXISTS idx_archive_event_stream_tape_seq ON archive_event_stream(source, tape_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_archive_event_stream_created_at ON archive_event_stream(created_at_ms)`,
		`
CREATE TABLE IF NOT EXISTS archive_user_tape_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    source TEXT NOT NULL,
    tape_id TEXT NOT NULL,
    played_at_ms INTEGER NOT NULL,
    summary_json TEXT NOT NULL DEFAULT '{}',
    tape_blob BLOB,
    is_saved INTEGER NOT NULL DEFAULT 0,
    saved_at_ms INTEGER,
    created_at_ms INTEGER NOT NULL,
    updated_at_ms INTEGER NOT NULL,
    UNIQUE (user_id, source, tape_id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_archive_user_tape_history_recent ON archive_user_tape_history(user_id, source, played_at_ms DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_archive_user_tape_history_saved ON archive_user_tape_history(user_id, source, is_saved, saved_at_ms DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_archive_user_tape_history_trim ON archive_user_tape_history(user_id, source, played_at_ms ASC, id ASC)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func archiveLocalDatabasePathFromEnv() (string, error) {
	candidates := []string{
		strings.TrimSpace(os.Getenv("ARCHIVE_LOCAL_DATABASE_PATH")),
		strings.TrimSpace(os.Getenv("AUTH_LOCAL_DATABASE_PATH")),
		strings.TrimSpace(os.Getenv("LOCAL_DATABASE_PATH")),
	}
	for _, candidate := range candidates {
		if candidate != "" {
			return filepath.Clean(candidate), nil
		}
	}

	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userConfigDir, "RapportLite", defaultLocalDBName), nil
}
