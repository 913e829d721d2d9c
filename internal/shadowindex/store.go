package shadowindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed implementation of the shadow index. All
// methods are safe for concurrent use; the underlying *sql.DB pools its
// own connections and every mutating statement commits its own
// transaction, so no
// operation leaves the index partially updated.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

const (
	pragmas = "?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
)

// Open opens (creating if necessary) the SQLite database at path and
// applies pending migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path+pragmas)
	if err != nil {
		return nil, fmt.Errorf("shadowindex: opening %s: %w", path, err)
	}

	// The shadow index is a single local file; modernc.org/sqlite doesn't
	// support concurrent writers across connections without WAL, and even
	// with WAL only one writer is ever in flight at a time, a short
	// exclusive lock per row held only during commit.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the ShadowRecord for path, or found=false if none exists.
func (s *Store) Get(ctx context.Context, localPath string) (rec ShadowRecord, found bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT kind, content_hash, original_size, modified_at, unix_mode, last_seen_archive_recorded_at
		FROM shadow_records WHERE local_path = ?`, localPath)

	var (
		contentHash []byte
		unixMode    sql.NullInt64
	)

	err = row.Scan(&rec.Kind, &contentHash, &rec.OriginalSize, &rec.ModifiedAt, &unixMode, &rec.LastSeenArchiveRecordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ShadowRecord{}, false, nil
	}

	if err != nil {
		return ShadowRecord{}, false, fmt.Errorf("shadowindex: get %q: %w", localPath, err)
	}

	rec.ContentHash = contentHash

	if unixMode.Valid {
		m := uint32(unixMode.Int64)
		rec.UnixMode = &m
	}

	return rec, true, nil
}

// Put inserts or replaces the ShadowRecord for path. Each call commits
// atomically: a crash between Put calls leaves at most one
// side (local or remote) ahead by a single uncommitted operation.
func (s *Store) Put(ctx context.Context, localPath string, rec ShadowRecord) error {
	var unixMode sql.NullInt64
	if rec.UnixMode != nil {
		unixMode = sql.NullInt64{Int64: int64(*rec.UnixMode), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shadow_records (local_path, kind, content_hash, original_size, modified_at, unix_mode, last_seen_archive_recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_path) DO UPDATE SET
			kind=excluded.kind, content_hash=excluded.content_hash, original_size=excluded.original_size,
			modified_at=excluded.modified_at, unix_mode=excluded.unix_mode,
			last_seen_archive_recorded_at=excluded.last_seen_archive_recorded_at`,
		localPath, rec.Kind, rec.ContentHash, rec.OriginalSize, rec.ModifiedAt, unixMode, rec.LastSeenArchiveRecordedAt)
	if err != nil {
		return fmt.Errorf("shadowindex: put %q: %w", localPath, err)
	}

	return nil
}

// Delete removes the ShadowRecord for path.
func (s *Store) Delete(ctx context.Context, localPath string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM shadow_records WHERE local_path = ?`, localPath); err != nil {
		return fmt.Errorf("shadowindex: delete %q: %w", localPath, err)
	}

	return nil
}

// IterDescendants returns every ShadowRecord whose path is root or a
// descendant of root, in lexicographic (depth-first-friendly) order.
func (s *Store) IterDescendants(ctx context.Context, root string) ([]ShadowEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT local_path, kind, content_hash, original_size, modified_at, unix_mode, last_seen_archive_recorded_at
		FROM shadow_records
		WHERE local_path = ? OR (local_path > ? AND local_path < ?)
		ORDER BY local_path ASC`, root, root+"/", root+"0")
	if err != nil {
		return nil, fmt.Errorf("shadowindex: iter descendants of %q: %w", root, err)
	}
	defer rows.Close()

	var out []ShadowEntry

	for rows.Next() {
		var (
			e           ShadowEntry
			contentHash []byte
			unixMode    sql.NullInt64
		)

		if err := rows.Scan(&e.LocalPath, &e.Record.Kind, &contentHash, &e.Record.OriginalSize,
			&e.Record.ModifiedAt, &unixMode, &e.Record.LastSeenArchiveRecordedAt); err != nil {
			return nil, fmt.Errorf("shadowindex: scanning row: %w", err)
		}

		e.Record.ContentHash = contentHash

		if unixMode.Valid {
			m := uint32(unixMode.Int64)
			e.Record.UnixMode = &m
		}

		out = append(out, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("shadowindex: iterating rows: %w", err)
	}

	return out, nil
}

const lastPulledKey = "last_pulled_recorded_at"

// SetLastPulledRecordedAt persists the high-water mark pull_updates has
// advanced to.
func (s *Store) SetLastPulledRecordedAt(ctx context.Context, t int64) error {
	return s.setMeta(ctx, lastPulledKey, fmt.Sprintf("%d", t))
}

// GetLastPulledRecordedAt returns the persisted watermark, 0 if never set.
func (s *Store) GetLastPulledRecordedAt(ctx context.Context) (int64, error) {
	v, ok, err := s.getMeta(ctx, lastPulledKey)
	if err != nil {
		return 0, err
	}

	if !ok {
		return 0, nil
	}

	var t int64
	if _, err := fmt.Sscanf(v, "%d", &t); err != nil {
		return 0, fmt.Errorf("shadowindex: parsing %s: %w", lastPulledKey, err)
	}

	return t, nil
}

func (s *Store) setMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("shadowindex: setting meta %q: %w", key, err)
	}

	return nil
}

func (s *Store) getMeta(ctx context.Context, key string) (string, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key)

	var v string
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}

		return "", false, fmt.Errorf("shadowindex: getting meta %q: %w", key, err)
	}

	return v, true, nil
}

// ApplyRemoteEntries upserts a batch of RemoteEntry rows and advances the
// pull watermark in a single transaction, satisfying pull_updates' "either
// all fetched entries in one page are applied and the watermark advanced,
// or none are" crash-safety requirement.
func (s *Store) ApplyRemoteEntries(ctx context.Context, entries []RemoteEntry, newWatermark int64) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("shadowindex: beginning pull transaction: %w", err)
	}

	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO remote_entries (encrypted_path, recorded_at, source_id, kind, content_hash, encrypted_size, original_size, modified_at, unix_mode)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(encrypted_path) DO UPDATE SET
			recorded_at=excluded.recorded_at, source_id=excluded.source_id, kind=excluded.kind,
			content_hash=excluded.content_hash, encrypted_size=excluded.encrypted_size,
			original_size=excluded.original_size, modified_at=excluded.modified_at, unix_mode=excluded.unix_mode
		WHERE excluded.recorded_at > remote_entries.recorded_at`)
	if err != nil {
		return fmt.Errorf("shadowindex: preparing remote entry upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err = stmt.ExecContext(ctx, e.EncryptedPath, e.RecordedAt, e.SourceID[:], e.Kind,
			e.ContentHash, e.EncryptedSize, e.OriginalSize, e.ModifiedAt, e.UnixMode); err != nil {
			return fmt.Errorf("shadowindex: upserting remote entry %q: %w", e.EncryptedPath, err)
		}
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`, lastPulledKey, fmt.Sprintf("%d", newWatermark)); err != nil {
		return fmt.Errorf("shadowindex: advancing watermark: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("shadowindex: committing pull transaction: %w", err)
	}

	return nil
}

// GetRemoteEntry returns the cached latest-known Entry for an encrypted
// path, or found=false if none is cached.
func (s *Store) GetRemoteEntry(ctx context.Context, encryptedPath string) (re RemoteEntry, found bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT encrypted_path, recorded_at, source_id, kind, content_hash, encrypted_size, original_size, modified_at, unix_mode
		FROM remote_entries WHERE encrypted_path = ?`, encryptedPath)

	re, found, err = scanRemoteEntry(row)
	if err != nil {
		return RemoteEntry{}, false, fmt.Errorf("shadowindex: get remote entry %q: %w", encryptedPath, err)
	}

	return re, found, nil
}

// ListRemoteDescendants returns every cached Entry whose path is prefix
// or a descendant of it, sorted lexicographically.
func (s *Store) ListRemoteDescendants(ctx context.Context, prefix string) ([]RemoteEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT encrypted_path, recorded_at, source_id, kind, content_hash, encrypted_size, original_size, modified_at, unix_mode
		FROM remote_entries
		WHERE encrypted_path = ? OR (encrypted_path > ? AND encrypted_path < ?)
		ORDER BY encrypted_path ASC`, prefix, prefix+"/", prefix+"0")
	if err != nil {
		return nil, fmt.Errorf("shadowindex: list remote descendants of %q: %w", prefix, err)
	}
	defer rows.Close()

	var out []RemoteEntry

	for rows.Next() {
		re, _, err := scanRemoteEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("shadowindex: scanning remote entry: %w", err)
		}

		out = append(out, re)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].EncryptedPath < out[j].EncryptedPath })

	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRemoteEntry(row rowScanner) (RemoteEntry, bool, error) {
	var (
		re            RemoteEntry
		sourceID      []byte
		contentHash   []byte
		encryptedSize sql.NullInt64
		originalSize  sql.NullInt64
		modifiedAt    sql.NullInt64
		unixMode      sql.NullInt64
	)

	err := row.Scan(&re.EncryptedPath, &re.RecordedAt, &sourceID, &re.Kind, &contentHash,
		&encryptedSize, &originalSize, &modifiedAt, &unixMode)
	if errors.Is(err, sql.ErrNoRows) {
		return RemoteEntry{}, false, nil
	}

	if err != nil {
		return RemoteEntry{}, false, err
	}

	copy(re.SourceID[:], sourceID)
	re.ContentHash = contentHash
	re.EncryptedSize = encryptedSize.Int64
	re.OriginalSize = originalSize.Int64

	if modifiedAt.Valid {
		re.ModifiedAt = &modifiedAt.Int64
	}

	if unixMode.Valid {
		m := uint32(unixMode.Int64)
		re.UnixMode = &m
	}

	return re, true, nil
}

// RecordConflict logs a BothChanged resolution for the progress
// collaborator.
func (s *Store) RecordConflict(ctx context.Context, c Conflict) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO conflicts (local_path, detected_at, local_content_hash, remote_content_hash, resolved)
		VALUES (?, ?, ?, ?, 0)`, c.LocalPath, c.DetectedAt, c.LocalContentHash, c.RemoteContentHash)
	if err != nil {
		return 0, fmt.Errorf("shadowindex: recording conflict for %q: %w", c.LocalPath, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("shadowindex: reading conflict id: %w", err)
	}

	return id, nil
}

// ListConflicts returns every recorded conflict, most recent first.
func (s *Store) ListConflicts(ctx context.Context) ([]Conflict, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, local_path, detected_at, local_content_hash, remote_content_hash, resolved
		FROM conflicts ORDER BY detected_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("shadowindex: listing conflicts: %w", err)
	}
	defer rows.Close()

	var out []Conflict

	for rows.Next() {
		var c Conflict

		var resolved int

		if err := rows.Scan(&c.ID, &c.LocalPath, &c.DetectedAt, &c.LocalContentHash, &c.RemoteContentHash, &resolved); err != nil {
			return nil, fmt.Errorf("shadowindex: scanning conflict: %w", err)
		}

		c.Resolved = resolved != 0
		out = append(out, c)
	}

	return out, rows.Err()
}
