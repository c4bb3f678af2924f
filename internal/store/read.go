package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/chainvault/internal/fault"
	"github.com/roach88/chainvault/internal/ir"
)

// Record is a record's metadata without its payload.
type Record struct {
	ID            string    `json:"id"`
	Encrypted     bool      `json:"encrypted"`
	Compressed    bool      `json:"compressed"`
	ContentDigest string    `json:"content_digest"`
	BlockHash     string    `json:"block_hash"`
	Seq           int64     `json:"seq"`
	Format        string    `json:"format"`
	Size          int       `json:"size"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HistoryEntry is one attested write of a record.
type HistoryEntry struct {
	Seq           int64     `json:"seq"`
	ID            string    `json:"id"`
	ContentDigest string    `json:"content_digest"`
	BlockHash     string    `json:"block_hash"`
	Encrypted     bool      `json:"encrypted"`
	WrittenAt     time.Time `json:"written_at"`
}

// LoadData returns the value stored under id, decrypting it if needed.
//
// Fails with NOT_FOUND if the record is absent, DECRYPTION if the key
// material does not open it, and INTEGRITY_VIOLATION if the stored bytes
// no longer match the digest recorded at write time.
func (s *Store) LoadData(ctx context.Context, id string) (ir.IRValue, error) {
	var (
		p      payload
		digest string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT payload, wrapped_key, nonce, encrypted, compressed, content_digest
		FROM records
		WHERE id = ?
	`, id).Scan(&p.Data, &p.WrappedKey, &p.Nonce, &p.Encrypted, &p.Compressed, &digest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.NotFound("store.LoadData", "record "+id)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}

	canonical, err := s.openPayload(p)
	if err != nil {
		return nil, err
	}
	return decodeValue(id, canonical, digest)
}

// Has reports whether a record exists under id.
func (s *Store) Has(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM records WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has %s: %w", id, err)
	}
	return true, nil
}

// Record returns the metadata of the record stored under id.
func (s *Store) Record(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, encrypted, compressed, content_digest, block_hash, seq, format, length(payload), updated_at
		FROM records
		WHERE id = ?
	`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fault.NotFound("store.Record", "record "+id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("record %s: %w", id, err)
	}
	return r, nil
}

// Records returns the metadata of every record whose id starts with
// prefix, ordered by id.
func (s *Store) Records(ctx context.Context, prefix string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, encrypted, compressed, content_digest, block_hash, seq, format, length(payload), updated_at
		FROM records
		WHERE substr(id, 1, length(?)) = ?
		ORDER BY id COLLATE BINARY ASC
	`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Keys returns the ids of every record starting with prefix, ordered.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	records, err := s.Records(ctx, prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(records))
	for i, r := range records {
		keys[i] = r.ID
	}
	return keys, nil
}

// History returns every attested write of id, oldest first.
// Returns an empty slice (not nil) for an id that was never written.
func (s *Store) History(ctx context.Context, id string) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, record_id, content_digest, block_hash, encrypted, written_at
		FROM record_history
		WHERE record_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var (
			e         HistoryEntry
			writtenAt int64
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.ContentDigest, &e.BlockHash, &e.Encrypted, &writtenAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.WrittenAt = time.UnixMilli(writtenAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		r         Record
		updatedAt int64
	)
	if err := row.Scan(
		&r.ID,
		&r.Encrypted,
		&r.Compressed,
		&r.ContentDigest,
		&r.BlockHash,
		&r.Seq,
		&r.Format,
		&r.Size,
		&updatedAt,
	); err != nil {
		return Record{}, err
	}
	r.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return r, nil
}
