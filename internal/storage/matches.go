package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pricewatch/internal/match"
	"pricewatch/internal/model"
)

const matchSelect = `SELECT m.id, m.watch_id, m.owner_id, w.name, m.price, m.source_name, m.source_key,
	m.message_id, m.excerpt, m.link, m.origin, m.found_at
	FROM matches m JOIN watches w ON w.id = m.watch_id`

func scanMatch(r rowScanner) (model.MatchRecord, error) {
	var (
		rec     model.MatchRecord
		price   sql.NullString
		link    sql.NullString
		origin  string
		foundAt int64
	)
	err := r.Scan(&rec.ID, &rec.WatchID, &rec.OwnerID, &rec.Product, &price, &rec.SourceName, &rec.SourceKey,
		&rec.MessageID, &rec.Excerpt, &link, &origin, &foundAt)
	if err != nil {
		return model.MatchRecord{}, err
	}
	p, err := decimalPtr(price)
	if err != nil {
		return model.MatchRecord{}, err
	}
	rec.Price = p
	rec.Link = strPtr(link)
	rec.Origin = model.Origin(origin)
	rec.FoundAt = fromMillis(foundAt)
	return rec, nil
}

// InsertMatch appends rec. ErrDuplicate means a record with the same
// (watch, source key, message id) exists and nothing was written.
func (s *SQLStore) InsertMatch(ctx context.Context, rec model.MatchRecord) (model.MatchRecord, error) {
	if rec.FoundAt.IsZero() {
		rec.FoundAt = time.Now()
	}
	rec.Excerpt = model.Truncate(rec.Excerpt, model.ExcerptLimit)
	err := s.queryRow(ctx,
		`INSERT INTO matches(watch_id, owner_id, price, source_name, source_key, message_id, excerpt, link, origin, found_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(watch_id, source_key, message_id) DO NOTHING
		 RETURNING id`,
		rec.WatchID, rec.OwnerID, nullDecimal(rec.Price), rec.SourceName, rec.SourceKey, rec.MessageID,
		rec.Excerpt, nullStr(rec.Link), string(rec.Origin), toMillis(rec.FoundAt),
	).Scan(&rec.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.MatchRecord{}, ErrDuplicate
	}
	if err != nil {
		return model.MatchRecord{}, fmt.Errorf("storage: insert match: %w", err)
	}
	return rec, nil
}

// MatchesSince returns the owner's records found at or after since, newest first.
func (s *SQLStore) MatchesSince(ctx context.Context, ownerID int64, since time.Time) ([]model.MatchRecord, error) {
	return s.listMatches(ctx,
		matchSelect+` WHERE m.owner_id = ? AND m.found_at >= ? ORDER BY m.found_at DESC, m.id DESC`,
		ownerID, since.UnixMilli())
}

// MatchesForWatch returns the newest limit records of a watch.
func (s *SQLStore) MatchesForWatch(ctx context.Context, watchID int64, limit int) ([]model.MatchRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.listMatches(ctx,
		matchSelect+` WHERE m.watch_id = ? ORDER BY m.found_at DESC, m.id DESC LIMIT ?`,
		watchID, limit)
}

func (s *SQLStore) listMatches(ctx context.Context, query string, args ...any) ([]model.MatchRecord, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list matches: %w", err)
	}
	defer rows.Close()

	var out []model.MatchRecord
	for rows.Next() {
		rec, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MinPriceForName returns the lowest price ever recorded for any watch whose
// normalized name equals that of name, across owners. Prices are stored as exact decimal
// text, so the minimum is computed here rather than in SQL.
func (s *SQLStore) MinPriceForName(ctx context.Context, name string) (*decimal.Decimal, error) {
	rows, err := s.query(ctx,
		`SELECT m.price FROM matches m JOIN watches w ON w.id = m.watch_id
		 WHERE w.norm_name = ? AND m.price IS NOT NULL`, match.Normalize(name))
	if err != nil {
		return nil, fmt.Errorf("storage: min price: %w", err)
	}
	defer rows.Close()

	var lowest *decimal.Decimal
	for rows.Next() {
		var raw sql.NullString
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		p, err := decimalPtr(raw)
		if err != nil || p == nil {
			continue
		}
		if lowest == nil || p.LessThan(*lowest) {
			lowest = p
		}
	}
	return lowest, rows.Err()
}
