package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pricewatch/internal/model"
)

const ownerColumns = `owner_id, username, paused, lang, notify_chat_id, added_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOwner(r rowScanner) (model.OwnerPreferences, error) {
	var (
		p       model.OwnerPreferences
		addedAt int64
	)
	if err := r.Scan(&p.OwnerID, &p.Username, &p.Paused, &p.Language, &p.NotifyChatID, &addedAt); err != nil {
		return model.OwnerPreferences{}, err
	}
	p.AddedAt = fromMillis(addedAt)
	return p, nil
}

// EnsureOwner registers p if unknown and refreshes the username otherwise.
// Language and pause state of an existing owner are left untouched.
func (s *SQLStore) EnsureOwner(ctx context.Context, p model.OwnerPreferences) (model.OwnerPreferences, error) {
	if p.Language == "" {
		p.Language = "en"
	}
	_, err := s.exec(ctx,
		`INSERT INTO owners(owner_id, username, paused, lang, notify_chat_id, added_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(owner_id) DO UPDATE SET username = excluded.username`,
		p.OwnerID, p.Username, false, p.Language, p.NotifyChatID, toMillis(p.AddedAt),
	)
	if err != nil {
		return model.OwnerPreferences{}, fmt.Errorf("storage: ensure owner: %w", err)
	}
	return s.Owner(ctx, p.OwnerID)
}

func (s *SQLStore) Owner(ctx context.Context, ownerID int64) (model.OwnerPreferences, error) {
	p, err := scanOwner(s.queryRow(ctx, `SELECT `+ownerColumns+` FROM owners WHERE owner_id = ?`, ownerID))
	if err != nil {
		return model.OwnerPreferences{}, notFound(err)
	}
	return p, nil
}

func (s *SQLStore) SetPaused(ctx context.Context, ownerID int64, paused bool) error {
	return s.updateOwner(ctx, `UPDATE owners SET paused = ? WHERE owner_id = ?`, paused, ownerID)
}

func (s *SQLStore) SetLanguage(ctx context.Context, ownerID int64, lang string) error {
	return s.updateOwner(ctx, `UPDATE owners SET lang = ? WHERE owner_id = ?`, lang, ownerID)
}

func (s *SQLStore) updateOwner(ctx context.Context, query string, args ...any) error {
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("storage: update owner: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) NonPausedOwners(ctx context.Context) ([]model.OwnerPreferences, error) {
	rows, err := s.query(ctx, `SELECT `+ownerColumns+` FROM owners WHERE paused = ? ORDER BY owner_id`, false)
	if err != nil {
		return nil, fmt.Errorf("storage: list owners: %w", err)
	}
	defer rows.Close()

	var out []model.OwnerPreferences
	for rows.Next() {
		p, err := scanOwner(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// OwnerStats aggregates counts and the most frequent product and source.
func (s *SQLStore) OwnerStats(ctx context.Context, ownerID int64) (model.OwnerStats, error) {
	var st model.OwnerStats
	counts := []struct {
		dst   *int
		query string
	}{
		{&st.Watches, `SELECT COUNT(*) FROM watches WHERE owner_id = ?`},
		{&st.Sources, `SELECT COUNT(*) FROM memberships WHERE owner_id = ?`},
		{&st.Matches, `SELECT COUNT(*) FROM matches WHERE owner_id = ?`},
	}
	for _, c := range counts {
		if err := s.queryRow(ctx, c.query, ownerID).Scan(c.dst); err != nil {
			return model.OwnerStats{}, fmt.Errorf("storage: stats: %w", err)
		}
	}
	if st.Matches == 0 {
		return st, nil
	}

	err := s.queryRow(ctx,
		`SELECT w.name, COUNT(m.id) AS cnt FROM matches m
		 JOIN watches w ON w.id = m.watch_id
		 WHERE m.owner_id = ?
		 GROUP BY w.name ORDER BY cnt DESC, w.name LIMIT 1`, ownerID,
	).Scan(&st.TopProduct, &st.TopProductHits)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return model.OwnerStats{}, fmt.Errorf("storage: stats top product: %w", err)
	}

	err = s.queryRow(ctx,
		`SELECT source_name, COUNT(id) AS cnt FROM matches
		 WHERE owner_id = ?
		 GROUP BY source_name ORDER BY cnt DESC, source_name LIMIT 1`, ownerID,
	).Scan(&st.TopSource, &st.TopSourceHits)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return model.OwnerStats{}, fmt.Errorf("storage: stats top source: %w", err)
	}

	var last int64
	if err := s.queryRow(ctx, `SELECT MAX(found_at) FROM matches WHERE owner_id = ?`, ownerID).Scan(&last); err != nil {
		return model.OwnerStats{}, fmt.Errorf("storage: stats last match: %w", err)
	}
	st.LastMatchAt = fromMillis(last)
	return st, nil
}

