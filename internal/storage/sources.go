package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pricewatch/internal/model"
)

const sourceColumns = `id, identifier, title, added_at`

func scanSource(r rowScanner) (model.Source, error) {
	var (
		src     model.Source
		title   sql.NullString
		addedAt int64
	)
	if err := r.Scan(&src.ID, &src.Identifier, &title, &addedAt); err != nil {
		return model.Source{}, err
	}
	src.Title = strPtr(title)
	src.AddedAt = fromMillis(addedAt)
	return src, nil
}

// UpsertSource creates the source on first sight. A non-empty title replaces
// the stored one.
func (s *SQLStore) UpsertSource(ctx context.Context, identifier string, title *string) (model.Source, error) {
	if identifier == "" {
		return model.Source{}, fmt.Errorf("storage: upsert source: empty identifier")
	}
	src, err := scanSource(s.queryRow(ctx,
		`INSERT INTO sources(identifier, title, added_at) VALUES(?, ?, ?)
		 ON CONFLICT(identifier) DO UPDATE SET title = COALESCE(excluded.title, sources.title)
		 RETURNING `+sourceColumns,
		identifier, nullStr(title), toMillis(time.Now()),
	))
	if err != nil {
		return model.Source{}, fmt.Errorf("storage: upsert source: %w", err)
	}
	return src, nil
}

func (s *SQLStore) SourceByIdentifier(ctx context.Context, identifier string) (model.Source, error) {
	src, err := scanSource(s.queryRow(ctx, `SELECT `+sourceColumns+` FROM sources WHERE identifier = ?`, identifier))
	if err != nil {
		return model.Source{}, notFound(err)
	}
	return src, nil
}

func (s *SQLStore) AddMembership(ctx context.Context, m model.Membership) error {
	_, err := s.exec(ctx,
		`INSERT INTO memberships(owner_id, source_id) VALUES(?, ?) ON CONFLICT DO NOTHING`,
		m.OwnerID, m.SourceID,
	)
	if err != nil {
		return fmt.Errorf("storage: add membership: %w", err)
	}
	return nil
}

func (s *SQLStore) RemoveMembership(ctx context.Context, m model.Membership) error {
	res, err := s.exec(ctx, `DELETE FROM memberships WHERE owner_id = ? AND source_id = ?`, m.OwnerID, m.SourceID)
	if err != nil {
		return fmt.Errorf("storage: remove membership: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) SourcesForOwner(ctx context.Context, ownerID int64) ([]model.Source, error) {
	rows, err := s.query(ctx,
		`SELECT s.id, s.identifier, s.title, s.added_at FROM sources s
		 JOIN memberships m ON m.source_id = s.id
		 WHERE m.owner_id = ?
		 ORDER BY s.id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("storage: sources for owner: %w", err)
	}
	defer rows.Close()

	var out []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}
