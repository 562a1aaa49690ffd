package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"pricewatch/internal/match"
	"pricewatch/internal/model"
)

const watchColumns = `id, owner_id, name, target_price, category, added_at`

func scanWatch(r rowScanner, extra ...any) (model.Watch, error) {
	var (
		w        model.Watch
		target   sql.NullString
		category sql.NullString
		addedAt  int64
	)
	dest := append([]any{&w.ID, &w.OwnerID, &w.Name, &target, &category, &addedAt}, extra...)
	if err := r.Scan(dest...); err != nil {
		return model.Watch{}, err
	}
	price, err := decimalPtr(target)
	if err != nil {
		return model.Watch{}, err
	}
	w.TargetPrice = price
	w.Category = strPtr(category)
	w.AddedAt = fromMillis(addedAt)
	return w, nil
}

// AddWatch stores w with its name lowercased. Uniqueness is keyed on the
// matcher's normalized form, so "i-Phone 15" and "iphone 15" collide and
// ErrDuplicate is returned.
func (s *SQLStore) AddWatch(ctx context.Context, w model.Watch) (model.Watch, error) {
	w.Name = strings.ToLower(strings.TrimSpace(w.Name))
	norm := match.Normalize(w.Name)
	if norm == "" {
		return model.Watch{}, fmt.Errorf("storage: add watch: empty name")
	}
	if w.AddedAt.IsZero() {
		w.AddedAt = time.Now()
	}
	err := s.queryRow(ctx,
		`INSERT INTO watches(owner_id, name, norm_name, target_price, category, added_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(owner_id, norm_name) DO NOTHING
		 RETURNING id`,
		w.OwnerID, w.Name, norm, nullDecimal(w.TargetPrice), nullStr(w.Category), toMillis(w.AddedAt),
	).Scan(&w.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Watch{}, ErrDuplicate
	}
	if err != nil {
		return model.Watch{}, fmt.Errorf("storage: add watch: %w", err)
	}
	return w, nil
}

func (s *SQLStore) WatchesForOwner(ctx context.Context, ownerID int64) ([]model.Watch, error) {
	rows, err := s.query(ctx, `SELECT `+watchColumns+` FROM watches WHERE owner_id = ? ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("storage: watches for owner: %w", err)
	}
	defer rows.Close()

	var out []model.Watch
	for rows.Next() {
		w, err := scanWatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// DeleteWatch removes the watch and, by cascade, its match records.
func (s *SQLStore) DeleteWatch(ctx context.Context, ownerID, watchID int64) error {
	res, err := s.exec(ctx, `DELETE FROM watches WHERE id = ? AND owner_id = ?`, watchID, ownerID)
	if err != nil {
		return fmt.Errorf("storage: delete watch: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// WatchesForSource returns every watch whose owner is a member of a source
// stored under one of identifiers and is not paused. Each owner's watches are
// returned at most once even if several identifiers resolve to sources it
// joined.
func (s *SQLStore) WatchesForSource(ctx context.Context, identifiers []string) ([]model.WatchTarget, error) {
	if len(identifiers) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(identifiers)+1)
	for _, id := range identifiers {
		args = append(args, id)
	}
	args = append(args, false)

	rows, err := s.query(ctx,
		`SELECT w.id, w.owner_id, w.name, w.target_price, w.category, w.added_at,
		        o.username, o.paused, o.lang, o.notify_chat_id, o.added_at
		 FROM watches w
		 JOIN owners o ON o.owner_id = w.owner_id
		 WHERE w.owner_id IN (
		     SELECT m.owner_id FROM memberships m
		     JOIN sources s ON s.id = m.source_id
		     WHERE s.identifier IN (`+placeholders(len(identifiers))+`)
		 ) AND o.paused = ?
		 ORDER BY w.owner_id, w.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: watches for source: %w", err)
	}
	defer rows.Close()

	var out []model.WatchTarget
	for rows.Next() {
		var (
			o       model.OwnerPreferences
			addedAt int64
		)
		w, err := scanWatch(rows, &o.Username, &o.Paused, &o.Language, &o.NotifyChatID, &addedAt)
		if err != nil {
			return nil, err
		}
		o.OwnerID = w.OwnerID
		o.AddedAt = fromMillis(addedAt)
		out = append(out, model.WatchTarget{Watch: w, Owner: o})
	}
	return out, rows.Err()
}
