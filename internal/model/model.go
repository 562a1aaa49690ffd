// Package model holds the entities shared by the matching pipeline, the
// repository and the bot commands.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Origin tags how a MatchRecord was produced.
type Origin string

const (
	OriginRealtime Origin = "realtime"
	OriginBackfill Origin = "backfill"
)

// ExcerptLimit bounds MatchRecord.Excerpt (in runes).
const ExcerptLimit = 500

// Watch is an owner's request to be notified about a product.
type Watch struct {
	ID      int64
	OwnerID int64
	// Name is stored lowercased; uniqueness is per (owner, name).
	Name        string
	TargetPrice *decimal.Decimal
	Category    *string
	AddedAt     time.Time
}

// HasTarget reports whether the watch is bounded by a target price.
func (w Watch) HasTarget() bool { return w.TargetPrice != nil }

// Source is a channel-like feed that owners can join.
type Source struct {
	ID int64
	// Identifier is either the public username (without "@") or the numeric
	// chat id rendered as a string (e.g. "-1001234567890").
	Identifier string
	Title      *string
	AddedAt    time.Time
}

// DisplayName returns the title if known, else the identifier.
func (s Source) DisplayName() string {
	if s.Title != nil && strings.TrimSpace(*s.Title) != "" {
		return *s.Title
	}
	return s.Identifier
}

// Label renders "Title (identifier)" or just the identifier.
func (s Source) Label() string {
	if s.Title != nil && strings.TrimSpace(*s.Title) != "" {
		return *s.Title + " (" + s.Identifier + ")"
	}
	return s.Identifier
}

// Membership links an owner to a source it receives matches from.
type Membership struct {
	OwnerID  int64
	SourceID int64
}

// OwnerPreferences is the per-owner delivery state.
type OwnerPreferences struct {
	OwnerID  int64
	Username string
	Paused   bool
	Language string
	// NotifyChatID is where notifications go; defaults to OwnerID (private chat).
	NotifyChatID int64
	AddedAt      time.Time
}

// Target returns the chat notifications should be delivered to.
func (p OwnerPreferences) Target() int64 {
	if p.NotifyChatID != 0 {
		return p.NotifyChatID
	}
	return p.OwnerID
}

// MatchRecord is an immutable record of one watch/message match.
type MatchRecord struct {
	ID      int64
	WatchID int64
	OwnerID int64
	// Product is the watch name; filled on reads only.
	Product    string
	Price      *decimal.Decimal
	SourceName string
	// SourceKey and MessageID identify the originating message. Together with
	// WatchID they form the durable delivery key.
	SourceKey string
	MessageID int
	Excerpt   string
	Link      *string
	Origin    Origin
	FoundAt   time.Time
}

// Message is one text message observed in a Source.
type Message struct {
	// SourceID is the numeric chat id (0 if unknown).
	SourceID    int64
	SourceTitle string
	// SourceHandle is the public username, empty for private channels.
	SourceHandle string
	MessageID    int
	Text         string
	PostedAt     time.Time
}

// DisplayName mirrors the listener's choice of a human label for the source.
func (m Message) DisplayName() string {
	switch {
	case strings.TrimSpace(m.SourceTitle) != "":
		return m.SourceTitle
	case m.SourceHandle != "":
		return m.SourceHandle
	default:
		return "Unknown channel"
	}
}

// Identifiers returns every Source.Identifier this message could be stored under.
func (m Message) Identifiers() []string {
	out := make([]string, 0, 2)
	if m.SourceHandle != "" {
		out = append(out, m.SourceHandle)
	}
	if m.SourceID != 0 {
		out = append(out, FormatChatID(m.SourceID))
	}
	return out
}

// SourceKey is the canonical identifier used in delivery keys.
func (m Message) SourceKey() string {
	if m.SourceID != 0 {
		return FormatChatID(m.SourceID)
	}
	return m.SourceHandle
}

// MatchOutcome is the result of a successful evaluation.
type MatchOutcome struct {
	// Price is the lowest extracted price; nil when the watch has no target.
	Price  *decimal.Decimal
	Target *decimal.Decimal
}

// WatchTarget pairs a watch with its owner's delivery preferences.
type WatchTarget struct {
	Watch Watch
	Owner OwnerPreferences
}

// OwnerStats aggregates /stats output.
type OwnerStats struct {
	Watches        int
	Sources        int
	Matches        int
	TopProduct     string
	TopProductHits int
	TopSource      string
	TopSourceHits  int
	LastMatchAt    time.Time
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
