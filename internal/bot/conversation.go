package bot

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pricewatch/internal/model"
)

// step is what a conversation waits for next.
type step int

const (
	stepChannel step = iota
	stepChoice
	stepProduct
	stepPrice
	stepCategory
	stepConfirm
)

func (s step) String() string {
	switch s {
	case stepChannel:
		return "channel"
	case stepChoice:
		return "choice"
	case stepProduct:
		return "product"
	case stepPrice:
		return "price"
	case stepCategory:
		return "category"
	case stepConfirm:
		return "confirm"
	default:
		return "unknown"
	}
}

// conversation is the per-owner multi-message state of an interactive
// command. Only the owner's shard worker mutates it.
type conversation struct {
	command  string // "/watch", "/add_channel", ...
	step     step
	lang     string
	chatID   int64
	deadline time.Time

	// numbered choices offered by /remove_channel, /unwatch and /history
	sources []model.Source
	watches []model.Watch

	// /watch draft
	product   string
	target    *decimal.Decimal
	category  *string
	suggested *decimal.Decimal
}

// conversations maps owners to their open conversation. The sweeper reads it
// from its own goroutine, hence the lock.
type conversations struct {
	mu sync.Mutex
	m  map[int64]*conversation
}

func newConversations() *conversations {
	return &conversations{m: make(map[int64]*conversation)}
}

func (c *conversations) get(ownerID int64) *conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[ownerID]
}

func (c *conversations) put(ownerID int64, conv *conversation) {
	c.mu.Lock()
	c.m[ownerID] = conv
	c.mu.Unlock()
}

// advance moves conv to next and renews its deadline.
func (c *conversations) advance(conv *conversation, next step, deadline time.Time) {
	c.mu.Lock()
	conv.step = next
	conv.deadline = deadline
	c.mu.Unlock()
}

// end removes conv if it is still the owner's current conversation.
func (c *conversations) end(ownerID int64, conv *conversation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.m[ownerID]; ok && cur == conv {
		delete(c.m, ownerID)
		return true
	}
	return false
}

// expired lists conversations whose deadline is before now.
func (c *conversations) expired(now time.Time) map[int64]*conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out map[int64]*conversation
	for id, conv := range c.m {
		if now.After(conv.deadline) {
			if out == nil {
				out = make(map[int64]*conversation)
			}
			out[id] = conv
		}
	}
	return out
}

func (c *conversations) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}
