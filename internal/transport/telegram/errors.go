package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "pricewatch/internal/transport"
)

// mapError turns Bot API failures into the transport's error vocabulary.
// Unknown errors are returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var fe tele.FloodError
	if errors.As(err, &fe) {
		return &kit.RateLimitError{RetryAfter: retryAfter(fe.RetryAfter)}
	}
	var pfe *tele.FloodError
	if errors.As(err, &pfe) && pfe != nil {
		return &kit.RateLimitError{RetryAfter: retryAfter(pfe.RetryAfter)}
	}
	if errors.Is(err, tele.ErrChatNotFound) {
		return fmt.Errorf("%w: %v", kit.ErrChatNotFound, err)
	}
	var te *tele.Error
	if errors.As(err, &te) && te != nil {
		switch te.Code {
		case 403:
			return fmt.Errorf("%w: %s", kit.ErrForbidden, te.Description)
		case 429:
			return &kit.RateLimitError{RetryAfter: time.Second}
		}
	}

	// Errors telebot does not know about come back as plain text.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "chat not found"), strings.Contains(msg, "username_not_occupied"):
		return fmt.Errorf("%w: %v", kit.ErrChatNotFound, err)
	case strings.Contains(msg, "forbidden"):
		return fmt.Errorf("%w: %v", kit.ErrForbidden, err)
	}
	return err
}

func retryAfter(sec int) time.Duration {
	if sec <= 0 {
		return time.Second
	}
	return time.Duration(sec) * time.Second
}

func parseChatID(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}
