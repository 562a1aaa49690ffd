package model

import (
	"strconv"
	"strings"
)

// channelIDPrefix marks supergroup/channel ids in the Bot API.
const channelIDPrefix = "-100"

// FormatChatID renders a chat id the way it is stored as a Source identifier.
func FormatChatID(id int64) string { return strconv.FormatInt(id, 10) }

// ParseChatID parses a numeric identifier. ok is false for usernames.
func ParseChatID(identifier string) (int64, bool) {
	s := strings.TrimSpace(identifier)
	if s == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// StripChannelPrefix drops the "-100" marker used for private channel permalinks.
func StripChannelPrefix(id int64) string {
	s := FormatChatID(id)
	return strings.TrimPrefix(s, channelIDPrefix)
}
