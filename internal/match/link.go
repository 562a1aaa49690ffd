package match

import (
	"strconv"
	"strings"

	"pricewatch/internal/model"
)

// DefaultLinkRoot is the public permalink host for Telegram messages.
const DefaultLinkRoot = "https://t.me"

// Permalink builds a link to msg: "<root>/<handle>/<id>" for public sources,
// "<root>/c/<id>/<id>" for private channels, nil when neither is known.
func Permalink(root string, msg model.Message) *string {
	root = strings.TrimRight(strings.TrimSpace(root), "/")
	if root == "" {
		root = DefaultLinkRoot
	}
	id := strconv.Itoa(msg.MessageID)

	var link string
	switch {
	case msg.SourceHandle != "":
		link = root + "/" + strings.TrimPrefix(msg.SourceHandle, "@") + "/" + id
	case msg.SourceID != 0:
		link = root + "/c/" + model.StripChannelPrefix(msg.SourceID) + "/" + id
	default:
		return nil
	}
	return &link
}
