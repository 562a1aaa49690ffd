package config

import (
	"reflect"
	"sort"
	"strings"

	logx "pricewatch/pkg/logx"
)

// SummarizeConfigChange returns the changed sections, safe attrs for logging
// and the subset of changed sections that only take effect after a restart.
// Secrets (token, DSN) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		!reflect.DeepEqual(ot.AllowedUserIDs, nt.AllowedUserIDs) ||
		strings.TrimSpace(ot.GroupLog) != strings.TrimSpace(nt.GroupLog) ||
		ot.LinkRoot != nt.LinkRoot {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.Int("telegram.allowed_count", len(nt.AllowedUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(nt.GroupLog) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	ost, ns := oldCfg.Storage, newCfg.Storage
	if ost.Driver != ns.Driver || ost.Path != ns.Path || ost.DSN != ns.DSN || ost.BusyTimeout != ns.BusyTimeout {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", ns.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(ns.Path) != ""),
			logx.Bool("storage.dsn_changed", ost.DSN != ns.DSN),
		)
	}

	if !reflect.DeepEqual(oldCfg.Digest, newCfg.Digest) {
		changed = append(changed, "digest")
		attrs = append(attrs, logx.String("digest.timezone", newCfg.Digest.Timezone))
		if newCfg.Digest.Hour != nil {
			attrs = append(attrs, logx.Int("digest.hour", *newCfg.Digest.Hour))
		}
	}

	simple := []struct {
		name     string
		old, new any
	}{
		{"backfill", oldCfg.Backfill, newCfg.Backfill},
		{"notifier", oldCfg.Notifier, newCfg.Notifier},
		{"source", oldCfg.Source, newCfg.Source},
		{"conversation", oldCfg.Conversation, newCfg.Conversation},
		{"ops", oldCfg.Ops, newCfg.Ops},
	}
	for _, s := range simple {
		if !reflect.DeepEqual(s.old, s.new) {
			changed = append(changed, s.name)
		}
	}

	sort.Strings(changed)
	restart := make([]string, 0, len(changed))
	for _, name := range changed {
		if name != "logging" {
			restart = append(restart, name)
		}
	}
	return changed, attrs, restart
}
