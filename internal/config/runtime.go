package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"

	logx "pricewatch/pkg/logx"
)

// EnvToken overrides telegram.token when set.
const EnvToken = "PRICEWATCH_TELEGRAM_TOKEN"

const (
	DefaultDigestHour = 21
	DefaultLinkRoot   = "https://t.me"
	DefaultOpsAddr    = "127.0.0.1:6060"
)

// Runtime is the resolved, typed view of a Config handed to components at
// construction. Components never see the Config again.
type Runtime struct {
	PollTimeout         time.Duration
	AllowedUserIDs      []int64
	GroupLog            int64
	LinkRoot            string
	StorageDriver       string
	StoragePath         string
	StorageDSN          string
	BusyTimeout         time.Duration
	DigestEnabled       bool
	DigestHour          int
	Location            *time.Location
	BackfillLimit       int
	NotifyDelay         time.Duration
	NotifierRate        int
	NotifierRetryMax    int
	SendTimeout         time.Duration
	JournalSize         int
	ConversationTimeout time.Duration
	OpsEnabled          bool
	OpsAddr             string
	OpsToken            string
}

// ApplyEnv applies environment overrides. getenv is os.Getenv outside tests.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if tok := strings.TrimSpace(getenv(EnvToken)); tok != "" {
		cfg.Telegram.Token = tok
	}
}

// Normalize canonicalises aliases in place.
func Normalize(cfg *Config) {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3":
		cfg.Storage.Driver = "sqlite"
	case "postgres", "postgresql", "pg":
		cfg.Storage.Driver = "postgres"
	}
	cfg.Telegram.Token = strings.TrimSpace(cfg.Telegram.Token)
	cfg.Telegram.LinkRoot = strings.TrimRight(strings.TrimSpace(cfg.Telegram.LinkRoot), "/")
}

// DefaultSQLitePath is $XDG_DATA_HOME/pricewatch/pricewatch.db.
func DefaultSQLitePath() string {
	return filepath.Join(xdg.DataHome, "pricewatch", "pricewatch.db")
}

// Resolve parses durations, loads the timezone and fills defaults.
func (c *Config) Resolve() (Runtime, error) {
	var (
		rt  Runtime
		err error
	)
	durations := []struct {
		path string
		raw  string
		def  time.Duration
		dst  *time.Duration
	}{
		{"telegram.poll_timeout", c.Telegram.PollTimeout, 10 * time.Second, &rt.PollTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout, 5 * time.Second, &rt.BusyTimeout},
		{"backfill.notify_delay", c.Backfill.NotifyDelay, 500 * time.Millisecond, &rt.NotifyDelay},
		{"notifier.send_timeout", c.Notifier.SendTimeout, 10 * time.Second, &rt.SendTimeout},
		{"conversation.timeout", c.Conversation.Timeout, 60 * time.Second, &rt.ConversationTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = ParseDurationOrDefault(d.path, d.raw, d.def); err != nil {
			return Runtime{}, err
		}
	}

	rt.AllowedUserIDs = append([]int64(nil), c.Telegram.AllowedUserIDs...)
	if g := strings.TrimSpace(c.Telegram.GroupLog); g != "" {
		if rt.GroupLog, err = strconv.ParseInt(g, 10, 64); err != nil {
			return Runtime{}, fmt.Errorf("telegram.group_log: %w", err)
		}
	}
	rt.LinkRoot = strings.TrimRight(c.Telegram.LinkRoot, "/")
	if rt.LinkRoot == "" {
		rt.LinkRoot = DefaultLinkRoot
	}

	rt.StorageDriver = c.Storage.Driver
	rt.StoragePath = strings.TrimSpace(c.Storage.Path)
	if rt.StoragePath == "" {
		rt.StoragePath = DefaultSQLitePath()
	}
	rt.StorageDSN = c.Storage.DSN

	rt.DigestEnabled = c.Digest.Enabled == nil || *c.Digest.Enabled
	rt.DigestHour = DefaultDigestHour
	if c.Digest.Hour != nil {
		rt.DigestHour = *c.Digest.Hour
	}
	rt.Location = time.Local
	if tz := strings.TrimSpace(c.Digest.Timezone); tz != "" {
		if rt.Location, err = time.LoadLocation(tz); err != nil {
			return Runtime{}, fmt.Errorf("digest.timezone: %w", err)
		}
	}

	rt.BackfillLimit = c.Backfill.Limit
	rt.NotifierRate = c.Notifier.RatePerSec
	rt.NotifierRetryMax = 1
	if c.Notifier.RetryMax != nil {
		rt.NotifierRetryMax = *c.Notifier.RetryMax
	}
	rt.JournalSize = c.Source.JournalSize
	rt.OpsEnabled = c.Ops.Enabled
	rt.OpsAddr = c.Ops.Addr
	rt.OpsToken = strings.TrimSpace(c.Ops.Token)
	if rt.OpsAddr == "" {
		rt.OpsAddr = DefaultOpsAddr
	}
	return rt, nil
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// LogConfig converts the logging section for logx.New / Service.Apply.
func (c *Config) LogConfig() logx.Config {
	l := c.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}
