package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const defaultConnectionString = "Host=localhost;Port=5432;Database=ledger_transfer_db;Username=postgres;Password=postgres;Timeout=30;CommandTimeout=30"
const defaultChannelID = "LedgerApp"
const defaultChannelKey = "LedgerChannelKey001"
const defaultListenAddr = ":8080"

const defaultValueDatePastDays = 30
const defaultValueDateFutureDays = 1
const defaultReconciliationCutoff = 5 * time.Minute

type Config struct {
	DatabaseDSN          string
	MigrationsDir        string
	ListenAddr           string
	ChannelID            string
	ChannelKeyHash       []byte
	ValueDatePast        time.Duration
	ValueDateFuture      time.Duration
	ReconciliationCutoff time.Duration
}

func Load() (Config, error) {
	conn := strings.TrimSpace(os.Getenv("DATABASE_DSN"))
	if conn == "" {
		conn = defaultConnectionString
	}

	listenAddr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if listenAddr == "" {
		listenAddr = defaultListenAddr
	}

	channelID := strings.TrimSpace(os.Getenv("CHANNEL_ID"))
	if channelID == "" {
		channelID = defaultChannelID
	}

	channelKeyHash, err := loadChannelKeyHash()
	if err != nil {
		return Config{}, err
	}

	pastDays, err := envDays("VALUE_DATE_PAST_DAYS", defaultValueDatePastDays)
	if err != nil {
		return Config{}, err
	}
	futureDays, err := envDays("VALUE_DATE_FUTURE_DAYS", defaultValueDateFutureDays)
	if err != nil {
		return Config{}, err
	}

	cutoff := defaultReconciliationCutoff
	if raw := strings.TrimSpace(os.Getenv("RECONCILIATION_CUTOFF")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse RECONCILIATION_CUTOFF: %w", err)
		}
		cutoff = parsed
	}

	return Config{
		DatabaseDSN:          normalizeConnectionString(conn),
		MigrationsDir:        filepath.Join("src", "migrations"),
		ListenAddr:           listenAddr,
		ChannelID:            channelID,
		ChannelKeyHash:       channelKeyHash,
		ValueDatePast:        time.Duration(pastDays) * 24 * time.Hour,
		ValueDateFuture:      time.Duration(futureDays) * 24 * time.Hour,
		ReconciliationCutoff: cutoff,
	}, nil
}

// loadChannelKeyHash prefers a precomputed bcrypt hash; a plain key from
// the environment is hashed at startup and never kept.
func loadChannelKeyHash() ([]byte, error) {
	if hash := strings.TrimSpace(os.Getenv("CHANNEL_KEY_HASH")); hash != "" {
		return []byte(hash), nil
	}

	key := strings.TrimSpace(os.Getenv("CHANNEL_KEY"))
	if key == "" {
		key = defaultChannelKey
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash channel key: %w", err)
	}
	return hash, nil
}

func envDays(name string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 0 {
		return 0, fmt.Errorf("%s must be a non-negative number of days", name)
	}
	return days, nil
}

func normalizeConnectionString(raw string) string {
	parts := strings.Split(raw, ";")
	out := make([]string, 0, len(parts))
	hasSSLMode := false

	for _, part := range parts {
		p := strings.TrimSpace(part)
		if p == "" {
			continue
		}

		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}

		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.TrimSpace(kv[1])

		switch key {
		case "host":
			out = append(out, "host="+val)
		case "port":
			out = append(out, "port="+val)
		case "database":
			out = append(out, "dbname="+val)
		case "username":
			out = append(out, "user="+val)
		case "password":
			out = append(out, "password="+val)
		case "timeout", "connect timeout":
			out = append(out, "connect_timeout="+val)
		case "commandtimeout", "command timeout":
			out = append(out, "statement_timeout="+val+"s")
		case "sslmode":
			hasSSLMode = true
			out = append(out, "sslmode="+val)
		default:
			out = append(out, key+"="+val)
		}
	}

	if len(out) == 0 {
		return raw
	}

	if !hasSSLMode {
		out = append(out, "sslmode=disable")
	}

	return strings.Join(out, " ")
}
