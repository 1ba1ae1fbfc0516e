package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// DefaultRetentionCap is the per-room record ceiling applied at
	// export time for guilds that never changed it.
	DefaultRetentionCap = 5000
	// Retention bounds enforced by the admin surface.
	MinRetentionCap = 100
	MaxRetentionCap = 200000

	// DefaultChunkBytes keeps transcript attachments under Discord's
	// upload limit with headroom.
	DefaultChunkBytes = 7.5 * 1024 * 1024

	DefaultBackupWeekday   = 0 // Sunday
	DefaultBackupHour      = 4
	DefaultHistoryDays     = 7
	DefaultSendBatchSize   = 5
	DefaultSendBatchPause  = "2s"
	DefaultMemberPageSize  = 1000
	DefaultMessagePageSize = 100
)

type Config struct {
	Discord DiscordConfig `json:"discord"`
	Storage StorageConfig `json:"storage"`
	Backup  BackupConfig  `json:"backup"`
}

type DiscordConfig struct {
	Token string `json:"token"`
	// GuildIDs get instant per-guild command sync; empty means global
	// sync (slow propagation).
	GuildIDs []string `json:"guildIds"`
	// AllowedRoleID may run admin commands without the usual guild
	// permission.
	AllowedRoleID string `json:"allowedRoleId,omitempty"`
}

type StorageConfig struct {
	// DataDir holds room logs, guild settings, backup state and
	// snapshot exports.
	DataDir string `json:"dataDir"`
}

type BackupConfig struct {
	// Weekday/Hour designate the weekly snapshot window (local time).
	Weekday int `json:"weekday"`
	Hour    int `json:"hour"`
	// HistoryDays is the snapshot message look-back window.
	HistoryDays int `json:"historyDays"`
	// SendBatchSize/SendBatchPause throttle snapshot file delivery.
	SendBatchSize  int    `json:"sendBatchSize"`
	SendBatchPause string `json:"sendBatchPause"`
}

func DefaultConfig() *Config {
	return &Config{
		Discord: DiscordConfig{},
		Storage: StorageConfig{
			DataDir: filepath.Join(ConfigDir(), "data"),
		},
		Backup: BackupConfig{
			Weekday:        DefaultBackupWeekday,
			Hour:           DefaultBackupHour,
			HistoryDays:    DefaultHistoryDays,
			SendBatchSize:  DefaultSendBatchSize,
			SendBatchPause: DefaultSendBatchPause,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".seiri")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if token := os.Getenv("DISCORD_TOKEN"); token != "" {
		cfg.Discord.Token = token
	}
	if ids := os.Getenv("GUILD_IDS"); ids != "" {
		cfg.Discord.GuildIDs = splitIDs(ids)
	}
	if role := os.Getenv("SEIRI_ALLOWED_ROLE_ID"); role != "" {
		cfg.Discord.AllowedRoleID = role
	}
	if dir := os.Getenv("SEIRI_DATA_DIR"); dir != "" {
		cfg.Storage.DataDir = dir
	}
	if day := os.Getenv("SEIRI_BACKUP_WEEKDAY"); day != "" {
		if parsed, err := strconv.Atoi(day); err == nil {
			cfg.Backup.Weekday = parsed
		}
	}
	if hour := os.Getenv("SEIRI_BACKUP_HOUR"); hour != "" {
		if parsed, err := strconv.Atoi(hour); err == nil {
			cfg.Backup.Hour = parsed
		}
	}

	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = DefaultConfig().Storage.DataDir
	}
	if cfg.Backup.HistoryDays <= 0 {
		cfg.Backup.HistoryDays = DefaultHistoryDays
	}
	if cfg.Backup.SendBatchSize <= 0 {
		cfg.Backup.SendBatchSize = DefaultSendBatchSize
	}
	if cfg.Backup.SendBatchPause == "" {
		cfg.Backup.SendBatchPause = DefaultSendBatchPause
	}
	if cfg.Backup.Weekday < 0 || cfg.Backup.Weekday > 6 {
		cfg.Backup.Weekday = DefaultBackupWeekday
	}
	if cfg.Backup.Hour < 0 || cfg.Backup.Hour > 23 {
		cfg.Backup.Hour = DefaultBackupHour
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}

// splitIDs parses a comma or space separated snowflake list, keeping
// first occurrences only.
func splitIDs(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Fields(strings.ReplaceAll(s, ",", " ")) {
		if !isDigits(part) {
			continue
		}
		if _, ok := seen[part]; ok {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
