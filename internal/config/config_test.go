package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Backup.HistoryDays != DefaultHistoryDays {
		t.Errorf("historyDays = %d, want %d", cfg.Backup.HistoryDays, DefaultHistoryDays)
	}
	if cfg.Backup.Weekday != DefaultBackupWeekday {
		t.Errorf("weekday = %d, want %d", cfg.Backup.Weekday, DefaultBackupWeekday)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("data dir should default under the config dir")
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("GUILD_IDS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Backup.SendBatchSize != DefaultSendBatchSize {
		t.Errorf("sendBatchSize = %d, want %d", cfg.Backup.SendBatchSize, DefaultSendBatchSize)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DISCORD_TOKEN", "tok-from-env")
	t.Setenv("GUILD_IDS", "111, 222 111 abc")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Discord.Token != "tok-from-env" {
		t.Errorf("token = %q, want tok-from-env", cfg.Discord.Token)
	}
	want := []string{"111", "222"}
	if !reflect.DeepEqual(cfg.Discord.GuildIDs, want) {
		t.Errorf("guildIds = %v, want %v", cfg.Discord.GuildIDs, want)
	}
}

func TestSaveAndLoadRoundtrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("GUILD_IDS", "")

	cfg := DefaultConfig()
	cfg.Discord.Token = "saved-token"
	cfg.Backup.Weekday = 3
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(ConfigDir(), "config.json")); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if loaded.Discord.Token != "saved-token" {
		t.Errorf("token = %q, want saved-token", loaded.Discord.Token)
	}
	if loaded.Backup.Weekday != 3 {
		t.Errorf("weekday = %d, want 3", loaded.Backup.Weekday)
	}
}

func TestLoadConfig_ClampsBadBackupWindow(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("GUILD_IDS", "")

	cfg := DefaultConfig()
	cfg.Backup.Weekday = 9
	cfg.Backup.Hour = 99
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig error: %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if loaded.Backup.Weekday != DefaultBackupWeekday {
		t.Errorf("weekday = %d, want clamped default", loaded.Backup.Weekday)
	}
	if loaded.Backup.Hour != DefaultBackupHour {
		t.Errorf("hour = %d, want clamped default", loaded.Backup.Hour)
	}
}

func TestSplitIDs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"111,222,333", []string{"111", "222", "333"}},
		{"111 222", []string{"111", "222"}},
		{"111, 111, 222", []string{"111", "222"}},
		{"abc, 12x", nil},
		{"", nil},
	}
	for _, tt := range tests {
		if got := splitIDs(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitIDs(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
