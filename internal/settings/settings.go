package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/yuuyuu661/seiri/internal/config"
)

// GuildSettings holds the mutable per-guild archive configuration.
type GuildSettings struct {
	// ArchiveChannelID is where transcripts and snapshot summaries go.
	// Empty means emission is skipped (logs are still purged).
	ArchiveChannelID string `json:"archive_channel_id,omitempty"`
	// RetentionCap bounds the records kept per room at export time.
	RetentionCap int `json:"retention_cap"`
	// CategoryWhitelist restricts capture to rooms under the listed
	// parent categories. Empty means no filter.
	CategoryWhitelist []string `json:"category_whitelist,omitempty"`
	// TrackedChannels are included in snapshot message history.
	TrackedChannels []string `json:"tracked_channels,omitempty"`
	// StrictDeletes rejects delete tombstones whose author could not
	// be resolved instead of capturing them as "unknown".
	StrictDeletes bool `json:"strict_deletes,omitempty"`
}

// CategoryAllowed reports whether a room under categoryID passes the
// whitelist. Rooms without a parent category pass only when no
// whitelist is set.
func (g GuildSettings) CategoryAllowed(categoryID string) bool {
	if len(g.CategoryWhitelist) == 0 {
		return true
	}
	for _, id := range g.CategoryWhitelist {
		if id == categoryID {
			return true
		}
	}
	return false
}

// Store persists the guild id -> settings map as one JSON file under
// the data dir. Loaded once at startup; every mutation saves the whole
// collection back.
type Store struct {
	path string

	mu     sync.Mutex
	guilds map[string]*GuildSettings
}

func NewStore(dataDir string) *Store {
	return &Store{
		path:   filepath.Join(dataDir, "settings.json"),
		guilds: make(map[string]*GuildSettings),
	}
}

// Load reads the settings file. A missing file is not an error.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read settings: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := json.Unmarshal(data, &s.guilds); err != nil {
		return fmt.Errorf("parse settings: %w", err)
	}
	return nil
}

// guild returns the live entry, creating defaults on first access.
// Caller must hold s.mu.
func (s *Store) guild(guildID string) *GuildSettings {
	g, ok := s.guilds[guildID]
	if !ok {
		g = &GuildSettings{RetentionCap: config.DefaultRetentionCap}
		s.guilds[guildID] = g
	}
	if g.RetentionCap <= 0 {
		g.RetentionCap = config.DefaultRetentionCap
	}
	return g
}

// Guild returns a copy of the guild's settings.
func (s *Store) Guild(guildID string) GuildSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := *s.guild(guildID)
	g.CategoryWhitelist = append([]string(nil), g.CategoryWhitelist...)
	g.TrackedChannels = append([]string(nil), g.TrackedChannels...)
	return g
}

// GuildIDs lists every guild with persisted settings.
func (s *Store) GuildIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.guilds))
	for id := range s.guilds {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Store) SetArchiveChannel(guildID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guild(guildID).ArchiveChannelID = channelID
	return s.save()
}

func (s *Store) SetRetentionCap(guildID string, cap int) error {
	if cap < config.MinRetentionCap || cap > config.MaxRetentionCap {
		return fmt.Errorf("retention cap %d out of range [%d, %d]",
			cap, config.MinRetentionCap, config.MaxRetentionCap)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guild(guildID).RetentionCap = cap
	return s.save()
}

func (s *Store) AddWhitelistCategory(guildID, categoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.guild(guildID)
	for _, id := range g.CategoryWhitelist {
		if id == categoryID {
			return nil
		}
	}
	g.CategoryWhitelist = append(g.CategoryWhitelist, categoryID)
	return s.save()
}

func (s *Store) RemoveWhitelistCategory(guildID, categoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.guild(guildID)
	for i, id := range g.CategoryWhitelist {
		if id == categoryID {
			g.CategoryWhitelist = append(g.CategoryWhitelist[:i], g.CategoryWhitelist[i+1:]...)
			return s.save()
		}
	}
	return nil
}

func (s *Store) ClearWhitelist(guildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guild(guildID).CategoryWhitelist = nil
	return s.save()
}

func (s *Store) SetTrackedChannels(guildID string, channelIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guild(guildID).TrackedChannels = append([]string(nil), channelIDs...)
	return s.save()
}

func (s *Store) SetStrictDeletes(guildID string, strict bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guild(guildID).StrictDeletes = strict
	return s.save()
}

// save persists the whole collection. Caller must hold s.mu.
func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	data, err := json.MarshalIndent(s.guilds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return os.WriteFile(s.path, data, 0644)
}
