package schedule

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// catchUpSlack is how far past the weekly interval a guild's last
// successful run may drift before a missed window is assumed.
const catchUpSlack = time.Hour

// doubleFireGuard suppresses a second fire for the same guild inside
// one scheduling window.
const doubleFireGuard = time.Hour

// Service fires the weekly backup snapshot. A persisted last-run
// timestamp per guild prevents double fires inside one window and lets
// a restart catch up on a window the process slept through.
type Service struct {
	statePath string
	weekday   int
	hour      int

	// Guilds supplies the ids to back up; OnBackup runs one backup.
	Guilds   func() []string
	OnBackup func(guildID string) error

	mu      sync.Mutex
	lastRun map[string]time.Time
	cron    *rcron.Cron
	now     func() time.Time
}

func NewService(dataDir string, weekday, hour int) *Service {
	return &Service{
		statePath: filepath.Join(dataDir, "backup_state.json"),
		weekday:   weekday,
		hour:      hour,
		lastRun:   make(map[string]time.Time),
		now:       time.Now,
	}
}

func (s *Service) Start() error {
	if err := s.load(); err != nil {
		log.Printf("[schedule] warning: failed to load backup state: %v", err)
	}

	s.cron = rcron.New()
	spec := fmt.Sprintf("0 %d * * %d", s.hour, s.weekday)
	if _, err := s.cron.AddFunc(spec, s.runAll); err != nil {
		return fmt.Errorf("register weekly backup (%s): %w", spec, err)
	}
	s.cron.Start()
	log.Printf("[schedule] weekly backup registered (%s)", spec)

	go s.catchUp()
	return nil
}

func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		log.Printf("[schedule] stop timeout waiting for running backup")
	}
	log.Printf("[schedule] stopped")
}

func (s *Service) runAll() {
	if s.Guilds == nil {
		return
	}
	for _, guildID := range s.Guilds() {
		s.RunGuild(guildID)
	}
}

// RunGuild fires one backup unless the guild already ran inside the
// current window. The marker is only advanced on success, so a failed
// run is retried at the next opportunity.
func (s *Service) RunGuild(guildID string) {
	s.mu.Lock()
	last, ok := s.lastRun[guildID]
	s.mu.Unlock()
	if ok && s.now().Sub(last) < doubleFireGuard {
		log.Printf("[schedule] guild %s already backed up at %s, skipping", guildID, last.Format(time.RFC3339))
		return
	}

	if s.OnBackup == nil {
		log.Printf("[schedule] no backup handler set")
		return
	}
	if err := s.OnBackup(guildID); err != nil {
		log.Printf("[schedule] backup for guild %s failed: %v", guildID, err)
		return
	}

	s.mu.Lock()
	s.lastRun[guildID] = s.now()
	if err := s.save(); err != nil {
		log.Printf("[schedule] warning: failed to save backup state: %v", err)
	}
	s.mu.Unlock()
}

// catchUp fires immediately for guilds whose marker shows a missed
// weekly window. Guilds with no marker wait for their first scheduled
// window instead of firing on every boot.
func (s *Service) catchUp() {
	if s.Guilds == nil {
		return
	}
	threshold := 7*24*time.Hour + catchUpSlack
	for _, guildID := range s.Guilds() {
		s.mu.Lock()
		last, ok := s.lastRun[guildID]
		s.mu.Unlock()
		if !ok {
			continue
		}
		if s.now().Sub(last) > threshold {
			log.Printf("[schedule] guild %s missed its weekly window (last run %s), catching up",
				guildID, last.Format(time.RFC3339))
			s.RunGuild(guildID)
		}
	}
}

func (s *Service) load() error {
	data, err := os.ReadFile(s.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Unmarshal(data, &s.lastRun)
}

// save persists the marker map. Caller must hold s.mu.
func (s *Service) save() error {
	if err := os.MkdirAll(filepath.Dir(s.statePath), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.lastRun, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.statePath, data, 0644)
}
