package logstore

import (
	"bufio"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/yuuyuu661/seiri/internal/record"
)

// Store keeps one append-only log per room: an in-memory buffer plus a
// JSONL file under <dataDir>/logs. Every append goes to both; reads
// merge the two and dedup. Disk failures are logged and swallowed, the
// buffer stays authoritative until the room is purged.
type Store struct {
	dir string

	mu    sync.Mutex
	rooms map[string]*roomLog
}

// roomLog is the handle for a single room. Its mutex makes every
// append/load/purge on the room an exclusive section. The handle stays
// in the map after a purge with purged set: an append whose handler was
// already in flight when the room was destroyed lands on the dead
// handle and is dropped instead of re-creating the file.
type roomLog struct {
	mu     sync.Mutex
	path   string
	buf    []record.Record
	purged bool
}

func New(dataDir string) *Store {
	return &Store{
		dir:   filepath.Join(dataDir, "logs"),
		rooms: make(map[string]*roomLog),
	}
}

func (s *Store) room(roomID string) *roomLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	rl, ok := s.rooms[roomID]
	if !ok {
		rl = &roomLog{path: filepath.Join(s.dir, roomID+".jsonl")}
		s.rooms[roomID] = rl
	}
	return rl
}

// Append stores rec in the room's buffer and appends one JSON line to
// its file. A failed disk write is logged, not returned: the in-memory
// copy still reflects the event. An append that lost the race against
// the room's destruction is dropped.
func (s *Store) Append(roomID string, rec record.Record) {
	rl := s.room(roomID)
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.purged {
		log.Printf("[logstore] dropping append to destroyed room %s", roomID)
		return
	}

	rl.buf = append(rl.buf, rec)

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		log.Printf("[logstore] mkdir %s: %v", s.dir, err)
		return
	}
	line, err := json.Marshal(rec)
	if err != nil {
		log.Printf("[logstore] marshal record for room %s: %v", roomID, err)
		return
	}
	f, err := os.OpenFile(rl.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Printf("[logstore] open %s: %v", rl.path, err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		log.Printf("[logstore] append to %s: %v", rl.path, err)
	}
}

// LoadMerged returns the room's disk records followed by its buffered
// records, deduplicated first-seen-wins. Disk order comes first so an
// already-flushed copy of an event stays authoritative over a buffered
// duplicate. A missing or corrupt file reads as empty.
func (s *Store) LoadMerged(roomID string) []record.Record {
	rl := s.room(roomID)
	rl.mu.Lock()
	defer rl.mu.Unlock()

	merged := readDisk(rl.path)
	merged = append(merged, rl.buf...)
	return record.Dedup(merged)
}

func readDisk(path string) []record.Record {
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[logstore] read %s: %v", path, err)
		}
		return nil
	}
	defer f.Close()

	var out []record.Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			log.Printf("[logstore] skipping corrupt line in %s: %v", path, err)
			continue
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		log.Printf("[logstore] scan %s: %v", path, err)
	}
	return out
}

// Drain returns the room's merged, deduplicated records and purges the
// room, all under one hold of the room lock. This is the destroy path:
// no append can slip between the read and the purge, and any append
// still in flight afterward hits the dead handle.
func (s *Store) Drain(roomID string) []record.Record {
	rl := s.room(roomID)
	rl.mu.Lock()
	defer rl.mu.Unlock()

	merged := readDisk(rl.path)
	merged = append(merged, rl.buf...)
	out := record.Dedup(merged)

	rl.buf = nil
	rl.purged = true
	if err := os.Remove(rl.path); err != nil && !os.IsNotExist(err) {
		log.Printf("[logstore] remove %s: %v", rl.path, err)
	}
	return out
}

// Purge drops the room's buffer and deletes its file without reading
// it. Idempotent; the dead handle keeps later appends from re-creating
// the file.
func (s *Store) Purge(roomID string) {
	rl := s.room(roomID)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.buf = nil
	rl.purged = true
	if err := os.Remove(rl.path); err != nil && !os.IsNotExist(err) {
		log.Printf("[logstore] remove %s: %v", rl.path, err)
	}
}

// FlushBuffers drops every in-memory buffer, leaving the disk files in
// place. Used by the admin cache-purge operation.
func (s *Store) FlushBuffers() int {
	s.mu.Lock()
	rooms := make([]*roomLog, 0, len(s.rooms))
	for _, rl := range s.rooms {
		rooms = append(rooms, rl)
	}
	s.mu.Unlock()

	n := 0
	for _, rl := range rooms {
		rl.mu.Lock()
		n += len(rl.buf)
		rl.buf = nil
		rl.mu.Unlock()
	}
	return n
}

// TrackedRooms lists rooms with a live handle, skipping destroyed ones.
func (s *Store) TrackedRooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rooms))
	for id, rl := range s.rooms {
		rl.mu.Lock()
		purged := rl.purged
		rl.mu.Unlock()
		if purged {
			continue
		}
		out = append(out, id)
	}
	return out
}
