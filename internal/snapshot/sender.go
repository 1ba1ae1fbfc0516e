package snapshot

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/yuuyuu661/seiri/internal/discord"
)

// Sender delivers a snapshot directory to a destination channel:
// structure, roster and manifest first, then the message-history files
// in fixed-size batches with a pause between batches to stay under the
// destination's throughput limits.
type Sender struct {
	session   discord.Session
	batchSize int
	pause     time.Duration
	sleep     func(time.Duration)
}

func NewSender(session discord.Session, batchSize int, pause time.Duration) *Sender {
	return &Sender{
		session:   session,
		batchSize: batchSize,
		pause:     pause,
		sleep:     time.Sleep,
	}
}

// SendSummary uploads every file under dir to the destination channel.
func (s *Sender) SendSummary(destChannelID, dir string) error {
	header := fmt.Sprintf("Backup snapshot %s", filepath.Base(dir))
	if _, err := s.session.ChannelMessageSendComplex(destChannelID, &discordgo.MessageSend{
		Content: header,
	}); err != nil {
		return fmt.Errorf("send snapshot header: %w", err)
	}

	// Top-level exports go first, in a stable order.
	for _, name := range []string{"guild.json.gz", "members.json.gz", "manifest.json.gz"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			log.Printf("[snapshot] missing %s, skipping", path)
			continue
		}
		if err := s.sendFiles(destChannelID, []string{path}); err != nil {
			return err
		}
	}

	histories, err := filepath.Glob(filepath.Join(dir, "messages", "*.jsonl.gz"))
	if err != nil {
		return fmt.Errorf("glob history files: %w", err)
	}
	sort.Strings(histories)

	for i := 0; i < len(histories); i += s.batchSize {
		end := i + s.batchSize
		if end > len(histories) {
			end = len(histories)
		}
		if i > 0 {
			s.sleep(s.pause)
		}
		if err := s.sendFiles(destChannelID, histories[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sender) sendFiles(destChannelID string, paths []string) error {
	files := make([]*discordgo.File, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		files = append(files, &discordgo.File{
			Name:        filepath.Base(path),
			ContentType: "application/gzip",
			Reader:      bytes.NewReader(data),
		})
	}
	if _, err := s.session.ChannelMessageSendComplex(destChannelID, &discordgo.MessageSend{
		Files: files,
	}); err != nil {
		return fmt.Errorf("send %d snapshot files: %w", len(paths), err)
	}
	return nil
}
