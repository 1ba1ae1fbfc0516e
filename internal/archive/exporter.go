package archive

import (
	"bytes"
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/yuuyuu661/seiri/internal/config"
	"github.com/yuuyuu661/seiri/internal/discord"
	"github.com/yuuyuu661/seiri/internal/logstore"
	"github.com/yuuyuu661/seiri/internal/record"
	"github.com/yuuyuu661/seiri/internal/settings"
)

// Exporter turns a destroyed room's merged log into a chunked transcript
// and emits it to the guild's archive channel. The room's log never
// survives the room: purge runs whatever the emission outcome.
type Exporter struct {
	session  discord.Session
	store    *logstore.Store
	settings *settings.Store
	maxChunk int
	now      func() time.Time
}

func New(session discord.Session, store *logstore.Store, st *settings.Store) *Exporter {
	return &Exporter{
		session:  session,
		store:    store,
		settings: st,
		maxChunk: config.DefaultChunkBytes,
		now:      time.Now,
	}
}

// Register attaches the channel-delete handler to a live session.
func (e *Exporter) Register(ds *discordgo.Session) {
	ds.AddHandler(func(_ *discordgo.Session, ev *discordgo.ChannelDelete) { e.HandleChannelDelete(ev) })
}

func (e *Exporter) HandleChannelDelete(ev *discordgo.ChannelDelete) {
	ch := ev.Channel
	if ch == nil || ch.GuildID == "" || !discord.IsVoiceText(ch.Type) {
		return
	}
	if !e.settings.Guild(ch.GuildID).CategoryAllowed(ch.ParentID) {
		return
	}
	e.Export(ch)
}

// Export runs the full pipeline for one destroyed room: drain the log
// (read and purge in one exclusive section), enforce the retention cap,
// render, chunk, emit. The drain happens first, so the room's storage is
// gone whatever the emission outcome.
func (e *Exporter) Export(ch *discordgo.Channel) {
	g := e.settings.Guild(ch.GuildID)
	records := e.store.Drain(ch.ID)
	if len(records) == 0 {
		log.Printf("[archive] room %s destroyed with no captured records", ch.ID)
		return
	}

	if len(records) > g.RetentionCap {
		log.Printf("[archive] room %s: dropping %d records over retention cap %d",
			ch.ID, len(records)-g.RetentionCap, g.RetentionCap)
		records = records[len(records)-g.RetentionCap:]
	}
	records = record.Dedup(records)

	transcript := []byte(RenderTranscript(records))

	if g.ArchiveChannelID == "" {
		log.Printf("[archive] no archive channel configured for guild %s, discarding %d records",
			ch.GuildID, len(records))
		return
	}

	guildName := ch.GuildID
	if guild, err := e.session.Guild(ch.GuildID); err == nil {
		guildName = guild.Name
	}

	header := fmt.Sprintf("Archive of deleted room #%s (%s) in %s: %d records, generated %s",
		ch.Name, ch.ID, guildName, len(records), e.now().UTC().Format(timestampLayout))
	if _, err := e.session.ChannelMessageSendComplex(g.ArchiveChannelID, &discordgo.MessageSend{
		Content: header,
	}); err != nil {
		log.Printf("[archive] warning: send header to %s failed, skipping transcript: %v",
			g.ArchiveChannelID, err)
		return
	}

	for i, chunk := range SplitChunks(transcript, e.maxChunk) {
		file := &discordgo.File{
			Name:        fmt.Sprintf("transcript-%s-%02d.txt", ch.ID, i+1),
			ContentType: "text/plain; charset=utf-8",
			Reader:      bytes.NewReader(chunk),
		}
		if _, err := e.session.ChannelMessageSendComplex(g.ArchiveChannelID, &discordgo.MessageSend{
			Files: []*discordgo.File{file},
		}); err != nil {
			log.Printf("[archive] warning: send chunk %d for room %s failed: %v", i+1, ch.ID, err)
			return
		}
	}
	log.Printf("[archive] exported %d records for room %s", len(records), ch.ID)
}
