package capture

import (
	"log"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/yuuyuu661/seiri/internal/discord"
	"github.com/yuuyuu661/seiri/internal/logstore"
	"github.com/yuuyuu661/seiri/internal/record"
	"github.com/yuuyuu661/seiri/internal/settings"
)

// Service normalizes create/edit/delete message events from tracked
// voice-text rooms into Records and appends them to the log store.
// Each handler performs exactly one store append and returns.
type Service struct {
	session  discord.Session
	store    *logstore.Store
	settings *settings.Store
}

func New(session discord.Session, store *logstore.Store, st *settings.Store) *Service {
	return &Service{session: session, store: store, settings: st}
}

// Register attaches the message handlers to a live discordgo session.
func (s *Service) Register(ds *discordgo.Session) {
	ds.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) { s.HandleMessageCreate(m) })
	ds.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageUpdate) { s.HandleMessageUpdate(m) })
	ds.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageDelete) { s.HandleMessageDelete(m) })
}

func (s *Service) HandleMessageCreate(m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if !s.roomTracked(m.GuildID, m.ChannelID) {
		return
	}
	rec := record.FromCreate(m.ID, m.Author.ID, displayName(m.Author),
		m.Content, attachmentURLs(m.Attachments), m.Timestamp)
	s.store.Append(m.ChannelID, rec)
}

func (s *Service) HandleMessageUpdate(m *discordgo.MessageUpdate) {
	// Embed-only updates carry no author and no content.
	if m.Author == nil || m.Author.Bot || m.Content == "" {
		return
	}
	if !s.roomTracked(m.GuildID, m.ChannelID) {
		return
	}
	ts := time.Now()
	if m.EditedTimestamp != nil {
		ts = *m.EditedTimestamp
	}
	rec := record.FromEdit(m.ID, m.Author.ID, displayName(m.Author),
		m.Content, attachmentURLs(m.Attachments), ts)
	s.store.Append(m.ChannelID, rec)
}

func (s *Service) HandleMessageDelete(m *discordgo.MessageDelete) {
	if !s.roomTracked(m.GuildID, m.ChannelID) {
		return
	}

	// Author metadata is best effort: the body is gone, only a cached
	// copy can still name the author.
	authorID := ""
	authorName := record.UnknownAuthor
	cached := m.BeforeDelete
	if cached == nil {
		if msg, ok := s.session.CachedMessage(m.ChannelID, m.ID); ok {
			cached = msg
		}
	}
	if cached != nil && cached.Author != nil {
		if cached.Author.Bot {
			return
		}
		authorID = cached.Author.ID
		authorName = displayName(cached.Author)
	} else if s.settings.Guild(m.GuildID).StrictDeletes {
		log.Printf("[capture] dropping delete of %s in %s: author unresolved and strict deletes enabled", m.ID, m.ChannelID)
		return
	}

	rec := record.FromDelete(m.ID, authorID, authorName, time.Now())
	s.store.Append(m.ChannelID, rec)
}

// roomTracked applies the room-type and category filters.
func (s *Service) roomTracked(guildID, channelID string) bool {
	if guildID == "" {
		return false
	}
	ch, err := s.session.Channel(channelID)
	if err != nil {
		log.Printf("[capture] resolve channel %s: %v", channelID, err)
		return false
	}
	if !discord.IsVoiceText(ch.Type) {
		return false
	}
	return s.settings.Guild(guildID).CategoryAllowed(ch.ParentID)
}

func displayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

func attachmentURLs(atts []*discordgo.MessageAttachment) []string {
	if len(atts) == 0 {
		return nil
	}
	urls := make([]string, 0, len(atts))
	for _, a := range atts {
		urls = append(urls, a.URL)
	}
	return urls
}
