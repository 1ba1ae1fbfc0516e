package snapshot

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/yuuyuu661/seiri/internal/config"
	"github.com/yuuyuu661/seiri/internal/discord"
)

// discordEpochMs is the Discord snowflake epoch (2015-01-01T00:00:00Z).
const discordEpochMs = 1420070400000

// Engine writes point-in-time exports of a guild's structure, roster
// and recent message history under one timestamped directory per run.
type Engine struct {
	session         discord.Session
	root            string
	historyWindow   time.Duration
	memberPageSize  int
	messagePageSize int
	now             func() time.Time
}

func NewEngine(session discord.Session, dataDir string, backup config.BackupConfig) *Engine {
	return &Engine{
		session:         session,
		root:            filepath.Join(dataDir, "snapshots"),
		historyWindow:   time.Duration(backup.HistoryDays) * 24 * time.Hour,
		memberPageSize:  config.DefaultMemberPageSize,
		messagePageSize: config.DefaultMessagePageSize,
		now:             time.Now,
	}
}

// CreateSnapshot exports one guild. The returned path (guild id plus
// timestamp) is the snapshot's identity. A tracked room that fails to
// resolve or read is logged and skipped; it never aborts the snapshot.
func (e *Engine) CreateSnapshot(guildID string, trackedRoomIDs []string) (string, error) {
	now := e.now().UTC()
	dir := filepath.Join(e.root, guildID, now.Format("20060102-150405"))
	if err := os.MkdirAll(filepath.Join(dir, "messages"), 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	guild, err := e.session.Guild(guildID)
	if err != nil {
		return "", fmt.Errorf("resolve guild %s: %w", guildID, err)
	}

	structure, err := e.buildStructure(guild)
	if err != nil {
		return "", err
	}
	if err := writeGzJSON(filepath.Join(dir, "guild.json.gz"), structure); err != nil {
		return "", err
	}

	members, err := e.collectMembers(guildID)
	if err != nil {
		return "", err
	}
	if err := writeGzJSON(filepath.Join(dir, "members.json.gz"), members); err != nil {
		return "", err
	}

	since := now.Add(-e.historyWindow)
	counts := make(map[string]int, len(trackedRoomIDs))
	for _, roomID := range trackedRoomIDs {
		n, err := e.exportHistory(dir, roomID, since)
		if err != nil {
			log.Printf("[snapshot] skipping room %s: %v", roomID, err)
			continue
		}
		counts[roomID] = n
	}

	manifest := Manifest{
		GuildID:       guildID,
		GuildName:     guild.Name,
		ExportedAt:    now,
		TrackedRooms:  trackedRoomIDs,
		MessageCounts: counts,
		MemberCount:   len(members),
	}
	if err := writeGzJSON(filepath.Join(dir, "manifest.json.gz"), manifest); err != nil {
		return "", err
	}

	log.Printf("[snapshot] exported guild %s to %s (%d members, %d tracked rooms)",
		guildID, dir, len(members), len(counts))
	return dir, nil
}

func (e *Engine) buildStructure(guild *discordgo.Guild) (*GuildStructure, error) {
	roles, err := e.session.GuildRoles(guild.ID)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	channels, err := e.session.GuildChannels(guild.ID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}

	st := &GuildStructure{GuildID: guild.ID, GuildName: guild.Name}

	// Roles by rank: higher position first.
	sorted := append([]*discordgo.Role(nil), roles...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position > sorted[j].Position })
	for _, r := range sorted {
		st.Roles = append(st.Roles, RoleInfo{
			ID:          r.ID,
			Name:        r.Name,
			Position:    r.Position,
			Color:       r.Color,
			Permissions: r.Permissions,
			Hoist:       r.Hoist,
			Mentionable: r.Mentionable,
		})
	}

	var categories []*discordgo.Channel
	byParent := make(map[string][]*discordgo.Channel)
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildCategory {
			categories = append(categories, ch)
			continue
		}
		byParent[ch.ParentID] = append(byParent[ch.ParentID], ch)
	}
	sort.SliceStable(categories, func(i, j int) bool { return categories[i].Position < categories[j].Position })

	for _, cat := range categories {
		info := CategoryInfo{
			ID:         cat.ID,
			Name:       cat.Name,
			Position:   cat.Position,
			Overwrites: overwriteInfos(cat.PermissionOverwrites),
		}
		children := byParent[cat.ID]
		sort.SliceStable(children, func(i, j int) bool { return children[i].Position < children[j].Position })
		for _, ch := range children {
			info.Channels = append(info.Channels, channelInfo(ch))
		}
		st.Categories = append(st.Categories, info)
		delete(byParent, cat.ID)
	}

	// Whatever parent ids remain (including "") are outside any
	// category we saw.
	var leftover []*discordgo.Channel
	for _, chs := range byParent {
		leftover = append(leftover, chs...)
	}
	sort.SliceStable(leftover, func(i, j int) bool { return leftover[i].Position < leftover[j].Position })
	for _, ch := range leftover {
		st.Uncategorized = append(st.Uncategorized, channelInfo(ch))
	}

	return st, nil
}

func channelInfo(ch *discordgo.Channel) ChannelInfo {
	info := ChannelInfo{
		ID:         ch.ID,
		Name:       ch.Name,
		Type:       channelTypeName(ch.Type),
		Position:   ch.Position,
		Overwrites: overwriteInfos(ch.PermissionOverwrites),
	}
	switch ch.Type {
	case discordgo.ChannelTypeGuildVoice, discordgo.ChannelTypeGuildStageVoice:
		info.Bitrate = ch.Bitrate
		info.UserLimit = ch.UserLimit
	default:
		info.Topic = ch.Topic
		info.NSFW = ch.NSFW
	}
	return info
}

func channelTypeName(t discordgo.ChannelType) string {
	switch t {
	case discordgo.ChannelTypeGuildText:
		return "text"
	case discordgo.ChannelTypeGuildVoice:
		return "voice"
	case discordgo.ChannelTypeGuildCategory:
		return "category"
	case discordgo.ChannelTypeGuildNews:
		return "news"
	case discordgo.ChannelTypeGuildStageVoice:
		return "stage"
	case discordgo.ChannelTypeGuildForum:
		return "forum"
	default:
		return strconv.Itoa(int(t))
	}
}

func overwriteInfos(ows []*discordgo.PermissionOverwrite) []OverwriteInfo {
	if len(ows) == 0 {
		return nil
	}
	out := make([]OverwriteInfo, 0, len(ows))
	for _, ow := range ows {
		typ := "member"
		if ow.Type == discordgo.PermissionOverwriteTypeRole {
			typ = "role"
		}
		out = append(out, OverwriteInfo{ID: ow.ID, Type: typ, Allow: ow.Allow, Deny: ow.Deny})
	}
	return out
}

func (e *Engine) collectMembers(guildID string) ([]MemberInfo, error) {
	var out []MemberInfo
	after := ""
	for {
		page, err := e.session.GuildMembers(guildID, after, e.memberPageSize)
		if err != nil {
			return nil, fmt.Errorf("page members after %q: %w", after, err)
		}
		if len(page) == 0 {
			break
		}
		for _, m := range page {
			if m.User == nil {
				continue
			}
			out = append(out, MemberInfo{
				ID:          m.User.ID,
				Username:    m.User.Username,
				DisplayName: memberDisplayName(m),
				RoleIDs:     m.Roles,
				JoinedAt:    m.JoinedAt,
				Bot:         m.User.Bot,
			})
		}
		// The cursor needs a user id; walk back past userless entries.
		next := ""
		for i := len(page) - 1; i >= 0; i-- {
			if page[i].User != nil {
				next = page[i].User.ID
				break
			}
		}
		if next == "" {
			break
		}
		after = next
		if len(page) < e.memberPageSize {
			break
		}
	}
	return out, nil
}

func memberDisplayName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}

// exportHistory writes one room's messages since the cutoff, oldest
// first, as a gzipped JSONL file. Returns the message count.
func (e *Engine) exportHistory(dir, roomID string, since time.Time) (int, error) {
	ch, err := e.session.Channel(roomID)
	if err != nil {
		return 0, fmt.Errorf("resolve: %w", err)
	}
	if !discord.IsTextReadable(ch.Type) {
		return 0, fmt.Errorf("channel type %s has no message history", channelTypeName(ch.Type))
	}

	path := filepath.Join(dir, "messages", "messages-"+roomID+".jsonl.gz")
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create history file: %w", err)
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	defer gz.Close()
	enc := json.NewEncoder(gz)

	count := 0
	after := snowflakeAt(since)
	for {
		page, err := e.session.ChannelMessages(roomID, e.messagePageSize, "", after, "")
		if err != nil {
			return count, fmt.Errorf("page messages after %s: %w", after, err)
		}
		if len(page) == 0 {
			break
		}
		// The API does not guarantee ascending order; snowflakes do.
		sort.SliceStable(page, func(i, j int) bool { return snowflakeLess(page[i].ID, page[j].ID) })
		for _, m := range page {
			hm := HistoryMessage{
				ID:          m.ID,
				Content:     m.Content,
				Attachments: messageAttachmentURLs(m),
				Timestamp:   m.Timestamp,
			}
			if m.Author != nil {
				hm.AuthorID = m.Author.ID
				hm.AuthorName = m.Author.Username
			}
			if err := enc.Encode(hm); err != nil {
				return count, fmt.Errorf("encode message %s: %w", m.ID, err)
			}
			count++
		}
		after = page[len(page)-1].ID
		if len(page) < e.messagePageSize {
			break
		}
	}

	if err := gz.Close(); err != nil {
		return count, fmt.Errorf("flush history file: %w", err)
	}
	return count, nil
}

func messageAttachmentURLs(m *discordgo.Message) []string {
	if len(m.Attachments) == 0 {
		return nil
	}
	urls := make([]string, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		urls = append(urls, a.URL)
	}
	return urls
}

// snowflakeAt builds a synthetic message id for the given instant, used
// as the paging cursor for "messages since".
func snowflakeAt(t time.Time) string {
	ms := t.UnixMilli() - discordEpochMs
	if ms < 0 {
		ms = 0
	}
	return strconv.FormatInt(ms<<22, 10)
}

// snowflakeLess compares two decimal snowflake ids numerically.
func snowflakeLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func writeGzJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	gz := gzip.NewWriter(f)
	enc := json.NewEncoder(gz)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		gz.Close()
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := gz.Close(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}
