package testutil

import (
	"fmt"
	"sort"

	"github.com/bwmarrin/discordgo"
)

// SentMessage captures one outbound send for assertions.
type SentMessage struct {
	ChannelID string
	Data      *discordgo.MessageSend
}

// FakeSession is an in-memory stand-in for the Discord API used across
// package tests.
type FakeSession struct {
	ChannelsByID    map[string]*discordgo.Channel
	GuildsByID      map[string]*discordgo.Guild
	ChannelsByGuild map[string][]*discordgo.Channel
	RolesByGuild    map[string][]*discordgo.Role
	MembersByGuild  map[string][]*discordgo.Member
	// MessagesByChannel must be in ascending (oldest first) id order.
	MessagesByChannel map[string][]*discordgo.Message
	CachedMessages    map[string]*discordgo.Message // "channelID/messageID"

	BotID string

	Sent         []SentMessage
	SendErr      error
	ChannelErrs  map[string]error
	ReorderCalls [][]*discordgo.Channel
	ReorderErr   error

	Responses  []*discordgo.InteractionResponse
	Followups  []*discordgo.WebhookParams
	Registered map[string][]*discordgo.ApplicationCommand
}

func NewFakeSession() *FakeSession {
	return &FakeSession{
		ChannelsByID:      make(map[string]*discordgo.Channel),
		GuildsByID:        make(map[string]*discordgo.Guild),
		ChannelsByGuild:   make(map[string][]*discordgo.Channel),
		RolesByGuild:      make(map[string][]*discordgo.Role),
		MembersByGuild:    make(map[string][]*discordgo.Member),
		MessagesByChannel: make(map[string][]*discordgo.Message),
		CachedMessages:    make(map[string]*discordgo.Message),
		ChannelErrs:       make(map[string]error),
		Registered:        make(map[string][]*discordgo.ApplicationCommand),
		BotID:             "bot",
	}
}

func (f *FakeSession) AddChannel(ch *discordgo.Channel) {
	f.ChannelsByID[ch.ID] = ch
	if ch.GuildID != "" {
		f.ChannelsByGuild[ch.GuildID] = append(f.ChannelsByGuild[ch.GuildID], ch)
	}
}

func (f *FakeSession) Channel(channelID string) (*discordgo.Channel, error) {
	if err, ok := f.ChannelErrs[channelID]; ok {
		return nil, err
	}
	ch, ok := f.ChannelsByID[channelID]
	if !ok {
		return nil, fmt.Errorf("unknown channel %s", channelID)
	}
	return ch, nil
}

func (f *FakeSession) Guild(guildID string) (*discordgo.Guild, error) {
	g, ok := f.GuildsByID[guildID]
	if !ok {
		return nil, fmt.Errorf("unknown guild %s", guildID)
	}
	return g, nil
}

func (f *FakeSession) Guilds() []*discordgo.Guild {
	ids := make([]string, 0, len(f.GuildsByID))
	for id := range f.GuildsByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*discordgo.Guild, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.GuildsByID[id])
	}
	return out
}

func (f *FakeSession) GuildChannels(guildID string) ([]*discordgo.Channel, error) {
	return f.ChannelsByGuild[guildID], nil
}

func (f *FakeSession) GuildRoles(guildID string) ([]*discordgo.Role, error) {
	return f.RolesByGuild[guildID], nil
}

func (f *FakeSession) GuildMembers(guildID, after string, limit int) ([]*discordgo.Member, error) {
	members := f.MembersByGuild[guildID]
	start := 0
	if after != "" {
		for i, m := range members {
			if m.User != nil && m.User.ID == after {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(members) {
		end = len(members)
	}
	if start >= len(members) {
		return nil, nil
	}
	return members[start:end], nil
}

func (f *FakeSession) ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string) ([]*discordgo.Message, error) {
	if err, ok := f.ChannelErrs[channelID]; ok {
		return nil, err
	}
	// Messages are stored oldest first with snowflake-style decimal
	// ids; afterID selects everything strictly newer.
	msgs := f.MessagesByChannel[channelID]
	start := 0
	if afterID != "" {
		start = len(msgs)
		for i, m := range msgs {
			if snowflakeGreater(m.ID, afterID) {
				start = i
				break
			}
		}
	}
	end := start + limit
	if end > len(msgs) {
		end = len(msgs)
	}
	if start >= len(msgs) {
		return nil, nil
	}
	return msgs[start:end], nil
}

func snowflakeGreater(a, b string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a > b
}

func (f *FakeSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error) {
	if f.SendErr != nil {
		return nil, f.SendErr
	}
	f.Sent = append(f.Sent, SentMessage{ChannelID: channelID, Data: data})
	return &discordgo.Message{ID: fmt.Sprintf("sent-%d", len(f.Sent)), ChannelID: channelID}, nil
}

func (f *FakeSession) GuildChannelsReorder(guildID string, channels []*discordgo.Channel) error {
	if f.ReorderErr != nil {
		return f.ReorderErr
	}
	f.ReorderCalls = append(f.ReorderCalls, channels)
	return nil
}

func (f *FakeSession) CachedMessage(channelID, messageID string) (*discordgo.Message, bool) {
	msg, ok := f.CachedMessages[channelID+"/"+messageID]
	return msg, ok
}

func (f *FakeSession) BotUserID() string {
	return f.BotID
}

func (f *FakeSession) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	f.Responses = append(f.Responses, resp)
	return nil
}

func (f *FakeSession) FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams) (*discordgo.Message, error) {
	f.Followups = append(f.Followups, data)
	return &discordgo.Message{ID: "followup"}, nil
}

func (f *FakeSession) ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand) ([]*discordgo.ApplicationCommand, error) {
	f.Registered[guildID] = commands
	return commands, nil
}
