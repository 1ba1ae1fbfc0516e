package discord

import (
	"github.com/bwmarrin/discordgo"
)

// Session is the slice of the Discord API this service uses. Components
// take this interface so tests can swap in fakes.
type Session interface {
	Channel(channelID string) (*discordgo.Channel, error)
	Guild(guildID string) (*discordgo.Guild, error)
	Guilds() []*discordgo.Guild
	GuildChannels(guildID string) ([]*discordgo.Channel, error)
	GuildRoles(guildID string) ([]*discordgo.Role, error)
	GuildMembers(guildID, after string, limit int) ([]*discordgo.Member, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string) ([]*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error)
	GuildChannelsReorder(guildID string, channels []*discordgo.Channel) error
	CachedMessage(channelID, messageID string) (*discordgo.Message, bool)
	BotUserID() string
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams) (*discordgo.Message, error)
	ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand) ([]*discordgo.ApplicationCommand, error)
}

// Wrap adapts a live discordgo session to the Session interface.
func Wrap(s *discordgo.Session) Session {
	return &sessionWrapper{s: s}
}

type sessionWrapper struct {
	s *discordgo.Session
}

func (w *sessionWrapper) Channel(channelID string) (*discordgo.Channel, error) {
	if ch, err := w.s.State.Channel(channelID); err == nil {
		return ch, nil
	}
	return w.s.Channel(channelID)
}

func (w *sessionWrapper) Guild(guildID string) (*discordgo.Guild, error) {
	if g, err := w.s.State.Guild(guildID); err == nil {
		return g, nil
	}
	return w.s.Guild(guildID)
}

func (w *sessionWrapper) Guilds() []*discordgo.Guild {
	return w.s.State.Guilds
}

func (w *sessionWrapper) GuildChannels(guildID string) ([]*discordgo.Channel, error) {
	return w.s.GuildChannels(guildID)
}

func (w *sessionWrapper) GuildRoles(guildID string) ([]*discordgo.Role, error) {
	return w.s.GuildRoles(guildID)
}

func (w *sessionWrapper) GuildMembers(guildID, after string, limit int) ([]*discordgo.Member, error) {
	return w.s.GuildMembers(guildID, after, limit)
}

func (w *sessionWrapper) ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string) ([]*discordgo.Message, error) {
	return w.s.ChannelMessages(channelID, limit, beforeID, afterID, aroundID)
}

func (w *sessionWrapper) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error) {
	return w.s.ChannelMessageSendComplex(channelID, data)
}

func (w *sessionWrapper) GuildChannelsReorder(guildID string, channels []*discordgo.Channel) error {
	return w.s.GuildChannelsReorder(guildID, channels)
}

func (w *sessionWrapper) CachedMessage(channelID, messageID string) (*discordgo.Message, bool) {
	msg, err := w.s.State.Message(channelID, messageID)
	if err != nil || msg == nil {
		return nil, false
	}
	return msg, true
}

func (w *sessionWrapper) BotUserID() string {
	if w.s.State.User == nil {
		return ""
	}
	return w.s.State.User.ID
}

func (w *sessionWrapper) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse) error {
	return w.s.InteractionRespond(interaction, resp)
}

func (w *sessionWrapper) FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams) (*discordgo.Message, error) {
	return w.s.FollowupMessageCreate(interaction, wait, data)
}

func (w *sessionWrapper) ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand) ([]*discordgo.ApplicationCommand, error) {
	return w.s.ApplicationCommandBulkOverwrite(appID, guildID, commands)
}
