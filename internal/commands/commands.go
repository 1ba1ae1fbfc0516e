package commands

import (
	"fmt"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/yuuyuu661/seiri/internal/config"
	"github.com/yuuyuu661/seiri/internal/discord"
	"github.com/yuuyuu661/seiri/internal/logstore"
	"github.com/yuuyuu661/seiri/internal/settings"
	"github.com/yuuyuu661/seiri/internal/snapshot"
)

// Handler owns the slash-command admin surface: archive settings,
// on-demand backups and the channel reorder utility. Every command is
// gated by a guild permission or the configured allowed role.
type Handler struct {
	session       discord.Session
	store         *logstore.Store
	settings      *settings.Store
	engine        *snapshot.Engine
	sender        *snapshot.Sender
	backupCfg     config.BackupConfig
	allowedRoleID string
}

func New(session discord.Session, store *logstore.Store, st *settings.Store,
	engine *snapshot.Engine, sender *snapshot.Sender, cfg *config.Config) *Handler {
	return &Handler{
		session:       session,
		store:         store,
		settings:      st,
		engine:        engine,
		sender:        sender,
		backupCfg:     cfg.Backup,
		allowedRoleID: cfg.Discord.AllowedRoleID,
	}
}

// Register attaches the interaction handler to a live session.
func (h *Handler) Register(ds *discordgo.Session) {
	ds.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) { h.HandleInteraction(i) })
}

// RegisterCommands syncs command definitions: per guild for instant
// availability when guild ids are configured, globally otherwise.
func (h *Handler) RegisterCommands(appID string, guildIDs []string) error {
	defs := h.Definitions()
	if len(guildIDs) == 0 {
		if _, err := h.session.ApplicationCommandBulkOverwrite(appID, "", defs); err != nil {
			return fmt.Errorf("sync global commands: %w", err)
		}
		log.Printf("[commands] synced %d commands globally", len(defs))
		return nil
	}
	for _, guildID := range guildIDs {
		if _, err := h.session.ApplicationCommandBulkOverwrite(appID, guildID, defs); err != nil {
			return fmt.Errorf("sync commands to guild %s: %w", guildID, err)
		}
		log.Printf("[commands] synced %d commands to guild %s", len(defs), guildID)
	}
	return nil
}

func (h *Handler) Definitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "archive",
			Description: "Configure voice-text archiving for this server",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "channel",
					Description: "Set the channel transcripts are posted to",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionChannel,
							Name:        "destination",
							Description: "Destination channel",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "retention",
					Description: "Set the per-room record cap applied at export",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "cap",
							Description: fmt.Sprintf("Records to keep (%d-%d)", config.MinRetentionCap, config.MaxRetentionCap),
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "whitelist-add",
					Description: "Capture only rooms under whitelisted categories",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionChannel,
							Name:        "category",
							Description: "Category to whitelist",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "whitelist-remove",
					Description: "Remove a category from the whitelist",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionChannel,
							Name:        "category",
							Description: "Category to remove",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "whitelist-list",
					Description: "Show the category whitelist",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "whitelist-clear",
					Description: "Clear the category whitelist (capture everywhere)",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "strict-deletes",
					Description: "Reject delete records whose author cannot be resolved",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionBoolean,
							Name:        "enabled",
							Description: "Enable strict delete handling",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "status",
					Description: "Show the current archive settings",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "purge-cache",
					Description: "Drop all in-memory capture buffers",
				},
			},
		},
		{
			Name:        "backup",
			Description: "Guild snapshot backups",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "now",
					Description: "Take a snapshot immediately",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "rooms",
							Description: "Room IDs for message history (comma/space separated, default: tracked list)",
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "track",
					Description: "Set the rooms included in snapshot message history",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "rooms",
							Description: "Room IDs (comma/space separated, empty to clear)",
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "status",
					Description: "Show the backup configuration",
				},
			},
		},
		{
			Name:        "reorder_channels",
			Description: "Reorder channels inside a category by ID list",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "ids",
					Description: "Channel IDs, comma or space separated (e.g. 111,222,333)",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "place",
					Description: "Move the listed channels to the front or the back",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "front", Value: "front"},
						{Name: "back", Value: "back"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "category_id",
					Description: "Target category ID (default: inferred from the first channel)",
				},
			},
		},
	}
}

func (h *Handler) HandleInteraction(i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if i.GuildID == "" || i.Member == nil {
		h.respond(i, "This command only works inside a server.")
		return
	}

	data := i.ApplicationCommandData()
	switch data.Name {
	case "archive":
		h.handleArchive(i, data)
	case "backup":
		h.handleBackup(i, data)
	case "reorder_channels":
		h.handleReorder(i, data)
	}
}

// authorized checks the member's guild permission or the allowed role.
func (h *Handler) authorized(i *discordgo.InteractionCreate, perm int64) bool {
	if i.Member.Permissions&perm != 0 {
		return true
	}
	if h.allowedRoleID == "" {
		return false
	}
	for _, roleID := range i.Member.Roles {
		if roleID == h.allowedRoleID {
			return true
		}
	}
	return false
}

func (h *Handler) handleArchive(i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if !h.authorized(i, discordgo.PermissionManageServer) {
		h.respond(i, "You need the Manage Server permission or the allowed role.")
		return
	}
	if len(data.Options) == 0 {
		return
	}
	sub := data.Options[0]
	guildID := i.GuildID

	switch sub.Name {
	case "channel":
		ch := optChannelID(sub.Options, "destination")
		if err := h.settings.SetArchiveChannel(guildID, ch); err != nil {
			h.respond(i, "Failed to save settings: "+err.Error())
			return
		}
		h.respond(i, fmt.Sprintf("Archive channel set to <#%s>.", ch))

	case "retention":
		n := int(optInt(sub.Options, "cap"))
		if err := h.settings.SetRetentionCap(guildID, n); err != nil {
			h.respond(i, err.Error())
			return
		}
		h.respond(i, fmt.Sprintf("Retention cap set to %d records.", n))

	case "whitelist-add":
		cat := optChannelID(sub.Options, "category")
		if err := h.settings.AddWhitelistCategory(guildID, cat); err != nil {
			h.respond(i, "Failed to save settings: "+err.Error())
			return
		}
		h.respond(i, fmt.Sprintf("Added <#%s> to the category whitelist.", cat))

	case "whitelist-remove":
		cat := optChannelID(sub.Options, "category")
		if err := h.settings.RemoveWhitelistCategory(guildID, cat); err != nil {
			h.respond(i, "Failed to save settings: "+err.Error())
			return
		}
		h.respond(i, fmt.Sprintf("Removed <#%s> from the category whitelist.", cat))

	case "whitelist-list":
		g := h.settings.Guild(guildID)
		if len(g.CategoryWhitelist) == 0 {
			h.respond(i, "Whitelist is empty: all categories are captured.")
			return
		}
		mentions := make([]string, 0, len(g.CategoryWhitelist))
		for _, id := range g.CategoryWhitelist {
			mentions = append(mentions, "<#"+id+">")
		}
		h.respond(i, "Whitelisted categories: "+strings.Join(mentions, ", "))

	case "whitelist-clear":
		if err := h.settings.ClearWhitelist(guildID); err != nil {
			h.respond(i, "Failed to save settings: "+err.Error())
			return
		}
		h.respond(i, "Category whitelist cleared.")

	case "strict-deletes":
		enabled := optBool(sub.Options, "enabled")
		if err := h.settings.SetStrictDeletes(guildID, enabled); err != nil {
			h.respond(i, "Failed to save settings: "+err.Error())
			return
		}
		if enabled {
			h.respond(i, "Strict deletes enabled: tombstones without a resolved author are dropped.")
		} else {
			h.respond(i, "Strict deletes disabled: unresolved deletions are captured as unknown.")
		}

	case "status":
		h.respond(i, h.statusText(guildID))

	case "purge-cache":
		n := h.store.FlushBuffers()
		h.respond(i, fmt.Sprintf("Dropped %d buffered records.", n))
	}
}

func (h *Handler) statusText(guildID string) string {
	g := h.settings.Guild(guildID)
	var b strings.Builder
	if g.ArchiveChannelID != "" {
		fmt.Fprintf(&b, "Archive channel: <#%s>\n", g.ArchiveChannelID)
	} else {
		b.WriteString("Archive channel: not set (transcripts are discarded)\n")
	}
	fmt.Fprintf(&b, "Retention cap: %d records\n", g.RetentionCap)
	fmt.Fprintf(&b, "Category whitelist: %d entries\n", len(g.CategoryWhitelist))
	fmt.Fprintf(&b, "Strict deletes: %t\n", g.StrictDeletes)
	fmt.Fprintf(&b, "Rooms with live capture buffers: %d", len(h.store.TrackedRooms()))
	return b.String()
}

func (h *Handler) handleBackup(i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if !h.authorized(i, discordgo.PermissionManageServer) {
		h.respond(i, "You need the Manage Server permission or the allowed role.")
		return
	}
	if len(data.Options) == 0 {
		return
	}
	sub := data.Options[0]
	guildID := i.GuildID

	switch sub.Name {
	case "now":
		rooms := ParseIDs(optString(sub.Options, "rooms"))
		if len(rooms) == 0 {
			rooms = h.settings.Guild(guildID).TrackedChannels
		}
		h.deferEphemeral(i)

		dir, err := h.engine.CreateSnapshot(guildID, rooms)
		if err != nil {
			h.followup(i, "Snapshot failed: "+err.Error())
			return
		}
		msg := fmt.Sprintf("Snapshot written to %s (%d tracked rooms).", dir, len(rooms))
		if dest := h.settings.Guild(guildID).ArchiveChannelID; dest != "" {
			if err := h.sender.SendSummary(dest, dir); err != nil {
				log.Printf("[commands] snapshot summary to %s failed: %v", dest, err)
				msg += " Sending the files failed: " + err.Error()
			} else {
				msg += fmt.Sprintf(" Files posted to <#%s>.", dest)
			}
		}
		h.followup(i, msg)

	case "track":
		rooms := ParseIDs(optString(sub.Options, "rooms"))
		if err := h.settings.SetTrackedChannels(guildID, rooms); err != nil {
			h.respond(i, "Failed to save settings: "+err.Error())
			return
		}
		h.respond(i, fmt.Sprintf("Tracking %d rooms for snapshot history.", len(rooms)))

	case "status":
		g := h.settings.Guild(guildID)
		h.respond(i, fmt.Sprintf(
			"Weekly backup: %s at %02d:00\nTracked rooms: %d\nHistory window: %d days",
			weekdayName(h.backupCfg.Weekday), h.backupCfg.Hour,
			len(g.TrackedChannels), h.backupCfg.HistoryDays))
	}
}

func (h *Handler) handleReorder(i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if !h.authorized(i, discordgo.PermissionManageChannels) {
		h.respond(i, "You need the Manage Channels permission or the allowed role.")
		return
	}

	ids := ParseIDs(optString(data.Options, "ids"))
	if len(ids) == 0 {
		h.respond(i, "Please provide valid channel IDs.")
		return
	}
	placeFront := optString(data.Options, "place") != "back"

	categoryID := optString(data.Options, "category_id")
	if categoryID == "" {
		first, err := h.session.Channel(ids[0])
		if err != nil || first.ParentID == "" {
			h.respond(i, "When category_id is omitted, the first channel ID must belong to a category.")
			return
		}
		categoryID = first.ParentID
	} else {
		cat, err := h.session.Channel(categoryID)
		if err != nil || cat.Type != discordgo.ChannelTypeGuildCategory {
			h.respond(i, "Please provide a valid category ID.")
			return
		}
	}

	// Drop ids outside the target category, but tell the caller.
	var good, bad []string
	for _, id := range ids {
		ch, err := h.session.Channel(id)
		if err != nil || ch.ParentID != categoryID {
			bad = append(bad, id)
			continue
		}
		good = append(good, id)
	}
	note := ""
	if len(bad) > 0 {
		note = "\nIgnored IDs outside the category: " + strings.Join(bad, ", ")
	}

	h.deferEphemeral(i)
	msg, err := ReorderCategory(h.session, i.GuildID, categoryID, good, placeFront)
	if err != nil {
		log.Printf("[commands] reorder in guild %s failed: %v", i.GuildID, err)
		msg = "Reorder failed: " + err.Error()
	}
	h.followup(i, msg+note)
}

func (h *Handler) respond(i *discordgo.InteractionCreate, content string) {
	err := h.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Printf("[commands] respond failed: %v", err)
	}
}

func (h *Handler) deferEphemeral(i *discordgo.InteractionCreate) {
	err := h.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		log.Printf("[commands] defer failed: %v", err)
	}
}

func (h *Handler) followup(i *discordgo.InteractionCreate, content string) {
	_, err := h.session.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		log.Printf("[commands] followup failed: %v", err)
	}
}

func optString(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, o := range opts {
		if o.Name == name {
			return o.StringValue()
		}
	}
	return ""
}

func optInt(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) int64 {
	for _, o := range opts {
		if o.Name == name {
			return o.IntValue()
		}
	}
	return 0
}

func optBool(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) bool {
	for _, o := range opts {
		if o.Name == name {
			return o.BoolValue()
		}
	}
	return false
}

func optChannelID(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, o := range opts {
		if o.Name == name {
			if ch := o.ChannelValue(nil); ch != nil {
				return ch.ID
			}
		}
	}
	return ""
}

func weekdayName(d int) string {
	names := []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
	if d < 0 || d >= len(names) {
		return "Sunday"
	}
	return names[d]
}
