package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/yuuyuu661/seiri/internal/discord"
)

// ParseIDs extracts snowflake ids from a comma or space separated
// list, dropping non-numeric tokens and duplicates (first one wins).
func ParseIDs(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Fields(strings.ReplaceAll(s, ",", " ")) {
		if !isDigits(part) {
			continue
		}
		if _, ok := seen[part]; ok {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ReorderCategory moves the listed channels to the front or back of
// their category, keeping the relative order of everything else, and
// applies the result as one bulk position update. Returns a user-facing
// status message.
func ReorderCategory(session discord.Session, guildID, categoryID string, orderedIDs []string, placeFront bool) (string, error) {
	chans, err := session.GuildChannels(guildID)
	if err != nil {
		return "", fmt.Errorf("list channels: %w", err)
	}

	var current []*discordgo.Channel
	for _, ch := range chans {
		if ch.ParentID == categoryID && ch.Type != discordgo.ChannelTypeGuildCategory {
			current = append(current, ch)
		}
	}
	if len(current) == 0 {
		return "No channels found in that category.", nil
	}
	sort.SliceStable(current, func(i, j int) bool { return current[i].Position < current[j].Position })

	byID := make(map[string]*discordgo.Channel, len(current))
	for _, ch := range current {
		byID[ch.ID] = ch
	}

	var specified []*discordgo.Channel
	validSet := make(map[string]struct{})
	for _, id := range orderedIDs {
		if ch, ok := byID[id]; ok {
			specified = append(specified, ch)
			validSet[id] = struct{}{}
		}
	}
	if len(specified) == 0 {
		return "None of the given channel IDs are in this category.", nil
	}

	var remaining []*discordgo.Channel
	for _, ch := range current {
		if _, ok := validSet[ch.ID]; !ok {
			remaining = append(remaining, ch)
		}
	}

	final := append(append([]*discordgo.Channel(nil), specified...), remaining...)
	if !placeFront {
		final = append(append([]*discordgo.Channel(nil), remaining...), specified...)
	}

	same := true
	for i := range current {
		if current[i].ID != final[i].ID {
			same = false
			break
		}
	}
	if same {
		return "Channels are already in the requested order.", nil
	}

	// Repack positions from the category block's lowest slot.
	basePos := current[0].Position
	for _, ch := range current {
		if ch.Position < basePos {
			basePos = ch.Position
		}
	}
	payload := make([]*discordgo.Channel, 0, len(final))
	for i, ch := range final {
		payload = append(payload, &discordgo.Channel{ID: ch.ID, Position: basePos + i})
	}

	if err := session.GuildChannelsReorder(guildID, payload); err != nil {
		return "", fmt.Errorf("apply channel positions: %w", err)
	}
	return fmt.Sprintf("Reordered %d channels in the category.", len(final)), nil
}
