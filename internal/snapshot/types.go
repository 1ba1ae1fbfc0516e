package snapshot

import "time"

// GuildStructure is the serialized shape of a guild: roles by rank,
// categories by position with their permission grants and child rooms,
// then rooms outside any category.
type GuildStructure struct {
	GuildID       string         `json:"guild_id"`
	GuildName     string         `json:"guild_name"`
	Roles         []RoleInfo     `json:"roles"`
	Categories    []CategoryInfo `json:"categories"`
	Uncategorized []ChannelInfo  `json:"uncategorized"`
}

type RoleInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Position    int    `json:"position"`
	Color       int    `json:"color"`
	Permissions int64  `json:"permissions"`
	Hoist       bool   `json:"hoist,omitempty"`
	Mentionable bool   `json:"mentionable,omitempty"`
}

type CategoryInfo struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Position   int             `json:"position"`
	Overwrites []OverwriteInfo `json:"overwrites,omitempty"`
	Channels   []ChannelInfo   `json:"channels"`
}

type ChannelInfo struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	Position   int             `json:"position"`
	Overwrites []OverwriteInfo `json:"overwrites,omitempty"`
	// Text-specific extras.
	Topic string `json:"topic,omitempty"`
	NSFW  bool   `json:"nsfw,omitempty"`
	// Voice-specific extras.
	Bitrate   int `json:"bitrate,omitempty"`
	UserLimit int `json:"user_limit,omitempty"`
}

type OverwriteInfo struct {
	ID    string `json:"id"`
	Type  string `json:"type"` // "role" or "member"
	Allow int64  `json:"allow"`
	Deny  int64  `json:"deny"`
}

// MemberInfo is one roster entry.
type MemberInfo struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	RoleIDs     []string  `json:"role_ids,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
	Bot         bool      `json:"bot,omitempty"`
}

// HistoryMessage is one line of a tracked room's history file.
type HistoryMessage struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"author_id"`
	AuthorName  string    `json:"author_name"`
	Content     string    `json:"content"`
	Attachments []string  `json:"attachments,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Manifest summarizes one export.
type Manifest struct {
	GuildID       string         `json:"guild_id"`
	GuildName     string         `json:"guild_name"`
	ExportedAt    time.Time      `json:"exported_at"`
	TrackedRooms  []string       `json:"tracked_rooms"`
	MessageCounts map[string]int `json:"message_counts"`
	MemberCount   int            `json:"member_count"`
}
