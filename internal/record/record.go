package record

import (
	"time"
)

const (
	// EditPrefix marks content captured from an edit event.
	EditPrefix = "(edited) "
	// DeletedSentinel replaces content for delete events, since the
	// original body may no longer be available.
	DeletedSentinel = "[message deleted]"
	// UnknownAuthor is used when delete synthesis cannot resolve the
	// original author.
	UnknownAuthor = "unknown"
)

// Record is one normalized captured message event. A single source
// message can yield several Records (create, edit, delete), all sharing
// MessageID.
type Record struct {
	Timestamp   time.Time `json:"timestamp"`
	AuthorID    string    `json:"author_id"`
	AuthorName  string    `json:"author_name"`
	Content     string    `json:"content"`
	Attachments []string  `json:"attachments,omitempty"`
	Edited      bool      `json:"edited,omitempty"`
	Deleted     bool      `json:"deleted,omitempty"`
	MessageID   string    `json:"message_id"`
}

// Identity is the dedup key: two Records describe the same event iff
// their identities are equal. Timestamps compare by instant, not by
// wall-clock representation.
type Identity struct {
	MessageID string
	UnixNano  int64
	Content   string
	Edited    bool
	Deleted   bool
}

func (r Record) Identity() Identity {
	return Identity{
		MessageID: r.MessageID,
		UnixNano:  r.Timestamp.UnixNano(),
		Content:   r.Content,
		Edited:    r.Edited,
		Deleted:   r.Deleted,
	}
}

// FromCreate builds a Record for a newly posted message.
func FromCreate(msgID, authorID, authorName, content string, attachments []string, ts time.Time) Record {
	return Record{
		Timestamp:   ts,
		AuthorID:    authorID,
		AuthorName:  authorName,
		Content:     content,
		Attachments: attachments,
		MessageID:   msgID,
	}
}

// FromEdit builds a Record for an edited message. The edit marker is
// carried in the content so the transcript stays a flat text log.
func FromEdit(msgID, authorID, authorName, content string, attachments []string, ts time.Time) Record {
	return Record{
		Timestamp:   ts,
		AuthorID:    authorID,
		AuthorName:  authorName,
		Content:     EditPrefix + content,
		Attachments: attachments,
		Edited:      true,
		MessageID:   msgID,
	}
}

// FromDelete builds a tombstone Record. Author metadata is best effort;
// callers pass UnknownAuthor when the original message is not cached.
func FromDelete(msgID, authorID, authorName string, ts time.Time) Record {
	return Record{
		Timestamp:  ts,
		AuthorID:   authorID,
		AuthorName: authorName,
		Content:    DeletedSentinel,
		Deleted:    true,
		MessageID:  msgID,
	}
}

// Dedup removes records whose identity tuple was already seen,
// preserving first-seen order.
func Dedup(records []Record) []Record {
	seen := make(map[Identity]struct{}, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		id := r.Identity()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, r)
	}
	return out
}
