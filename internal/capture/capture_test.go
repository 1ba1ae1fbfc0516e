package capture

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/yuuyuu661/seiri/internal/logstore"
	"github.com/yuuyuu661/seiri/internal/record"
	"github.com/yuuyuu661/seiri/internal/settings"
	"github.com/yuuyuu661/seiri/internal/testutil"
)

func newTestService(t *testing.T) (*Service, *testutil.FakeSession, *logstore.Store, *settings.Store) {
	t.Helper()
	fake := testutil.NewFakeSession()
	store := logstore.New(t.TempDir())
	st := settings.NewStore(t.TempDir())
	return New(fake, store, st), fake, store, st
}

func voiceChannel(id, guildID, parentID string) *discordgo.Channel {
	return &discordgo.Channel{
		ID:       id,
		GuildID:  guildID,
		ParentID: parentID,
		Type:     discordgo.ChannelTypeGuildVoice,
	}
}

func createEvent(channelID, msgID, content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        msgID,
		ChannelID: channelID,
		GuildID:   "g1",
		Content:   content,
		Author:    &discordgo.User{ID: "u1", Username: "alice"},
		Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}}
}

func TestHandleMessageCreate(t *testing.T) {
	svc, fake, store, _ := newTestService(t)
	fake.AddChannel(voiceChannel("room1", "g1", "cat1"))

	svc.HandleMessageCreate(createEvent("room1", "m1", "hello"))

	got := store.LoadMerged("room1")
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Content != "hello" || got[0].AuthorName != "alice" {
		t.Errorf("record = %+v", got[0])
	}
}

func TestHandleMessageCreate_IgnoresBots(t *testing.T) {
	svc, fake, store, _ := newTestService(t)
	fake.AddChannel(voiceChannel("room1", "g1", ""))

	ev := createEvent("room1", "m1", "beep")
	ev.Author.Bot = true
	svc.HandleMessageCreate(ev)

	if got := store.LoadMerged("room1"); len(got) != 0 {
		t.Fatalf("len = %d, want 0 (bot message)", len(got))
	}
}

func TestHandleMessageCreate_IgnoresPlainTextChannels(t *testing.T) {
	svc, fake, store, _ := newTestService(t)
	fake.AddChannel(&discordgo.Channel{
		ID: "text1", GuildID: "g1", Type: discordgo.ChannelTypeGuildText,
	})

	svc.HandleMessageCreate(createEvent("text1", "m1", "hi"))

	if got := store.LoadMerged("text1"); len(got) != 0 {
		t.Fatalf("len = %d, want 0 (not a voice-text room)", len(got))
	}
}

func TestHandleMessageCreate_CategoryFilter(t *testing.T) {
	svc, fake, store, st := newTestService(t)
	fake.AddChannel(voiceChannel("roomA", "g1", "allowed-cat"))
	fake.AddChannel(voiceChannel("roomB", "g1", "other-cat"))
	if err := st.AddWhitelistCategory("g1", "allowed-cat"); err != nil {
		t.Fatalf("whitelist: %v", err)
	}

	svc.HandleMessageCreate(createEvent("roomA", "m1", "in"))
	svc.HandleMessageCreate(createEvent("roomB", "m2", "out"))

	if got := store.LoadMerged("roomA"); len(got) != 1 {
		t.Errorf("roomA len = %d, want 1", len(got))
	}
	if got := store.LoadMerged("roomB"); len(got) != 0 {
		t.Errorf("roomB len = %d, want 0 (category not whitelisted)", len(got))
	}
}

func TestHandleMessageUpdate(t *testing.T) {
	svc, fake, store, _ := newTestService(t)
	fake.AddChannel(voiceChannel("room1", "g1", ""))

	edited := time.Date(2025, 3, 1, 12, 5, 0, 0, time.UTC)
	svc.HandleMessageUpdate(&discordgo.MessageUpdate{Message: &discordgo.Message{
		ID:              "m1",
		ChannelID:       "room1",
		GuildID:         "g1",
		Content:         "fixed",
		Author:          &discordgo.User{ID: "u1", Username: "alice"},
		EditedTimestamp: &edited,
	}})

	got := store.LoadMerged("room1")
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Content != record.EditPrefix+"fixed" {
		t.Errorf("content = %q, want edit-marked", got[0].Content)
	}
	if !got[0].Edited {
		t.Error("edited flag not set")
	}
}

func TestHandleMessageDelete_CachedAuthor(t *testing.T) {
	svc, fake, store, _ := newTestService(t)
	fake.AddChannel(voiceChannel("room1", "g1", ""))
	fake.CachedMessages["room1/m1"] = &discordgo.Message{
		ID:     "m1",
		Author: &discordgo.User{ID: "u1", Username: "alice"},
	}

	svc.HandleMessageDelete(&discordgo.MessageDelete{Message: &discordgo.Message{
		ID: "m1", ChannelID: "room1", GuildID: "g1",
	}})

	got := store.LoadMerged("room1")
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Content != record.DeletedSentinel {
		t.Errorf("content = %q, want sentinel", got[0].Content)
	}
	if got[0].AuthorName != "alice" {
		t.Errorf("authorName = %q, want alice (from cache)", got[0].AuthorName)
	}
}

func TestHandleMessageDelete_UnknownAuthor(t *testing.T) {
	svc, fake, store, _ := newTestService(t)
	fake.AddChannel(voiceChannel("room1", "g1", ""))

	svc.HandleMessageDelete(&discordgo.MessageDelete{Message: &discordgo.Message{
		ID: "m1", ChannelID: "room1", GuildID: "g1",
	}})

	got := store.LoadMerged("room1")
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].AuthorName != record.UnknownAuthor {
		t.Errorf("authorName = %q, want %q", got[0].AuthorName, record.UnknownAuthor)
	}
}

func TestHandleMessageDelete_StrictRejectsUnknown(t *testing.T) {
	svc, fake, store, st := newTestService(t)
	fake.AddChannel(voiceChannel("room1", "g1", ""))
	if err := st.SetStrictDeletes("g1", true); err != nil {
		t.Fatalf("strict: %v", err)
	}

	svc.HandleMessageDelete(&discordgo.MessageDelete{Message: &discordgo.Message{
		ID: "m1", ChannelID: "room1", GuildID: "g1",
	}})

	if got := store.LoadMerged("room1"); len(got) != 0 {
		t.Fatalf("len = %d, want 0 (strict deletes)", len(got))
	}
}

func TestHandleMessageCreate_Attachments(t *testing.T) {
	svc, fake, store, _ := newTestService(t)
	fake.AddChannel(voiceChannel("room1", "g1", ""))

	ev := createEvent("room1", "m1", "look")
	ev.Attachments = []*discordgo.MessageAttachment{
		{URL: "https://cdn.example/a.png"},
		{URL: "https://cdn.example/b.png"},
	}
	svc.HandleMessageCreate(ev)

	got := store.LoadMerged("room1")
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if len(got[0].Attachments) != 2 {
		t.Errorf("attachments = %v, want 2 urls", got[0].Attachments)
	}
}
