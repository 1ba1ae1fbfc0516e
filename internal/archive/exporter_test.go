package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/yuuyuu661/seiri/internal/logstore"
	"github.com/yuuyuu661/seiri/internal/record"
	"github.com/yuuyuu661/seiri/internal/settings"
	"github.com/yuuyuu661/seiri/internal/testutil"
)

type exporterFixture struct {
	exporter *Exporter
	fake     *testutil.FakeSession
	store    *logstore.Store
	settings *settings.Store
	logDir   string
}

func newExporterFixture(t *testing.T) *exporterFixture {
	t.Helper()
	logDir := t.TempDir()
	fake := testutil.NewFakeSession()
	store := logstore.New(logDir)
	st := settings.NewStore(t.TempDir())
	e := New(fake, store, st)
	e.now = func() time.Time { return time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC) }
	return &exporterFixture{exporter: e, fake: fake, store: store, settings: st, logDir: logDir}
}

func deletedVoiceChannel(id string) *discordgo.ChannelDelete {
	return &discordgo.ChannelDelete{Channel: &discordgo.Channel{
		ID:      id,
		GuildID: "g1",
		Name:    "war-room",
		Type:    discordgo.ChannelTypeGuildVoice,
	}}
}

func chunkText(t *testing.T, sent testutil.SentMessage) string {
	t.Helper()
	if len(sent.Data.Files) != 1 {
		t.Fatalf("sent %d files, want 1", len(sent.Data.Files))
	}
	data, err := io.ReadAll(sent.Data.Files[0].Reader)
	if err != nil {
		t.Fatalf("read chunk: %v", err)
	}
	return string(data)
}

func TestExport_SingleMessageSingleChunk(t *testing.T) {
	fx := newExporterFixture(t)
	if err := fx.settings.SetArchiveChannel("g1", "dest"); err != nil {
		t.Fatalf("set channel: %v", err)
	}
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fx.store.Append("room1", record.FromCreate("m1", "u1", "alice", "only message", nil, ts))

	fx.exporter.HandleChannelDelete(deletedVoiceChannel("room1"))

	if len(fx.fake.Sent) != 2 {
		t.Fatalf("sent %d messages, want header + 1 chunk", len(fx.fake.Sent))
	}
	header := fx.fake.Sent[0].Data.Content
	if !strings.Contains(header, "war-room") || !strings.Contains(header, "1 records") {
		t.Errorf("header = %q", header)
	}
	text := chunkText(t, fx.fake.Sent[1])
	if text != "[2025-03-01 12:00:00] alice(u1): only message\n" {
		t.Errorf("chunk = %q", text)
	}

	// Log store for the room is gone afterward.
	if got := fx.store.LoadMerged("room1"); len(got) != 0 {
		t.Errorf("buffer len = %d after export, want 0", len(got))
	}
	if _, err := os.Stat(filepath.Join(fx.logDir, "logs", "room1.jsonl")); !os.IsNotExist(err) {
		t.Error("log file should be deleted after export")
	}
}

func TestExport_RetentionCapKeepsTrailing(t *testing.T) {
	fx := newExporterFixture(t)
	if err := fx.settings.SetArchiveChannel("g1", "dest"); err != nil {
		t.Fatalf("set channel: %v", err)
	}
	if err := fx.settings.SetRetentionCap("g1", 100); err != nil {
		t.Fatalf("set cap: %v", err)
	}
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 105; i++ {
		fx.store.Append("room1", record.FromCreate(
			fmt.Sprintf("m%03d", i), "u1", "alice", fmt.Sprintf("msg-%03d", i), nil,
			ts.Add(time.Duration(i)*time.Second)))
	}

	fx.exporter.HandleChannelDelete(deletedVoiceChannel("room1"))

	if len(fx.fake.Sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(fx.fake.Sent))
	}
	text := chunkText(t, fx.fake.Sent[1])
	if strings.Contains(text, "msg-004") {
		t.Error("records before the cap window should be dropped")
	}
	if !strings.Contains(text, "msg-005") || !strings.Contains(text, "msg-104") {
		t.Error("trailing cap window should be kept in order")
	}
	if lines := strings.Count(text, "\n"); lines != 100 {
		t.Errorf("chunk has %d lines, want 100", lines)
	}
}

func TestExport_DestinationUnsetStillPurges(t *testing.T) {
	fx := newExporterFixture(t)
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fx.store.Append("room1", record.FromCreate("m1", "u1", "alice", "hi", nil, ts))

	fx.exporter.HandleChannelDelete(deletedVoiceChannel("room1"))

	if len(fx.fake.Sent) != 0 {
		t.Errorf("sent %d messages, want 0 (no destination)", len(fx.fake.Sent))
	}
	if got := fx.store.LoadMerged("room1"); len(got) != 0 {
		t.Errorf("buffer len = %d, want 0 (purge still happens)", len(got))
	}
	if _, err := os.Stat(filepath.Join(fx.logDir, "logs", "room1.jsonl")); !os.IsNotExist(err) {
		t.Error("log file should be deleted even without a destination")
	}
}

func TestExport_SendFailureStillPurges(t *testing.T) {
	fx := newExporterFixture(t)
	if err := fx.settings.SetArchiveChannel("g1", "dest"); err != nil {
		t.Fatalf("set channel: %v", err)
	}
	fx.fake.SendErr = fmt.Errorf("missing permissions")
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fx.store.Append("room1", record.FromCreate("m1", "u1", "alice", "hi", nil, ts))

	fx.exporter.HandleChannelDelete(deletedVoiceChannel("room1"))

	if got := fx.store.LoadMerged("room1"); len(got) != 0 {
		t.Errorf("buffer len = %d, want 0 (purge despite send failure)", len(got))
	}
}

func TestExport_LateAppendDoesNotResurrectLog(t *testing.T) {
	// A capture handler dispatched just before the room's destruction
	// can run after the export. Its append must neither re-create the
	// room's file nor leave a buffered orphan.
	fx := newExporterFixture(t)
	if err := fx.settings.SetArchiveChannel("g1", "dest"); err != nil {
		t.Fatalf("set channel: %v", err)
	}
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fx.store.Append("room1", record.FromCreate("m1", "u1", "alice", "before", nil, ts))

	fx.exporter.HandleChannelDelete(deletedVoiceChannel("room1"))
	fx.store.Append("room1", record.FromCreate("m2", "u1", "alice", "late", nil, ts.Add(time.Second)))

	if _, err := os.Stat(filepath.Join(fx.logDir, "logs", "room1.jsonl")); !os.IsNotExist(err) {
		t.Error("late append re-created the destroyed room's log file")
	}
	if got := fx.store.LoadMerged("room1"); len(got) != 0 {
		t.Errorf("len = %d, want 0 (late append dropped)", len(got))
	}
	if n := fx.store.FlushBuffers(); n != 0 {
		t.Errorf("flushed %d, want 0", n)
	}
}

func TestExport_DefensiveDedup(t *testing.T) {
	fx := newExporterFixture(t)
	if err := fx.settings.SetArchiveChannel("g1", "dest"); err != nil {
		t.Fatalf("set channel: %v", err)
	}
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := record.FromCreate("m1", "u1", "alice", "dup", nil, ts)
	fx.store.Append("room1", rec)
	fx.store.Append("room1", rec)

	fx.exporter.HandleChannelDelete(deletedVoiceChannel("room1"))

	text := chunkText(t, fx.fake.Sent[1])
	if n := strings.Count(text, "dup"); n != 1 {
		t.Errorf("record rendered %d times, want 1", n)
	}
}

func TestExport_MultipleChunksInOrder(t *testing.T) {
	fx := newExporterFixture(t)
	fx.exporter.maxChunk = 200
	if err := fx.settings.SetArchiveChannel("g1", "dest"); err != nil {
		t.Fatalf("set channel: %v", err)
	}
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		fx.store.Append("room1", record.FromCreate(
			fmt.Sprintf("m%02d", i), "u1", "alice", fmt.Sprintf("numbered message %02d", i), nil,
			ts.Add(time.Duration(i)*time.Second)))
	}

	fx.exporter.HandleChannelDelete(deletedVoiceChannel("room1"))

	if len(fx.fake.Sent) < 3 {
		t.Fatalf("sent %d messages, want header + several chunks", len(fx.fake.Sent))
	}
	var rebuilt strings.Builder
	for _, sent := range fx.fake.Sent[1:] {
		rebuilt.WriteString(chunkText(t, sent))
	}
	full := rebuilt.String()
	for i := 0; i < 10; i++ {
		if !strings.Contains(full, fmt.Sprintf("numbered message %02d", i)) {
			t.Errorf("reassembled transcript missing message %02d", i)
		}
	}
}

func TestHandleChannelDelete_IgnoresTextChannels(t *testing.T) {
	fx := newExporterFixture(t)
	if err := fx.settings.SetArchiveChannel("g1", "dest"); err != nil {
		t.Fatalf("set channel: %v", err)
	}
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fx.store.Append("room1", record.FromCreate("m1", "u1", "alice", "hi", nil, ts))

	fx.exporter.HandleChannelDelete(&discordgo.ChannelDelete{Channel: &discordgo.Channel{
		ID: "room1", GuildID: "g1", Type: discordgo.ChannelTypeGuildText,
	}})

	if len(fx.fake.Sent) != 0 {
		t.Error("text channel deletion should not trigger an export")
	}
	if got := fx.store.LoadMerged("room1"); len(got) != 1 {
		t.Error("untracked deletion should not purge the log")
	}
}

func TestHandleChannelDelete_CategoryFiltered(t *testing.T) {
	fx := newExporterFixture(t)
	if err := fx.settings.SetArchiveChannel("g1", "dest"); err != nil {
		t.Fatalf("set channel: %v", err)
	}
	if err := fx.settings.AddWhitelistCategory("g1", "allowed"); err != nil {
		t.Fatalf("whitelist: %v", err)
	}

	ev := deletedVoiceChannel("room1")
	ev.Channel.ParentID = "other"
	fx.exporter.HandleChannelDelete(ev)

	if len(fx.fake.Sent) != 0 {
		t.Error("filtered category should not trigger an export")
	}
}
