package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/yuuyuu661/seiri/internal/archive"
	"github.com/yuuyuu661/seiri/internal/capture"
	"github.com/yuuyuu661/seiri/internal/commands"
	"github.com/yuuyuu661/seiri/internal/config"
	"github.com/yuuyuu661/seiri/internal/discord"
	"github.com/yuuyuu661/seiri/internal/logstore"
	"github.com/yuuyuu661/seiri/internal/schedule"
	"github.com/yuuyuu661/seiri/internal/settings"
	"github.com/yuuyuu661/seiri/internal/snapshot"
)

// Options for creating a Gateway
type Options struct {
	Session    discord.Session // injected for tests; nil dials Discord
	SignalChan chan os.Signal  // for testing signal handling
}

// Gateway wires the capture pipeline, the deletion exporter, the
// snapshot scheduler and the admin commands onto one Discord session.
type Gateway struct {
	cfg       *config.Config
	ds        *discordgo.Session // nil when a session was injected
	session   discord.Session
	store     *logstore.Store
	settings  *settings.Store
	capture   *capture.Service
	exporter  *archive.Exporter
	engine    *snapshot.Engine
	sender    *snapshot.Sender
	commands  *commands.Handler
	scheduler *schedule.Service

	signalChan chan os.Signal // for testing
}

// New creates a Gateway with default options
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{cfg: cfg, signalChan: opts.SignalChan}

	dataDir := cfg.Storage.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	g.store = logstore.New(dataDir)
	g.settings = settings.NewStore(dataDir)
	if err := g.settings.Load(); err != nil {
		return nil, fmt.Errorf("load guild settings: %w", err)
	}

	g.session = opts.Session
	if g.session == nil {
		if cfg.Discord.Token == "" {
			return nil, fmt.Errorf("discord token is not configured (run `seiri onboard` or set DISCORD_TOKEN)")
		}
		ds, err := discordgo.New("Bot " + cfg.Discord.Token)
		if err != nil {
			return nil, fmt.Errorf("create discord session: %w", err)
		}
		ds.Identify.Intents = discordgo.IntentsGuilds |
			discordgo.IntentsGuildMessages |
			discordgo.IntentsGuildMembers |
			discordgo.IntentMessageContent
		// Keep a deep message cache so deletions can be resolved.
		ds.State.MaxMessageCount = 2000
		g.ds = ds
		g.session = discord.Wrap(ds)
	}

	g.capture = capture.New(g.session, g.store, g.settings)
	g.exporter = archive.New(g.session, g.store, g.settings)
	g.engine = snapshot.NewEngine(g.session, dataDir, cfg.Backup)

	pause, err := time.ParseDuration(cfg.Backup.SendBatchPause)
	if err != nil {
		log.Printf("[gateway] bad sendBatchPause %q, using default: %v", cfg.Backup.SendBatchPause, err)
		pause, _ = time.ParseDuration(config.DefaultSendBatchPause)
	}
	g.sender = snapshot.NewSender(g.session, cfg.Backup.SendBatchSize, pause)

	g.commands = commands.New(g.session, g.store, g.settings, g.engine, g.sender, cfg)

	g.scheduler = schedule.NewService(dataDir, cfg.Backup.Weekday, cfg.Backup.Hour)
	g.scheduler.Guilds = g.backupGuilds
	g.scheduler.OnBackup = g.runBackup

	return g, nil
}

// backupGuilds lists every guild the scheduler should snapshot:
// configured ids first, then any guild with saved settings.
func (g *Gateway) backupGuilds() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, id := range g.cfg.Discord.GuildIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range g.settings.GuildIDs() {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (g *Gateway) runBackup(guildID string) error {
	gs := g.settings.Guild(guildID)
	dir, err := g.engine.CreateSnapshot(guildID, gs.TrackedChannels)
	if err != nil {
		return err
	}
	if gs.ArchiveChannelID == "" {
		log.Printf("[gateway] snapshot for guild %s kept on disk only (no archive channel): %s", guildID, dir)
		return nil
	}
	return g.sender.SendSummary(gs.ArchiveChannelID, dir)
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if g.ds != nil {
		g.capture.Register(g.ds)
		g.exporter.Register(g.ds)
		g.commands.Register(g.ds)

		if err := g.ds.Open(); err != nil {
			return fmt.Errorf("open discord gateway: %w", err)
		}
		defer func() {
			if err := g.ds.Close(); err != nil {
				log.Printf("[gateway] close session warning: %v", err)
			}
		}()

		appID := g.session.BotUserID()
		if err := g.commands.RegisterCommands(appID, g.cfg.Discord.GuildIDs); err != nil {
			log.Printf("[gateway] command sync warning: %v", err)
		}
	}

	if err := g.scheduler.Start(); err != nil {
		log.Printf("[gateway] scheduler start warning: %v", err)
	}

	log.Printf("[gateway] running: backups on weekday %d at %02d:00, data in %s",
		g.cfg.Backup.Weekday, g.cfg.Backup.Hour, g.cfg.Storage.DataDir)

	// Use injected signal channel for testing, or create default
	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

func (g *Gateway) Shutdown() error {
	g.scheduler.Stop()
	log.Printf("[gateway] shutdown complete")
	return nil
}
