package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/yuuyuu661/seiri/internal/config"
	"github.com/yuuyuu661/seiri/internal/gateway"
)

var rootCmd = &cobra.Command{
	Use:   "seiri",
	Short: "seiri - voice-text archiving and backup bot for Discord",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bot (capture + archive export + weekly backups)",
	RunE:  runRun,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and data directory",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show seiri status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(runCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Discord.Token == "" {
		return fmt.Errorf("bot token not set. Run 'seiri onboard' or set DISCORD_TOKEN")
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	return runOnboardTo(os.Stdout)
}

func runOnboardTo(out io.Writer) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		data, _ := json.MarshalIndent(cfg, "", "  ")
		if err := os.WriteFile(cfgPath, data, 0644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Fprintf(out, "Created config: %s\n", cfgPath)
	} else {
		fmt.Fprintf(out, "Config already exists: %s\n", cfgPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	fmt.Fprintf(out, "Data directory ready: %s\n", cfg.Storage.DataDir)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintf(out, "  1. Edit %s to set your bot token and guild IDs\n", cfgPath)
	fmt.Fprintln(out, "  2. Or set DISCORD_TOKEN / GUILD_IDS environment variables")
	fmt.Fprintln(out, "  3. Run 'seiri run' to start the bot")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	return runStatusTo(os.Stdout)
}

func runStatusTo(out io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(out, "Config: error (%v)\n", err)
		return nil
	}

	fmt.Fprintf(out, "Config: %s\n", config.ConfigPath())
	fmt.Fprintf(out, "Data dir: %s\n", cfg.Storage.DataDir)
	fmt.Fprintf(out, "Token: %s\n", maskToken(cfg.Discord.Token))
	if len(cfg.Discord.GuildIDs) > 0 {
		fmt.Fprintf(out, "Guilds: %s\n", strings.Join(cfg.Discord.GuildIDs, ", "))
	} else {
		fmt.Fprintln(out, "Guilds: none configured (commands sync globally)")
	}
	fmt.Fprintf(out, "Weekly backup: weekday %d at %02d:00, %d day history\n",
		cfg.Backup.Weekday, cfg.Backup.Hour, cfg.Backup.HistoryDays)

	if _, err := os.Stat(cfg.Storage.DataDir); err != nil {
		fmt.Fprintln(out, "Room logs: data dir not found (run 'seiri onboard')")
	} else {
		logs := 0
		if entries, err := os.ReadDir(filepath.Join(cfg.Storage.DataDir, "logs")); err == nil {
			for _, e := range entries {
				if !e.IsDir() && filepath.Ext(e.Name()) == ".jsonl" {
					logs++
				}
			}
		}
		fmt.Fprintf(out, "Room logs: %d\n", logs)
	}

	return nil
}

func maskToken(token string) string {
	if token == "" {
		return "not set"
	}
	if len(token) <= 8 {
		return "set"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
