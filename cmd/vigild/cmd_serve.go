package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/vigild/internal/commands"
	ctxengine "github.com/user/vigild/internal/context"
	"github.com/user/vigild/internal/gateway"
	"github.com/user/vigild/internal/ledger"
	"github.com/user/vigild/internal/runtime"
	"github.com/user/vigild/internal/scheduler"
	"github.com/user/vigild/internal/state"
	"github.com/user/vigild/internal/telegram"
	"github.com/user/vigild/internal/types"
	"github.com/user/vigild/pkg/engine"
	"github.com/user/vigild/pkg/engine/anthropic"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("silent", false, "suppress startup/shutdown notices in chat")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the vigild daemon",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)
	silent, _ := cmd.Flags().GetBool("silent")

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token not configured (TELEGRAM_BOT_TOKEN)")
	}
	if cfg.Engine.APIKey == "" {
		return fmt.Errorf("engine api key not configured (ANTHROPIC_API_KEY)")
	}

	// Stores
	registry := state.NewRegistry(cfg.DataDir)
	arena := state.NewArena(cfg.DataDir, state.SettingsDefaults{
		ModelID:            cfg.Defaults.Model,
		HeartbeatInterval:  time.Duration(cfg.Defaults.HeartbeatInterval),
		MaxContextMessages: cfg.Defaults.MaxContextMessages,
	})
	usage := ledger.New(filepath.Join(cfg.DataDir, "usage.jsonl"))

	// Decision engine
	provider := anthropic.New(&engine.Config{
		BaseURL:   cfg.Engine.BaseURL,
		APIKey:    cfg.Engine.APIKey,
		MaxTokens: cfg.Engine.MaxTokens,
	})

	// Context builder
	builder, err := ctxengine.New(100_000, filepath.Join(cfg.DataDir, "prompts", "system.md"))
	if err != nil {
		return fmt.Errorf("create context builder: %w", err)
	}

	// Gateway: per-user lanes for inbound messages
	gw := gateway.New(int64(cfg.MaxConcurrent))

	// Transport
	adapter, err := telegram.New(cfg.Telegram.Token, registry, gw)
	if err != nil {
		return fmt.Errorf("create telegram adapter: %w", err)
	}

	// Scheduler; the handler is bound below once the runtime exists.
	var rt *runtime.Runtime
	sched := scheduler.New(func(userID types.UserID, reason string) {
		if _, err := rt.RunHeartbeat(context.Background(), userID, reason, false); err != nil {
			slog.Error("heartbeat tick failed", "user_id", string(userID), "error", err)
		}
	}, cfg.InActiveWindow, filepath.Join(cfg.DataDir, "scheduler.json"))

	rt = runtime.New(arena, usage, provider, adapter, builder,
		sched.Requests(), int64(cfg.MaxConcurrent), time.Duration(cfg.TickTimeout))

	// Command router
	router := commands.New(arena, usage, sched, rt)

	// Inbound processing: commands first, then the direct-response path.
	gw.SetProcessor(func(in *gateway.Inbound) error {
		if reply, handled := router.Route(in.Ctx, in.UserID, in.Text); handled {
			if reply != "" && in.OnComplete != nil {
				in.OnComplete(reply)
			}
			return nil
		}
		reply, err := rt.RunDirect(in.Ctx, in.UserID, in.Text)
		if err != nil {
			return err
		}
		if reply != "" && in.OnComplete != nil {
			in.OnComplete(reply)
		}
		return nil
	})

	// A newly registered user gets a recurring job immediately.
	registry.OnRegister(func(u *types.User) {
		settings, err := arena.Open(u.UserID).Settings()
		if err != nil {
			slog.Error("settings for new user", "user_id", string(u.UserID), "error", err)
			return
		}
		sched.AddUser(u.UserID, settings.HeartbeatInterval, settings.HeartbeatEnabled, time.Time{})
	})

	if err := sched.Restore(registry, arena); err != nil {
		return fmt.Errorf("restore scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw.Start(ctx)
	sched.Start()
	go adapter.Start(ctx)

	slog.Info("vigild started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"default_model", cfg.Defaults.Model,
		"default_interval", time.Duration(cfg.Defaults.HeartbeatInterval).String(),
	)

	if !silent {
		adapter.Broadcast("vigild service started")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down")
	if !silent {
		adapter.Broadcast("vigild service stopping")
	}
	sched.Stop()
	gw.Stop()
	return nil
}
