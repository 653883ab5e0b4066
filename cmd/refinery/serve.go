package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/refinement-bot/refinery/internal/bot"
	"github.com/refinement-bot/refinery/internal/calendar"
	"github.com/refinement-bot/refinery/internal/chat"
	discordadapter "github.com/refinement-bot/refinery/internal/chat/discord"
	slackadapter "github.com/refinement-bot/refinery/internal/chat/slack"
	"github.com/refinement-bot/refinery/internal/config"
	"github.com/refinement-bot/refinery/internal/db"
	"github.com/refinement-bot/refinery/internal/poller"
	"github.com/refinement-bot/refinery/internal/tracker"
	"github.com/refinement-bot/refinery/internal/webhook"
	"github.com/refinement-bot/refinery/internal/workflow"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Refinery bot",
		Long:  "Connects to the configured chat platform, listens for estimation commands, runs the deadline poller, and serves the inbound webhook.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "refinery.yaml", "path to Refinery config file")
	return cmd
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	clock, err := calendar.New(cfg.Calendar)
	if err != nil {
		return err
	}

	adapter, err := createAdapter(cfg)
	if err != nil {
		return err
	}

	engine, err := workflow.New(workflow.Opts{
		DB:     gormDB,
		Config: cfg,
		Clock:  clock,
		Chat:   adapter,
		Titles: tracker.New(tracker.Opts{Token: cfg.GitHub.Token}),
	})
	if err != nil {
		return err
	}

	router, err := bot.NewRouter(bot.Opts{Engine: engine, Adapter: adapter})
	if err != nil {
		return err
	}

	wake, err := poller.New(poller.Opts{
		Workflow: engine,
		Interval: cfg.Poller.Interval,
		Cron:     cfg.Poller.Cron,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("refinery: shutting down")
		cancel()
	}()

	if err := adapter.Connect(ctx); err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.Platform, err)
	}
	defer adapter.Close()

	go wake.Run(ctx)

	errCh := make(chan error, 2)
	go func() {
		errCh <- webhook.Start(ctx, webhook.StartOpts{
			Addr:    cfg.Webhook.Addr,
			Token:   cfg.Webhook.Token,
			Handler: router,
		})
	}()
	go func() {
		errCh <- router.Run(ctx)
	}()

	log.Printf("refinery: serving on %s (platform %s)", cfg.Webhook.Addr, cfg.Platform)
	err = <-errCh
	cancel()
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// createAdapter builds a platform adapter from the config.
func createAdapter(cfg *config.Config) (chat.Adapter, error) {
	switch cfg.Platform {
	case "slack":
		return slackadapter.New(slackadapter.AdapterOpts{
			AppToken:  cfg.Slack.AppToken,
			BotToken:  cfg.Slack.BotToken,
			ChannelID: cfg.Slack.ChannelID,
		})
	case "discord":
		return discordadapter.New(discordadapter.AdapterOpts{
			BotToken:  cfg.Discord.BotToken,
			ChannelID: cfg.Discord.ChannelID,
		})
	default:
		return nil, fmt.Errorf("unsupported platform %q", cfg.Platform)
	}
}
