package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/refinement-bot/refinery/internal/calendar"
	"github.com/refinement-bot/refinery/internal/config"
	"github.com/refinement-bot/refinery/internal/db"
	"github.com/refinement-bot/refinery/internal/models"
	"github.com/refinement-bot/refinery/internal/quorum"
)

func newStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the active estimation batch",
		Long:  "Prints the live batch's items, roster, deadline, and vote progress straight from the database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.OutOrStdout(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "refinery.yaml", "path to Refinery config file")
	return cmd
}

func runStatus(out io.Writer, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}

	clock, err := calendar.New(cfg.Calendar)
	if err != nil {
		return err
	}

	var batch models.Batch
	err = gormDB.Preload("Items").Preload("Roster").
		Where("status IN ?", []string{models.BatchActive, models.BatchDiscussing}).
		First(&batch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fmt.Fprintln(out, "No active batch.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load active batch: %w", err)
	}

	fmt.Fprintf(out, "Batch %d (%s)\n", batch.ID, batch.Status)
	fmt.Fprintf(out, "Facilitator: %s\n", batch.Facilitator)
	fmt.Fprintf(out, "Deadline:    %s\n", clock.FormatDeadline(batch.Deadline))

	fmt.Fprintf(out, "Items (%d):\n", len(batch.Items))
	for _, item := range batch.Items {
		title := item.Title
		if title == "" {
			title = item.URL
		}
		fmt.Fprintf(out, "  #%s  %s\n", item.Key, title)
	}

	tracker := quorum.New(gormDB)
	voted, err := tracker.VotedParticipantCount(batch.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Votes received: %d/%d\n", voted, len(batch.Roster))

	idle, err := tracker.WithoutAnyAction(batch.ID)
	if err != nil {
		return err
	}
	if len(idle) > 0 {
		fmt.Fprintf(out, "Waiting on: %s\n", strings.Join(idle, ", "))
	}
	return nil
}
