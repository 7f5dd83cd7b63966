package main

import (
	"context"
	"fmt"

	"github.com/newsgraph/newsgraph-go/internal/queue"
	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause graph sync",
	Long: `Flip the runtime kill-switch off. Running workers finish their
current job, then idle; queued jobs stay pending until 'newsgraph resume'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSyncEnabled(false)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume graph sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSyncEnabled(true)
	},
}

func setSyncEnabled(enabled bool) error {
	store, err := queue.Open(cfg.Queue.Driver, cfg.Queue.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	value := "false"
	if enabled {
		value = "true"
	}
	if err := store.SetSetting(context.Background(), queue.SettingSyncEnabled, value); err != nil {
		return err
	}

	if enabled {
		fmt.Println("✅ Graph sync resumed")
	} else {
		fmt.Println("⏸️  Graph sync paused")
	}
	return nil
}
