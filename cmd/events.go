/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/Fjallroth/matesrace/internal/mq"
	"github.com/Fjallroth/matesrace/types"
	"github.com/spf13/cobra"
)

// eventsCmd groups race event commands.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect race events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print race events from the message queue as JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return fmt.Errorf("open message queue: %w", err)
		}
		if queue == nil {
			return errors.New("no message queue configured, set MQ_PROVIDER")
		}
		defer queue.Close()

		encoder := json.NewEncoder(cmd.OutOrStdout())
		bus := mq.NewEventBus(queue, cfg.MQ.Channel)
		err = bus.Tail(ctx, func(event types.RaceEvent) error {
			return encoder.Encode(event)
		})
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("tail events: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
