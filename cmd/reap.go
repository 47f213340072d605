package cmd

import (
	"context"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/openrange/balancer/api"
	"github.com/openrange/balancer/k8s"
	"github.com/openrange/balancer/reaper"
)

var schedule string

const reapRunTimeout = 5 * time.Minute

// Reap deletes instances that have been idle longer than --max-inactive.
// One pass per invocation by default, intended to run as a cluster CronJob;
// --schedule keeps it resident with an in-process cron scheduler instead.
var Reap = &cobra.Command{
	Use: "reap",
	Run: func(cmd *cobra.Command, args []string) {
		maxInactiveDuration, err := reaper.ParseMaxInactive(maxInactive)
		if err != nil {
			logger.Fatalf("invalid --max-inactive: %v", err)
		}
		api.MaxInactiveDuration = maxInactiveDuration

		client, err := k8s.NewClient()
		if err != nil {
			logger.Fatalf("Failed to create kubernetes client: %v", err)
		}

		r := reaper.New(client, maxInactiveDuration)

		run := func() {
			ctx, cancel := context.WithTimeout(context.Background(), reapRunTimeout)
			defer cancel()
			if _, err := r.Run(ctx); err != nil {
				logger.Errorf("reap: %v", err)
			}
		}

		if schedule == "" {
			run()
			return
		}

		scheduler := cron.New()
		if _, err := scheduler.AddFunc(schedule, run); err != nil {
			logger.Fatalf("invalid --schedule: %v", err)
		}
		scheduler.Start()
		WaitForShutdown()
	},
}

func init() {
	ReaperFlags(Reap.Flags())
}
