package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emrgen/catalog/internal/jobs"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "orphan reclaim commands",
}

func init() {
	orphansCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	orphansCmd.AddCommand(listOrphansCmd())
	orphansCmd.AddCommand(reclaimOrphansCmd())
}

func listOrphansCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "list",
		Short: "list versions no owner maps",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadContext()
			if err != nil {
				return err
			}
			defer app.close()

			products, err := app.store.ListOrphanedProductUUIDs(cmd.Context())
			if err != nil {
				return err
			}
			contents, err := app.store.ListOrphanedContentUUIDs(cmd.Context())
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Kind", "UUID"})
			for _, uuid := range products {
				table.Append([]string{"product", uuid})
			}
			for _, uuid := range contents {
				table.Append([]string{"content", uuid})
			}
			table.Render()
			return nil
		},
	}

	return command
}

func reclaimOrphansCmd() *cobra.Command {
	var schedule, metricsAddr string
	var timeout time.Duration

	command := &cobra.Command{
		Use:     "reclaim",
		Short:   "delete versions no owner references",
		Example: `catalog orphans reclaim --schedule "@every 1h" --metrics :9102`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadContext()
			if err != nil {
				return err
			}
			defer app.close()

			if !cmd.Flag("schedule").Changed {
				ctx := cmd.Context()
				if timeout > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, timeout)
					defer cancel()
				}

				result, err := app.service.ReclaimOrphans(ctx)
				if err != nil {
					return err
				}

				table := tablewriter.NewWriter(os.Stdout)
				table.SetHeader([]string{"Kind", "UUID"})
				for _, uuid := range result.Products {
					table.Append([]string{"product", uuid})
				}
				for _, uuid := range result.Content {
					table.Append([]string{"content", uuid})
				}
				table.Render()
				return nil
			}

			if schedule == "" {
				schedule = app.cfg.Reclaim.Schedule
			}
			task := jobs.NewOrphanReclaimTask(schedule, timeout, app.service)
			executor := jobs.NewTaskExecutor(nil, []jobs.CronJob{task})
			if err := executor.Run(); err != nil {
				return err
			}
			defer executor.Stop()

			if metricsAddr != "" {
				server := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{})}
				go func() {
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logrus.Errorf("metrics server: %v", err)
					}
				}()
				defer server.Close()
			}

			logrus.Infof("reclaiming orphans on schedule %q", schedule)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}

	command.Flags().StringVar(&schedule, "schedule", "", "run on a cron schedule instead of once")
	command.Flags().StringVar(&metricsAddr, "metrics", "", "address serving Prometheus metrics while scheduled")
	command.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "timeout of one reclaim run")

	return command
}
