// Package watch implements the watch command: a long-running loop that
// periodically syncs new observations and re-runs a query whenever the
// local database changes.
package watch

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rainhead/lifelight-go/internal/conf"
	"github.com/rainhead/lifelight-go/internal/datastore"
	"github.com/rainhead/lifelight-go/internal/errors"
	"github.com/rainhead/lifelight-go/internal/events"
	"github.com/rainhead/lifelight-go/internal/group"
	"github.com/rainhead/lifelight-go/internal/inat"
	"github.com/rainhead/lifelight-go/internal/ingest"
	"github.com/rainhead/lifelight-go/internal/logging"
	"github.com/rainhead/lifelight-go/internal/query"
)

// Command creates the watch command.
func Command(settings *conf.Settings) *cobra.Command {
	var interval time.Duration
	var months []int
	var taxonIDs []int64
	var search string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync periodically and re-print matching photos on change",
		Long: `Run until interrupted. An incremental sync runs on start and then on
every interval tick. Store changes are debounced and each settled burst
re-runs the configured query; a newer query's result always supersedes
an older in-flight one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if settings.Login == "" {
				return errors.Newf("no login configured; set login in the config file or pass --login").
					Component("watch").
					Category(errors.CategoryConfiguration).
					Build()
			}

			req := query.Request{Search: search}
			for _, m := range months {
				if m < 1 || m > 12 {
					return errors.Newf("month %d out of range 1-12", m).
						Component("watch").
						Category(errors.CategoryValidation).
						Build()
				}
				req.Refinements = append(req.Refinements, query.Month(time.Month(m)))
			}
			for _, id := range taxonIDs {
				req.Refinements = append(req.Refinements, query.Taxon(id))
			}

			return run(cmd, settings, req, interval)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 5*time.Minute, "Time between incremental syncs")
	cmd.Flags().IntSliceVarP(&months, "month", "m", nil, "Calendar month 1-12, repeatable")
	cmd.Flags().Int64SliceVarP(&taxonIDs, "taxon", "t", nil, "Taxon id including its subtree, repeatable")
	cmd.Flags().StringVarP(&search, "search", "s", "", "Taxon name to match instead of refinements")

	return cmd
}

func run(cmd *cobra.Command, settings *conf.Settings, req query.Request, interval time.Duration) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.ForService("watch")
	if settings.Log.Path != "" {
		fileLogger, closeLogger, err := logging.NewFileLogger(
			settings.Log.Path, "watch", logging.ParseLevel(settings.Log.Level))
		if err != nil {
			return err
		}
		defer closeLogger() //nolint:errcheck
		logger = fileLogger
	}

	store := datastore.New(settings.Database.Path)
	if err := store.Open(); err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck

	bus := events.NewBus()
	engine := ingest.New(store, bus)
	client := inat.NewClient(settings.API.BaseURL, settings.API.PerPage, settings.API.Timeout)
	queries := query.NewEngine(ctx, store, bus)

	out := cmd.OutOrStdout()
	runner := query.NewRunner(queries, func(res query.Result) {
		for _, g := range group.ChunkByDay(res.Rows) {
			fmt.Fprintf(out, "%s\n", g.Day.Format("2006-01-02"))
			for _, row := range g.Rows {
				fmt.Fprintf(out, "  %d\t%s\n", row.Observation.ID, row.Photo.VariantURL(datastore.VariantMedium))
			}
		}
		fmt.Fprintf(out, "%d photos\n", len(res.Rows))
	})

	changes, cancel := bus.Subscribe(16)
	defer cancel()
	settled := events.Debounce(ctx, changes, settings.Debounce)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if err := syncOnce(ctx, client, store, engine, settings.Login); err != nil {
				// A failed sync run leaves the database consistent;
				// the next tick retries from the watermark.
				logger.Error("sync run failed", "error", err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	})

	g.Go(func() error {
		for range settled {
			runner.Issue(ctx, req)
		}
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func syncOnce(ctx context.Context, client *inat.Client, store datastore.Interface, engine *ingest.Engine, login string) error {
	watermark, err := store.HighestObservationID()
	if err != nil {
		return err
	}
	return client.FetchNewer(ctx, login, watermark, engine.Handler())
}
