// Package sync implements the sync command, which replicates the
// remote user's observations into the local database.
package sync

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rainhead/lifelight-go/internal/conf"
	"github.com/rainhead/lifelight-go/internal/datastore"
	"github.com/rainhead/lifelight-go/internal/errors"
	"github.com/rainhead/lifelight-go/internal/events"
	"github.com/rainhead/lifelight-go/internal/inat"
	"github.com/rainhead/lifelight-go/internal/ingest"
)

// Command creates the sync command. By default it performs an
// incremental sync from the highest already-ingested observation id; a
// full sync walks every page from scratch.
func Command(settings *conf.Settings) *cobra.Command {
	var full bool
	var fixture string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch observations from the remote API into the local database",
		Long: `Fetch the configured user's observations page by page and upsert them
into the local database. Incremental by default: only observations with
ids above the local watermark are fetched. Re-running after a failed
sync is safe because ingestion is idempotent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if fixture == "" && settings.Login == "" {
				return errors.Newf("no login configured; set login in the config file or pass --login").
					Component("sync").
					Category(errors.CategoryConfiguration).
					Build()
			}

			store := datastore.New(settings.Database.Path)
			if err := store.Open(); err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			engine := ingest.New(store, events.NewBus())

			if fixture != "" {
				data, err := os.ReadFile(fixture)
				if err != nil {
					return errors.New(err).
						Component("sync").
						Category(errors.CategoryFileIO).
						Context("path", fixture).
						Build()
				}
				page, err := inat.LoadPageFile(data)
				if err != nil {
					return err
				}
				if err := engine.Ingest(cmd.Context(), page.Results); err != nil {
					return err
				}
				return summarize(cmd, store)
			}

			client := inat.NewClient(settings.API.BaseURL, settings.API.PerPage, settings.API.Timeout)

			if full {
				if err := client.FetchAll(cmd.Context(), settings.Login, engine.Handler()); err != nil {
					return err
				}
				return summarize(cmd, store)
			}

			watermark, err := store.HighestObservationID()
			if err != nil {
				return err
			}
			if err := client.FetchNewer(cmd.Context(), settings.Login, watermark, engine.Handler()); err != nil {
				return err
			}
			return summarize(cmd, store)
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Walk every page instead of syncing from the watermark")
	cmd.Flags().StringVar(&fixture, "fixture", "", "Ingest a saved page document instead of fetching")

	return cmd
}

func summarize(cmd *cobra.Command, store datastore.Interface) error {
	count, err := store.CountObservations()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d observations in local database\n", count)
	return nil
}
