// Package export implements the export command, writing the
// observation table as CSV.
package export

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rainhead/lifelight-go/internal/conf"
	"github.com/rainhead/lifelight-go/internal/datastore"
	"github.com/rainhead/lifelight-go/internal/errors"
	"github.com/rainhead/lifelight-go/internal/export"
)

// Command creates the export command.
func Command(settings *conf.Settings) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all observations as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := datastore.New(settings.Database.Path)
			if err := store.Open(); err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return errors.New(err).
						Component("export").
						Category(errors.CategoryFileIO).
						Context("path", output).
						Build()
				}
				defer f.Close() //nolint:errcheck
				w = f
			}

			count, err := export.WriteCSV(w, store)
			if err != nil {
				return err
			}
			if output != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d observations to %s\n", count, output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")

	return cmd
}
