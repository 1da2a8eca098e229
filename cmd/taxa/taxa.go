// Package taxa implements the taxa command, an interactive-style
// substring search over the locally ingested taxon table.
package taxa

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rainhead/lifelight-go/internal/conf"
	"github.com/rainhead/lifelight-go/internal/datastore"
)

// Command creates the taxa command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "taxa [substring]",
		Short: "Search locally known taxa by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := datastore.New(settings.Database.Path)
			if err := store.Open(); err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			taxa, err := store.SearchTaxa(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i := range taxa {
				t := &taxa[i]
				fmt.Fprintf(out, "%d\t%s\t%s\n", t.ID, t.Rank, t.DisplayName())
			}
			if len(taxa) == 0 {
				fmt.Fprintln(out, "no matching taxa")
			}
			return nil
		},
	}
}
