package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rainhead/lifelight-go/cmd/export"
	"github.com/rainhead/lifelight-go/cmd/photos"
	"github.com/rainhead/lifelight-go/cmd/sync"
	"github.com/rainhead/lifelight-go/cmd/taxa"
	"github.com/rainhead/lifelight-go/cmd/watch"
	"github.com/rainhead/lifelight-go/internal/conf"
	"github.com/rainhead/lifelight-go/internal/logging"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lifelight",
		Short: "Local replica and photo browser for a naturalist's observations",
	}

	setupFlags(rootCmd, settings)

	subcommands := []*cobra.Command{
		sync.Command(settings),
		photos.Command(settings),
		taxa.Command(settings),
		export.Command(settings),
		watch.Command(settings),
		configCommand(),
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if settings.Debug {
			logging.SetLevel(slog.LevelDebug)
		} else {
			logging.SetLevel(logging.ParseLevel(settings.Log.Level))
		}
		return settings.Validate()
	}

	return rootCmd
}

// configCommand writes a config file populated with defaults, for the
// user to edit.
func configCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := conf.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote default config to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "output", "o", "lifelight.yaml", "Where to write the config file")

	return cmd
}

// setupFlags defines flags that are global to the command line interface.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVarP(&settings.Login, "login", "l", viper.GetString("login"), "Remote login whose observations are replicated")
	rootCmd.PersistentFlags().StringVar(&settings.Database.Path, "db", viper.GetString("database.path"), "Path to the local database file")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		cobra.CheckErr(fmt.Errorf("error binding flags: %w", err))
	}
}
