package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/bebsworthy/arcset/internal/channel"
	"github.com/bebsworthy/arcset/internal/errors"
	"github.com/bebsworthy/arcset/internal/logging"
)

// cleanupCmd represents the cleanup command
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove channel objects left behind by a crashed supervisor",
	Long: `Remove the shared segment and the semaphores of a channel.

A supervisor that is killed without running its shutdown leaves these names
behind and the next supervisor fails to create the channel. Every name is
attempted; names that are already gone are reported but are not an error.
Do not run this while a supervisor is using the channel.`,
	Example: `  arcset cleanup
  arcset cleanup --channel demo`,
	Args: noArgs,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	logger, err := logging.NewCleanupLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Close()

	opts := channel.OptionsFromConfig(cfg.Channel)
	paths := opts.Paths().All()

	var failed error
	missing := 0
	for _, e := range multierr.Errors(channel.Unlink(opts)) {
		if errors.IsCode(e, errors.CodeNotFound) {
			missing++
			logger.InfoContext(cmd.Context(), "Channel object not present", "error", e.Error())
			continue
		}
		logger.LogError(cmd.Context(), "Failed to remove channel object", e)
		failed = multierr.Append(failed, e)
	}

	removed := len(paths) - missing - len(multierr.Errors(failed))
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d of %d objects of channel %q (%d not present)\n",
		removed, len(paths), opts.Name, missing)

	return failed
}
