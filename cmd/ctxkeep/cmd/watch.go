package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ctxkeep/ctxkeep/internal/config"
	"github.com/ctxkeep/ctxkeep/pkg/errors"
	"github.com/ctxkeep/ctxkeep/pkg/logging"
)

// watchCmd represents the watch command.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the codebase and reconcile after each batch of changes",
	Long: `Watch observes the project tree and runs a reconciliation pass after
each quiet period of filesystem activity. Events arriving within the
debounce window are coalesced into a single pass; a pass already running
finishes before the next batch starts. Stop with Ctrl-C.`,
	Example: `  ctxkeep watch
  ctxkeep watch --debounce 2s`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().Duration("debounce", 0, "quiet window before a batch of changes triggers a pass")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlag(config.KeyDebounce, cmd.Flags().Lookup("debounce")); err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	err = client.Watch(cmd.Context())
	if errors.Is(err, cmd.Context().Err()) {
		logging.Info().Msg("watch stopped")
		return nil
	}
	return err
}
