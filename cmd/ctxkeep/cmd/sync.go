package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ctxkeep/ctxkeep"
	"github.com/ctxkeep/ctxkeep/internal/cmd/output"
	"github.com/ctxkeep/ctxkeep/internal/config"
	"github.com/ctxkeep/ctxkeep/pkg/errors"
	"github.com/ctxkeep/ctxkeep/pkg/reconciler"
)

var (
	syncForce  bool
	syncDryRun bool
)

// syncCmd represents the sync command.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile context documents with the current codebase",
	Long: `Sync scans the codebase, regenerates each context document, and merges
the result with the persisted documents. Manually edited fields are
preserved; machine-maintained fields follow the code. The provenance store
is snapshotted before anything is overwritten.`,
	Example: `  ctxkeep sync
  ctxkeep sync --dry-run          # report changes without writing anything
  ctxkeep sync --force            # discard manual edits and regenerate
  ctxkeep sync -o json            # machine-readable change report`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().BoolVar(&syncForce, "force", false, "overwrite documents with freshly inferred content, discarding manual edits")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "report changes without writing documents or provenance")
}

func runSync(cmd *cobra.Command, _ []string) error {
	if syncForce && syncDryRun {
		return &errors.ValidationError{Field: "flags", Message: "--force and --dry-run are mutually exclusive"}
	}

	format, err := output.ParseFormat(viper.GetString(config.KeyOutput))
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	var runOpts []reconciler.RunOption
	if syncForce {
		runOpts = append(runOpts, reconciler.Force())
	}
	if syncDryRun {
		runOpts = append(runOpts, reconciler.DryRun())
	}

	result, err := client.Sync(cmd.Context(), runOpts...)
	if err != nil {
		return err
	}
	return output.WriteReport(cmd.OutOrStdout(), result, format)
}

// newClient builds a Client from the resolved configuration.
func newClient() (ctxkeep.Client, error) {
	return ctxkeep.New(
		ctxkeep.WithRoot(viper.GetString(config.KeyRoot)),
		ctxkeep.WithContextDir(viper.GetString(config.KeyContextDir)),
		ctxkeep.WithDebounce(config.Debounce()),
	)
}
