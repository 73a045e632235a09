package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctxkeep/ctxkeep/pkg/docs"
	"github.com/ctxkeep/ctxkeep/pkg/errors"
)

// statusCmd represents the status command.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which context documents exist and which fields are manually protected",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, kind := range docs.AllKinds() {
		_, err := client.Document(kind)
		switch {
		case errors.Is(err, errors.ErrNotFound):
			fmt.Fprintf(out, "%-14s missing (run ctxkeep sync)\n", kind.Filename())
			continue
		case err != nil:
			fmt.Fprintf(out, "%-14s unreadable: %v\n", kind.Filename(), err)
			continue
		}

		manual, err := client.ManualFields(kind)
		if err != nil {
			return err
		}
		if len(manual) == 0 {
			fmt.Fprintf(out, "%-14s ok\n", kind.Filename())
			continue
		}
		fmt.Fprintf(out, "%-14s ok, manual: %v\n", kind.Filename(), manual)
	}
	return nil
}
