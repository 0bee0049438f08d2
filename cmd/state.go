package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/deskpilot/internal/state"
)

var stateRepair bool

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Validate the system state invariants",
	Long: `Show the system mode and any pending deferred action, then check the
state invariants. With --repair a violated invariant resets the deferred
state to idle.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		o := newEngine(cmd.Context())
		defer func() { _ = o.Close() }()

		var v state.Validation
		if stateRepair && !dryRun {
			v = o.RepairState()
		} else {
			v = o.ValidateState()
			if stateRepair && !v.Consistent {
				ui.DryRunMsg("Would reset the deferred state")
			}
		}
		ui.State(o.State(), v)
		return nil
	},
}

func init() {
	stateCmd.Flags().BoolVar(&stateRepair, "repair", false, "Reset the deferred state if invariants are violated")
	rootCmd.AddCommand(stateCmd)
}
