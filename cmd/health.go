package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/deskpilot/internal/health"
)

var (
	healthJSON    bool
	healthRecover string
	healthRetry   bool
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show module availability and the health score",
	Long: `Check every collaborator module (reasoning, vision, automation,
accessibility, audio, mouse listener) and report the health score.

--recover retries every unavailable module; --module limits it to one.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		o := newEngine(cmd.Context())
		defer func() { _ = o.Close() }()

		var rec *health.RecoveryReport
		if healthRetry || healthRecover != "" {
			if healthRecover != "" && !isModule(healthRecover) {
				return fmt.Errorf("unknown module: %s", healthRecover)
			}
			r := o.AttemptRecovery(cmd.Context(), healthRecover)
			rec = &r
		}
		rep := o.SystemHealth()

		if healthJSON {
			data, err := json.MarshalIndent(struct {
				Health   health.Report          `json:"health"`
				Recovery *health.RecoveryReport `json:"recovery,omitempty"`
			}{rep, rec}, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal health: %w", err)
			}
			fmt.Fprintln(ui.Out, string(data))
			return nil
		}

		if rec != nil {
			ui.Recovery(*rec)
			fmt.Fprintln(ui.Out)
		}
		return ui.Health(rep)
	},
}

func init() {
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "Print the report as JSON")
	healthCmd.Flags().BoolVar(&healthRetry, "recover", false, "Retry unavailable modules before reporting")
	healthCmd.Flags().StringVar(&healthRecover, "module", "", "Retry only this module")
	rootCmd.AddCommand(healthCmd)
}
