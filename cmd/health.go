package main

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/erosion-api/pkg/rusle"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check readiness of the RUSLE computation backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("health"); err != nil {
			return err
		}
		backend := rusle.NewClient(
			rusle.WithBaseURL(cfg.Backend.BaseURL),
			rusle.WithHealthTimeout(cfg.Backend.HealthTimeout()),
		)
		return runHealth(cmd, backend)
	},
}

func runHealth(cmd *cobra.Command, backend rusle.Client) error {
	status, err := backend.Health(cmd.Context())
	if err != nil {
		return eris.Wrap(err, "health check")
	}

	out, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return eris.Wrap(err, "encode health status")
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if !status.Ready() {
		return eris.New("backend is not ready")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
