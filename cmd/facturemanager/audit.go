package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/ttsites/facturemanager/internal/audit"
)

func newAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Recompute stored bills once and report drift",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			auditor, err := audit.New(audit.Config{
				Schedule:  a.cfg.Audit.Schedule,
				Tolerance: a.cfg.Audit.Tolerance,
			}, a.store, a.settings, nil, a.log)
			if err != nil {
				return err
			}
			rep, err := auditor.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}
}
