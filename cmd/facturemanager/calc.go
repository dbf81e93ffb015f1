package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ttsites/facturemanager/internal/tariff"
)

func newCalcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calc [input.json]",
		Short: "Price one bill read from a JSON file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			s, err := a.settings.Get(cmd.Context())
			if err != nil {
				return err
			}
			return calculate(in, cmd.OutOrStdout(), s)
		},
	}
}

type calcOutput struct {
	tariff.Result
	AmountDueDisplay string `json:"amount_due_display"`
}

// calculate decodes one bill input from r and writes the priced result to w.
func calculate(r io.Reader, w io.Writer, s tariff.Settings) error {
	var in tariff.BillCalculationInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}
	if err := in.Validate(); err != nil {
		return err
	}
	res, err := tariff.Calculate(in, s)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(calcOutput{Result: res, AmountDueDisplay: tariff.FormatMillimes(res.AmountDue)})
}
