package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/medscan/internal/extract"
	"github.com/MeKo-Tech/medscan/internal/recognize"
)

// extractCmd represents the extract command.
var extractCmd = &cobra.Command{
	Use:   "extract <image>",
	Short: "Extract label fields from an image",
	Long: `Recognize the text on a medication label image and print the extracted
fields without validating them against anything.

Examples:
  medscan extract label.png
  medscan extract label.png --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		image, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}

		rec := recognize.NewTesseract(cfg.ToRecognizerConfig())
		ctx, cancel := context.WithTimeout(cmd.Context(),
			time.Duration(cfg.Capture.RecognizeTimeoutSec)*time.Second)
		defer cancel()

		reading, err := rec.Recognize(ctx, image)
		if err != nil {
			return fmt.Errorf("recognize label: %w", err)
		}

		label := extract.Extract(reading)
		out := cmd.OutOrStdout()

		if format, _ := cmd.Flags().GetString("format"); format == "json" {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(label)
		}

		fields := []struct{ name, value string }{
			{"patient", label.PatientName},
			{"medication", label.MedicationName},
			{"dosage", label.Dosage},
			{"time", label.PrintedTime},
			{"instructions", label.Instructions},
			{"pharmacy", label.Pharmacy},
			{"prescriber", label.Prescriber},
		}
		for _, f := range fields {
			if f.value != "" {
				fmt.Fprintf(out, "%-13s %s\n", f.name+":", f.value)
			}
		}
		fmt.Fprintf(out, "%-13s %.2f\n", "confidence:", label.Confidence)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().StringP("format", "f", "text", "output format: text or json")
}
