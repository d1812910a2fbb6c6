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
	"github.com/MeKo-Tech/medscan/internal/validate"
)

// verifyCmd represents the verify command.
var verifyCmd = &cobra.Command{
	Use:   "verify <image>",
	Short: "Verify a label image against an expected dose",
	Long: `Recognize the text on a medication label image, extract its fields and
check them against the expected dose.

The patient name and dose time are required checks; medication name and
dosage contribute to the score but a mismatch there does not fail the
label.

Examples:
  medscan verify label.png --patient "Doe, John" --time "9:00 AM"
  medscan verify label.png --expected dose.yaml --format json
  medscan verify label.png --expected dose.yaml --strict`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		expected, _, err := resolveExpected(cmd, cfg.Schedule.Timezone)
		if err != nil {
			return err
		}

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
		verdict := validate.Validate(label, expected)

		format, _ := cmd.Flags().GetString("format")
		if err := printVerdict(cmd, format, label, verdict); err != nil {
			return err
		}

		if strict, _ := cmd.Flags().GetBool("strict"); strict && !verdict.IsValid {
			cmd.SilenceUsage = true
			return fmt.Errorf("label failed verification (%d/%d required checks passed)",
				verdict.PassedChecks, verdict.RequiredChecks)
		}
		return nil
	},
}

func printVerdict(cmd *cobra.Command, format string, label extract.Label, verdict validate.Verdict) error {
	out := cmd.OutOrStdout()

	if format == "json" {
		obj := struct {
			Label   extract.Label    `json:"label"`
			Verdict validate.Verdict `json:"verdict"`
		}{Label: label, Verdict: verdict}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(obj)
	}

	status := "INVALID"
	if verdict.IsValid {
		status = "VALID"
	}
	fmt.Fprintf(out, "%s  (%d/%d required, score %d, confidence %.2f)\n",
		status, verdict.PassedChecks, verdict.RequiredChecks, verdict.Score, verdict.Confidence)
	for _, r := range verdict.Results {
		mark := "fail"
		if r.Passed {
			mark = "pass"
		}
		fmt.Fprintf(out, "  %-12s %s (%.2f)\n", r.Field, mark, r.Score)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	registerExpectedFlags(verifyCmd)
	verifyCmd.Flags().StringP("format", "f", "text", "output format: text or json")
	verifyCmd.Flags().Bool("strict", false, "exit non-zero when the label does not verify")
}
