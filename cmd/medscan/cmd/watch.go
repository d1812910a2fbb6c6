package cmd

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/medscan/internal/capture"
	"github.com/MeKo-Tech/medscan/internal/recognize"
	"github.com/MeKo-Tech/medscan/internal/record"
)

// watchCmd represents the watch command.
var watchCmd = &cobra.Command{
	Use:   "watch <frame-dir>",
	Short: "Run a capture session over frames dropped into a directory",
	Long: `Run the full capture loop against a directory: a camera process drops
still frames into the directory, and medscan keeps recognizing and
validating them until the dose verifies, the retry budget is exhausted,
or the scan window times out without ever seeing a label.

When automatic verification gives up, medscan asks on the terminal
whether the dose was taken and records the answer as a manual
confirmation.

Examples:
  medscan watch ./frames --patient "Doe, John" --time "9:00 AM"
  medscan watch ./frames --expected dose.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		expected, spec, err := resolveExpected(cmd, cfg.Schedule.Timezone)
		if err != nil {
			return err
		}

		var emitter record.Emitter = record.Nop{}
		if cfg.Records.Endpoint != "" {
			emitter = record.NewHTTPEmitter(cfg.Records.Endpoint,
				time.Duration(cfg.Records.TimeoutSec)*time.Second)
		}

		meta := capture.Meta{
			MedicationID: spec.MedicationID,
			PatientID:    spec.PatientID,
			ScheduledAt:  spec.ScheduledAt,
			Window:       cfg.ToScheduleWindow(),
		}

		ctrl := capture.New(
			cfg.ToCaptureConfig(),
			expected,
			meta,
			recognize.NewTesseract(cfg.ToRecognizerConfig()),
			capture.NewDirSource(args[0]),
			emitter,
		)

		sess, err := ctrl.Run(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch sess.State {
		case capture.StateSuccess:
			fmt.Fprintf(out, "Dose verified (session %s)\n", sess.ID)
			return nil
		case capture.StateManualConfirmation:
			confirmed, err := promptConfirmation(cmd)
			if err != nil {
				return err
			}
			state := ctrl.ResolveManual(cmd.Context(), confirmed)
			if state == capture.StateSuccess {
				fmt.Fprintf(out, "Dose recorded as manually confirmed (session %s)\n", sess.ID)
			} else {
				fmt.Fprintf(out, "Dose not recorded (session %s)\n", sess.ID)
			}
			return nil
		default:
			fmt.Fprintf(out, "Capture ended in state %s (session %s)\n", sess.State, sess.ID)
			return nil
		}
	},
}

// promptConfirmation asks on the terminal whether the dose was taken.
func promptConfirmation(cmd *cobra.Command) (bool, error) {
	fmt.Fprint(cmd.OutOrStdout(), "Could not verify the label automatically. Was the dose taken? [y/N]: ")
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return false, nil
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func init() {
	rootCmd.AddCommand(watchCmd)
	registerExpectedFlags(watchCmd)
}
