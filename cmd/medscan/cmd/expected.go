package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/medscan/internal/schedule"
	"github.com/MeKo-Tech/medscan/internal/validate"
)

// doseSpec is the on-disk description of an expected dose, for the
// --expected flag. Individual flags override file values.
type doseSpec struct {
	MedicationName string    `yaml:"medication_name"`
	Dosage         string    `yaml:"dosage"`
	PatientName    string    `yaml:"patient_name"`
	ScheduledTime  string    `yaml:"scheduled_time"`
	MedicationID   string    `yaml:"medication_id"`
	PatientID      string    `yaml:"patient_id"`
	ScheduledAt    time.Time `yaml:"scheduled_at"`
	Timezone       string    `yaml:"timezone"`
}

// registerExpectedFlags adds the expected-dose flags shared by verify
// and watch.
func registerExpectedFlags(cmd *cobra.Command) {
	cmd.Flags().String("expected", "", "YAML file describing the expected dose")
	cmd.Flags().String("medication", "", "expected medication name")
	cmd.Flags().String("dosage", "", "expected dosage, e.g. 10mg")
	cmd.Flags().String("patient", "", "expected patient name, e.g. \"Doe, John\"")
	cmd.Flags().String("time", "", "expected dose time as printed on the label, e.g. \"9:00 AM\"")
}

// resolveExpected merges the --expected file and the individual flags
// into the values the validator needs. When only a scheduled timestamp
// is given, the printed time string is derived from it in the dose's
// timezone.
func resolveExpected(cmd *cobra.Command, timezone string) (validate.Expected, doseSpec, error) {
	var spec doseSpec

	if path, _ := cmd.Flags().GetString("expected"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return validate.Expected{}, spec, fmt.Errorf("read expected dose file: %w", err)
		}
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return validate.Expected{}, spec, fmt.Errorf("parse expected dose file: %w", err)
		}
	}

	if v, _ := cmd.Flags().GetString("medication"); v != "" {
		spec.MedicationName = v
	}
	if v, _ := cmd.Flags().GetString("dosage"); v != "" {
		spec.Dosage = v
	}
	if v, _ := cmd.Flags().GetString("patient"); v != "" {
		spec.PatientName = v
	}
	if v, _ := cmd.Flags().GetString("time"); v != "" {
		spec.ScheduledTime = v
	}

	if spec.ScheduledTime == "" && !spec.ScheduledAt.IsZero() {
		tz := spec.Timezone
		if tz == "" {
			tz = timezone
		}
		display, err := schedule.DisplayTime(spec.ScheduledAt, tz)
		if err != nil {
			return validate.Expected{}, spec, err
		}
		spec.ScheduledTime = display
	}

	expected := validate.Expected{
		MedicationName: spec.MedicationName,
		Dosage:         spec.Dosage,
		PatientName:    spec.PatientName,
		ScheduledTime:  spec.ScheduledTime,
	}
	if expected.PatientName == "" || expected.ScheduledTime == "" {
		return validate.Expected{}, spec, fmt.Errorf("an expected patient name and dose time are required (use --patient and --time, or --expected)")
	}
	return expected, spec, nil
}
