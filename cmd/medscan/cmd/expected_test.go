package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExpectedTestCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	registerExpectedFlags(cmd)
	return cmd
}

func writeDoseFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dose.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestResolveExpected_FromFlags(t *testing.T) {
	cmd := newExpectedTestCommand()
	require.NoError(t, cmd.Flags().Set("patient", "Doe, John"))
	require.NoError(t, cmd.Flags().Set("time", "9:00 AM"))
	require.NoError(t, cmd.Flags().Set("medication", "Lisinopril"))
	require.NoError(t, cmd.Flags().Set("dosage", "10mg"))

	expected, _, err := resolveExpected(cmd, "UTC")
	require.NoError(t, err)
	assert.Equal(t, "Doe, John", expected.PatientName)
	assert.Equal(t, "9:00 AM", expected.ScheduledTime)
	assert.Equal(t, "Lisinopril", expected.MedicationName)
	assert.Equal(t, "10mg", expected.Dosage)
}

func TestResolveExpected_FromFile(t *testing.T) {
	path := writeDoseFile(t, `
medication_name: Lisinopril
dosage: 10mg
patient_name: "Doe, John"
scheduled_time: "9:00 AM"
medication_id: med-1
patient_id: pat-1
`)

	cmd := newExpectedTestCommand()
	require.NoError(t, cmd.Flags().Set("expected", path))

	expected, spec, err := resolveExpected(cmd, "UTC")
	require.NoError(t, err)
	assert.Equal(t, "Doe, John", expected.PatientName)
	assert.Equal(t, "9:00 AM", expected.ScheduledTime)
	assert.Equal(t, "Lisinopril", expected.MedicationName)
	assert.Equal(t, "med-1", spec.MedicationID)
	assert.Equal(t, "pat-1", spec.PatientID)
}

func TestResolveExpected_FlagsOverrideFile(t *testing.T) {
	path := writeDoseFile(t, `
patient_name: "Smith, Jane"
scheduled_time: "3:00 PM"
`)

	cmd := newExpectedTestCommand()
	require.NoError(t, cmd.Flags().Set("expected", path))
	require.NoError(t, cmd.Flags().Set("patient", "Doe, John"))

	expected, _, err := resolveExpected(cmd, "UTC")
	require.NoError(t, err)
	assert.Equal(t, "Doe, John", expected.PatientName)
	assert.Equal(t, "3:00 PM", expected.ScheduledTime)
}

func TestResolveExpected_DerivesDisplayTime(t *testing.T) {
	path := writeDoseFile(t, `
patient_name: "Doe, John"
scheduled_at: 2026-01-10T14:00:00Z
timezone: UTC
`)

	cmd := newExpectedTestCommand()
	require.NoError(t, cmd.Flags().Set("expected", path))

	expected, spec, err := resolveExpected(cmd, "America/New_York")
	require.NoError(t, err)
	// The file's timezone wins over the configured one.
	assert.Equal(t, "2:00 PM", expected.ScheduledTime)
	assert.Equal(t, time.Date(2026, 1, 10, 14, 0, 0, 0, time.UTC), spec.ScheduledAt)
}

func TestResolveExpected_DerivesDisplayTimeFromConfiguredZone(t *testing.T) {
	path := writeDoseFile(t, `
patient_name: "Doe, John"
scheduled_at: 2026-01-10T14:00:00Z
`)

	cmd := newExpectedTestCommand()
	require.NoError(t, cmd.Flags().Set("expected", path))

	expected, _, err := resolveExpected(cmd, "America/New_York")
	require.NoError(t, err)
	assert.Equal(t, "9:00 AM", expected.ScheduledTime)
}

func TestResolveExpected_MissingRequired(t *testing.T) {
	cmd := newExpectedTestCommand()
	require.NoError(t, cmd.Flags().Set("medication", "Lisinopril"))

	_, _, err := resolveExpected(cmd, "UTC")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "patient name")
}

func TestResolveExpected_BadFile(t *testing.T) {
	cmd := newExpectedTestCommand()
	require.NoError(t, cmd.Flags().Set("expected", filepath.Join(t.TempDir(), "missing.yaml")))

	_, _, err := resolveExpected(cmd, "UTC")
	require.Error(t, err)
}

func TestResolveExpected_BadTimezone(t *testing.T) {
	path := writeDoseFile(t, `
patient_name: "Doe, John"
scheduled_at: 2026-01-10T14:00:00Z
timezone: Not/AZone
`)

	cmd := newExpectedTestCommand()
	require.NoError(t, cmd.Flags().Set("expected", path))

	_, _, err := resolveExpected(cmd, "UTC")
	require.Error(t, err)
}
