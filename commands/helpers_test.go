package commands

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/podscope/internal/testing/fixtures"
)

// resetFlags restores every flag to its default so commands can run again.
func resetFlags(t *testing.T) {
	t.Helper()
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			require.NoError(t, sv.Replace(nil))
		} else {
			require.NoError(t, f.Value.Set(f.DefValue))
		}
		f.Changed = false
	}
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd, streamCmd} {
		cmd.Flags().VisitAll(reset)
		cmd.PersistentFlags().VisitAll(reset)
	}
}

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(t)
	t.Cleanup(func() { resetFlags(t) })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--log-file", "", "--cache-dir", t.TempDir()}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

// telemetryDir writes two register readings and a two-row CSV export.
func telemetryDir(t *testing.T) string {
	t.Helper()
	g := fixtures.NewTestDataGenerator(t.TempDir())
	_, err := g.GenerateRegisterBlob("esp/modbus.ttl", []fixtures.RegisterRecord{
		{ID: 1, Value: 7, Register: 3, Function: "F1", Accessed: time.Unix(1700000000, 0)},
		{ID: 2, Value: 9, Register: 4, Function: "F2", Accessed: time.Unix(1700000060, 0)},
	})
	require.NoError(t, err)
	_, err = g.GenerateCSV("history.csv", []fixtures.CSVRow{
		{Timestamp: time.Unix(1700000000, 0), DeviceID: "sim-1", DataType: "modbus", Register: "3", Value: 7, Function: "F1"},
		{Timestamp: time.Unix(1700000001, 0), DeviceID: "sim-1", DataType: "slider", Value: 42, Function: "Slider"},
	})
	require.NoError(t, err)
	return g.GetBaseDir()
}
