package stream_test

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type edfSignal struct {
	label            string
	physMin, physMax float64
	digMin, digMax   int
	samplesPerRecord int
}

func pad(s string, width int) string {
	return fmt.Sprintf("%-*s", width, s)
}

// writeEDF writes a minimal EDF file. records[r][s] holds the digital samples
// of signal s in record r.
func writeEDF(t *testing.T, dir, name string, duration float64, signals []edfSignal, records [][][]int16) string {
	t.Helper()

	var buf bytes.Buffer
	ns := len(signals)
	buf.WriteString(pad("0", 8))
	buf.WriteString(pad("patient", 80))
	buf.WriteString(pad("recording", 80))
	buf.WriteString(pad("01.01.24", 8))
	buf.WriteString(pad("00.00.00", 8))
	buf.WriteString(pad(fmt.Sprint(256*(ns+1)), 8))
	buf.WriteString(pad("", 44))
	buf.WriteString(pad(fmt.Sprint(len(records)), 8))
	buf.WriteString(pad(fmt.Sprint(duration), 8))
	buf.WriteString(pad(fmt.Sprint(ns), 4))

	each := func(width int, f func(s edfSignal) string) {
		for _, s := range signals {
			buf.WriteString(pad(f(s), width))
		}
	}
	each(16, func(s edfSignal) string { return s.label })
	each(80, func(edfSignal) string { return "" })
	each(8, func(edfSignal) string { return "uV" })
	each(8, func(s edfSignal) string { return fmt.Sprint(s.physMin) })
	each(8, func(s edfSignal) string { return fmt.Sprint(s.physMax) })
	each(8, func(s edfSignal) string { return fmt.Sprint(s.digMin) })
	each(8, func(s edfSignal) string { return fmt.Sprint(s.digMax) })
	each(80, func(edfSignal) string { return "" })
	each(8, func(s edfSignal) string { return fmt.Sprint(s.samplesPerRecord) })
	each(32, func(edfSignal) string { return "" })
	require.Equal(t, 256*(ns+1), buf.Len())

	for _, record := range records {
		for _, samples := range record {
			require.NoError(t, binary.Write(&buf, binary.LittleEndian, samples))
		}
	}

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

// twoChannelEDF has Fpz-Cz at 4 Hz and EOG at 2 Hz over two 1s records.
func twoChannelEDF(t *testing.T, dir string) string {
	t.Helper()
	signals := []edfSignal{
		{label: "EEG Fpz-Cz", physMin: -100, physMax: 100, digMin: -100, digMax: 100, samplesPerRecord: 4},
		{label: "EOG", physMin: 0, physMax: 10, digMin: 0, digMax: 100, samplesPerRecord: 2},
	}
	records := [][][]int16{
		{{1, 2, 3, 4}, {10, 20}},
		{{5, 6, 7, 8}, {30, 40}},
	}
	return writeEDF(t, dir, "night.edf", 1, signals, records)
}
