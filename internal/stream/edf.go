package stream

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

const edfFixedHeaderSize = 256

// SignalInfo describes one EDF signal.
type SignalInfo struct {
	Label            string  `json:"label"`
	SamplesPerRecord int     `json:"samples_per_record"`
	PhysMin          float64 `json:"phys_min"`
	PhysMax          float64 `json:"phys_max"`
	DigMin           int     `json:"dig_min"`
	DigMax           int     `json:"dig_max"`
}

// Scale converts digital units to physical units.
func (s SignalInfo) Scale() float64 {
	if s.DigMax == s.DigMin {
		return 1
	}
	return (s.PhysMax - s.PhysMin) / float64(s.DigMax-s.DigMin)
}

// Offset is added after scaling.
func (s SignalInfo) Offset() float64 {
	return s.PhysMin - s.Scale()*float64(s.DigMin)
}

// Header is the parsed EDF header.
type Header struct {
	// NumRecords is -1 when the recording length is unknown.
	NumRecords     int          `json:"num_records"`
	RecordDuration float64      `json:"record_duration"`
	Signals        []SignalInfo `json:"signals"`
}

// Labels returns the signal labels in file order.
func (h *Header) Labels() []string {
	labels := make([]string, len(h.Signals))
	for i, s := range h.Signals {
		labels[i] = s.Label
	}
	return labels
}

// SamplingRate returns the rate of signal idx in Hz.
func (h *Header) SamplingRate(idx int) float64 {
	if idx < 0 || idx >= len(h.Signals) || h.RecordDuration <= 0 {
		return 0
	}
	return float64(h.Signals[idx].SamplesPerRecord) / h.RecordDuration
}

// ChannelIndex resolves a label; empty selects the first signal.
func (h *Header) ChannelIndex(label string) (int, error) {
	if len(h.Signals) == 0 {
		return 0, errors.New("edf has no signals")
	}
	if label == "" {
		return 0, nil
	}
	for i, s := range h.Signals {
		if s.Label == label {
			return i, nil
		}
	}
	return 0, fmt.Errorf("channel '%s' not found. Available: %s", label, strings.Join(h.Labels(), ", "))
}

// ReadHeader parses the fixed header and the per-signal fields.
func ReadHeader(r io.Reader) (*Header, error) {
	fixed := make([]byte, edfFixedHeaderSize)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, fmt.Errorf("not a valid EDF file (header too short): %w", err)
	}

	numRecords, err := atoiDefault(field(fixed[236:244]), -1)
	if err != nil {
		return nil, fmt.Errorf("edf record count: %w", err)
	}
	recordDuration, err := atofDefault(field(fixed[244:252]), 1)
	if err != nil {
		return nil, fmt.Errorf("edf record duration: %w", err)
	}
	numSignals, err := strconv.Atoi(field(fixed[252:256]))
	if err != nil || numSignals <= 0 {
		return nil, fmt.Errorf("edf signal count %q is invalid", field(fixed[252:256]))
	}

	read := func(width int) ([]string, error) {
		buf := make([]byte, width*numSignals)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("edf signal header truncated: %w", err)
		}
		out := make([]string, numSignals)
		for i := range out {
			out[i] = field(buf[i*width : (i+1)*width])
		}
		return out, nil
	}

	// Field order and widths per signal block.
	widths := []int{16, 80, 8, 8, 8, 8, 8, 80, 8, 32}
	blocks := make([][]string, len(widths))
	for i, w := range widths {
		if blocks[i], err = read(w); err != nil {
			return nil, err
		}
	}
	labels, physMin, physMax, digMin, digMax, samples := blocks[0], blocks[3], blocks[4], blocks[5], blocks[6], blocks[8]

	header := &Header{NumRecords: numRecords, RecordDuration: recordDuration, Signals: make([]SignalInfo, numSignals)}
	for i := 0; i < numSignals; i++ {
		sig := SignalInfo{Label: labels[i]}
		if sig.PhysMin, err = atofDefault(physMin[i], 0); err != nil {
			return nil, fmt.Errorf("signal %d physical minimum: %w", i, err)
		}
		if sig.PhysMax, err = atofDefault(physMax[i], 1); err != nil {
			return nil, fmt.Errorf("signal %d physical maximum: %w", i, err)
		}
		if sig.DigMin, err = atoiDefault(digMin[i], -32768); err != nil {
			return nil, fmt.Errorf("signal %d digital minimum: %w", i, err)
		}
		if sig.DigMax, err = atoiDefault(digMax[i], 32767); err != nil {
			return nil, fmt.Errorf("signal %d digital maximum: %w", i, err)
		}
		if sig.SamplesPerRecord, err = atoiDefault(samples[i], 0); err != nil {
			return nil, fmt.Errorf("signal %d samples per record: %w", i, err)
		}
		header.Signals[i] = sig
	}
	return header, nil
}

func field(b []byte) string {
	return strings.TrimSpace(string(b))
}

func atoiDefault(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

func atofDefault(s string, def float64) (float64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseFloat(s, 64)
}

// Info summarizes an EDF file for clients.
type Info struct {
	Success        bool     `json:"success"`
	Filename       string   `json:"filename"`
	SamplingRate   float64  `json:"sampling_rate"`
	Labels         []string `json:"labels"`
	NumRecords     int      `json:"num_records"`
	RecordDuration float64  `json:"record_duration"`
}

// ReadInfo opens path and describes it; the sampling rate is that of channel.
func ReadInfo(path, channel string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open edf: %w", err)
	}
	defer f.Close()

	header, err := ReadHeader(bufio.NewReader(f))
	if err != nil {
		return Info{}, err
	}
	idx, err := header.ChannelIndex(channel)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Success:        true,
		Filename:       filepath.Base(path),
		SamplingRate:   header.SamplingRate(idx),
		Labels:         header.Labels(),
		NumRecords:     header.NumRecords,
		RecordDuration: header.RecordDuration,
	}, nil
}

// EDFSource yields the physical samples of one channel, record by record.
type EDFSource struct {
	file    *os.File
	reader  *bufio.Reader
	header  *Header
	channel int

	recordBuf []byte
	before    int
	pending   []float64
	records   int

	closeOnce sync.Once
	closeErr  error
}

// OpenEDF opens path and selects channel (empty for the first signal).
func OpenEDF(path, channel string) (*EDFSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open edf: %w", err)
	}
	reader := bufio.NewReader(f)
	header, err := ReadHeader(reader)
	if err != nil {
		f.Close()
		return nil, err
	}
	idx, err := header.ChannelIndex(channel)
	if err != nil {
		f.Close()
		return nil, err
	}

	total, before := 0, 0
	for i, s := range header.Signals {
		if i < idx {
			before += s.SamplesPerRecord
		}
		total += s.SamplesPerRecord
	}
	if header.Signals[idx].SamplesPerRecord <= 0 {
		f.Close()
		return nil, fmt.Errorf("channel '%s' has no samples", header.Signals[idx].Label)
	}

	return &EDFSource{
		file:      f,
		reader:    reader,
		header:    header,
		channel:   idx,
		recordBuf: make([]byte, total*2),
		before:    before * 2,
	}, nil
}

// Header returns the parsed header.
func (s *EDFSource) Header() *Header { return s.header }

// Rate returns the selected channel's sampling rate in Hz.
func (s *EDFSource) Rate() float64 { return s.header.SamplingRate(s.channel) }

// Label returns the selected channel label.
func (s *EDFSource) Label() string { return s.header.Signals[s.channel].Label }

// Next returns the next physical sample, or ErrSourceExhausted at the end.
func (s *EDFSource) Next() (float64, error) {
	if len(s.pending) == 0 {
		if err := s.readRecord(); err != nil {
			return 0, err
		}
	}
	v := s.pending[0]
	s.pending = s.pending[1:]
	return v, nil
}

func (s *EDFSource) readRecord() error {
	if s.header.NumRecords >= 0 && s.records >= s.header.NumRecords {
		return ErrSourceExhausted
	}
	if _, err := io.ReadFull(s.reader, s.recordBuf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrSourceExhausted
		}
		return fmt.Errorf("read edf record %d: %w", s.records, err)
	}
	s.records++

	sig := s.header.Signals[s.channel]
	scale, offset := sig.Scale(), sig.Offset()
	raw := s.recordBuf[s.before : s.before+sig.SamplesPerRecord*2]
	samples := make([]float64, sig.SamplesPerRecord)
	for i := range samples {
		digital := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		samples[i] = scale*float64(digital) + offset
	}
	s.pending = samples
	return nil
}

// Close releases the file.
func (s *EDFSource) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.file.Close()
	})
	return s.closeErr
}

// ErrNoEDFFiles is returned by FindEDF when dir holds no recordings.
var ErrNoEDFFiles = errors.New("no EDF files found in sessions folder")

// FindEDF returns the most recently modified .edf file in dir.
func FindEDF(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read sessions folder: %w", err)
	}
	var (
		newest   string
		newestAt int64
	)
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".edf") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if mod := info.ModTime().UnixNano(); newest == "" || mod > newestAt {
			newest, newestAt = entry.Name(), mod
		}
	}
	if newest == "" {
		return "", ErrNoEDFFiles
	}
	return filepath.Join(dir, newest), nil
}

// SliceSource serves samples from memory.
type SliceSource struct {
	samples []float64
	rate    float64
	pos     int
	closed  bool
}

// NewSliceSource returns a source over samples at rate Hz.
func NewSliceSource(samples []float64, rate float64) *SliceSource {
	return &SliceSource{samples: samples, rate: rate}
}

func (s *SliceSource) Next() (float64, error) {
	if s.closed || s.pos >= len(s.samples) {
		return 0, ErrSourceExhausted
	}
	v := s.samples[s.pos]
	s.pos++
	return v, nil
}

func (s *SliceSource) Rate() float64 { return s.rate }

func (s *SliceSource) Close() error {
	s.closed = true
	return nil
}
