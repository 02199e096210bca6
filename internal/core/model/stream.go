package model

import (
	"io"
	"sync"
	"time"
)

// StreamCursor tracks progress of one streaming session over its sample source.
type StreamCursor struct {
	SampleIndex int64
	Source      io.Closer
	StartedAt   time.Time
	Done        bool

	releaseOnce sync.Once
	releaseErr  error
}

// NewStreamCursor starts a cursor at sample zero.
func NewStreamCursor(source io.Closer, startedAt time.Time) *StreamCursor {
	return &StreamCursor{
		Source:    source,
		StartedAt: startedAt,
	}
}

// Advance moves the cursor by n samples and returns the new index.
func (c *StreamCursor) Advance(n int) int64 {
	c.SampleIndex += int64(n)
	return c.SampleIndex
}

// Release marks the cursor done and closes the source exactly once.
func (c *StreamCursor) Release() error {
	c.releaseOnce.Do(func() {
		c.Done = true
		if c.Source != nil {
			c.releaseErr = c.Source.Close()
		}
	})
	return c.releaseErr
}

// StreamEvent is one message pushed to a streaming client. Exactly one shape
// is populated: error, done, sample (timestamp+value) or snapshot (image).
type StreamEvent struct {
	Error     string   `json:"error,omitempty"`
	Done      bool     `json:"done,omitempty"`
	Timestamp *float64 `json:"timestamp,omitempty"`
	Value     *float64 `json:"value,omitempty"`
	Image     string   `json:"image,omitempty"`

	// Snapshot metadata, ignored by clients that only read image.
	Stage      string             `json:"stage,omitempty"`
	BandPowers map[string]float64 `json:"band_powers,omitempty"`
}

// SampleEvent carries one raw sample; ts is seconds since the session started.
func SampleEvent(ts, value float64) StreamEvent {
	return StreamEvent{Timestamp: &ts, Value: &value}
}

// SnapshotEvent carries a rendered snapshot.
func SnapshotEvent(image, stage string, powers map[string]float64) StreamEvent {
	return StreamEvent{Image: image, Stage: stage, BandPowers: powers}
}

// DoneEvent signals normal exhaustion of the source.
func DoneEvent() StreamEvent {
	return StreamEvent{Done: true}
}

// ErrorEvent reports a producer fault in-band.
func ErrorEvent(err error) StreamEvent {
	return StreamEvent{Error: err.Error()}
}

// Terminal reports whether no event can follow this one.
func (e StreamEvent) Terminal() bool {
	return e.Done || e.Error != ""
}
