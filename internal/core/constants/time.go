package constants

import "time"

const (
	// Streaming cadences
	SnapshotInterval = 1 * time.Second
	SampleInterval   = 10 * time.Millisecond

	// Seconds of signal covered by one snapshot
	SnapshotWindowSeconds = 30.0

	// Change feed
	FetchTimeout         = 15 * time.Second
	ChannelHandshakeWait = 10 * time.Second
	DataRefreshInterval  = 30 * time.Second
)
