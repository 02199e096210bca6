package normalizer

import (
	"time"

	"github.com/penwyp/podscope/internal/core/constants"
	"github.com/penwyp/podscope/internal/core/model"
	"github.com/penwyp/podscope/internal/util"
)

// Normalizer stamps points from one ingestion path with their provenance,
// default device and canonical timestamp.
type Normalizer struct {
	provenance    model.Provenance
	defaultDevice string
	timeProvider  *util.TimeProvider
}

// New returns a Normalizer for points arriving through provenance. An empty
// defaultDevice leaves device ids unset so views fall back to the sentinel.
func New(provenance model.Provenance, defaultDevice string, tp *util.TimeProvider) *Normalizer {
	if tp == nil {
		tp = util.GetTimeProvider()
	}
	return &Normalizer{
		provenance:    provenance,
		defaultDevice: defaultDevice,
		timeProvider:  tp,
	}
}

// ForPod normalizes blobs fetched from a pod resource.
func ForPod(tp *util.TimeProvider) *Normalizer {
	return New(model.ProvenancePodLive, constants.PodDeviceID, tp)
}

// ForCSV normalizes simulated CSV logs; their device ids come from the file.
func ForCSV(tp *util.TimeProvider) *Normalizer {
	return New(model.ProvenanceCsv, "", tp)
}

// ForBus normalizes message bus payloads.
func ForBus(tp *util.TimeProvider) *Normalizer {
	return New(model.ProvenanceMqtt, "", tp)
}

// Provenance reports the provenance this normalizer assigns.
func (n *Normalizer) Provenance() model.Provenance {
	return n.provenance
}

// Normalize returns normalized copies of points; inputs are not modified.
// Points that are inconsistent after normalization are dropped.
func (n *Normalizer) Normalize(points []model.Point) []model.Point {
	if len(points) == 0 {
		return nil
	}

	out := make([]model.Point, 0, len(points))
	for _, p := range points {
		p.Provenance = n.provenance
		if p.DeviceID == "" {
			p.DeviceID = n.defaultDevice
		}
		p.Timestamp = n.canonicalTimestamp(p)

		if err := p.Validate(); err != nil {
			util.LogWarn("Drop invalid point", util.F("error", err), util.F("provenance", n.provenance.String()))
			continue
		}
		out = append(out, p)
	}
	return out
}

func (n *Normalizer) canonicalTimestamp(p model.Point) time.Time {
	loc := n.timeProvider.Location()
	switch p.Kind {
	case model.KindRegister:
		if p.Register != nil && p.Register.AccessedUnixSeconds != nil {
			return time.Unix(*p.Register.AccessedUnixSeconds, 0).In(loc)
		}
	case model.KindSlider:
	}
	if p.Timestamp.IsZero() {
		return n.timeProvider.Now()
	}
	return p.Timestamp.In(loc)
}
