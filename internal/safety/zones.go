// Package safety classifies ground positions against the monitor's near and
// far distance limits.
package safety

import (
	"fmt"

	"safetycam/internal/geometry"
)

// Zone is the proximity band a ground point falls in
type Zone int

const (
	ZoneUnknown Zone = iota
	// ZoneClose is at or inside D_close
	ZoneClose
	ZoneMonitored
	ZoneOutOfRange
)

func (z Zone) String() string {
	switch z {
	case ZoneClose:
		return "CLOSE"
	case ZoneMonitored:
		return "MONITORED"
	case ZoneOutOfRange:
		return "OUT OF RANGE"
	default:
		return "UNKNOWN"
	}
}

// Limits are the near and far thresholds in metres. Valid limits satisfy
// 0 < Close < Max; anything else classifies every point as ZoneUnknown.
type Limits struct {
	Close float64
	Max   float64
}

// Valid reports whether the limits are ordered and positive
func (l Limits) Valid() bool {
	return l.Close > 0 && l.Max > 0 && l.Close < l.Max
}

// Classify places g by its forward distance Z. Points behind the camera
// (Z <= 0) come from pixels above the horizon and are ZoneUnknown.
func (l Limits) Classify(g geometry.GroundPoint) Zone {
	if !l.Valid() || g.Z <= 0 {
		return ZoneUnknown
	}
	switch {
	case g.Z <= l.Close:
		return ZoneClose
	case g.Z <= l.Max:
		return ZoneMonitored
	default:
		return ZoneOutOfRange
	}
}

// Describe renders a one-line readout for the overlay and logs
func (l Limits) Describe(g geometry.GroundPoint) string {
	return fmt.Sprintf("%s Z=%.2fm X=%.2fm", l.Classify(g), g.Z, g.X)
}
