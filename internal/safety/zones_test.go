package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"safetycam/internal/geometry"
)

func TestClassify(t *testing.T) {
	l := Limits{Close: 1.5, Max: 6}
	cases := []struct {
		z    float64
		want Zone
	}{
		{-2, ZoneUnknown},
		{0, ZoneUnknown},
		{0.3, ZoneClose},
		{1.5, ZoneClose},
		{1.51, ZoneMonitored},
		{6, ZoneMonitored},
		{6.01, ZoneOutOfRange},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, l.Classify(geometry.GroundPoint{Z: c.z}), "Z=%g", c.z)
	}
}

func TestInvalidLimitsClassifyUnknown(t *testing.T) {
	for _, l := range []Limits{{}, {Close: 3, Max: 3}, {Close: 4, Max: 2}, {Close: -1, Max: 2}} {
		assert.False(t, l.Valid())
		assert.Equal(t, ZoneUnknown, l.Classify(geometry.GroundPoint{Z: 1}))
	}
}

func TestDescribe(t *testing.T) {
	l := Limits{Close: 2, Max: 5}
	assert.Equal(t, "MONITORED Z=2.40m X=0.36m", l.Describe(geometry.GroundPoint{X: 0.36, Z: 2.4}))
}
