package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResourceTrackStopRecordsNonNegativeDuration(t *testing.T) {
	r := StartTrack("pass1")
	d := r.Stop()
	assert.GreaterOrEqual(t, d, time.Duration(0))
	assert.Equal(t, "pass1", r.Label)
}

func TestResourceTrackElapsedBeforeStopIsLive(t *testing.T) {
	r := StartTrack("pass2")
	assert.GreaterOrEqual(t, r.Elapsed(), time.Duration(0))
}
