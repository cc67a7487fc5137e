package engine

import "time"

// ResourceTrack accumulates elapsed wall-clock time for one pass, the
// Go equivalent of e2fsck's print_resource_track (util.c): the
// reference implementation also samples RSS and user/system CPU time
// via getrusage, but those numbers are process-accounting detail with
// no bearing on filesystem consistency, so only the wall-clock figure
// that actually gets surfaced to the operator is kept here.
type ResourceTrack struct {
	Label string
	start time.Time
	done  time.Duration
}

// StartTrack begins tracking a labeled span (typically one pass).
func StartTrack(label string) *ResourceTrack {
	return &ResourceTrack{Label: label, start: time.Now()}
}

// Stop finalizes the span and returns its elapsed duration.
func (r *ResourceTrack) Stop() time.Duration {
	r.done = time.Since(r.start)
	return r.done
}

// Elapsed returns the last stopped duration, or the running duration
// if Stop has not been called yet.
func (r *ResourceTrack) Elapsed() time.Duration {
	if r.done != 0 {
		return r.done
	}
	return time.Since(r.start)
}
