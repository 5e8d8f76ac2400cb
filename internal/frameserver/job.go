package frameserver

// renderJob asks a worker to composite one timeline frame.
type renderJob struct {
	frame    int64
	prefetch bool
	revision uint64 // layout revision at submission
	seq      uint64 // submission order
}

// lessJob orders jobs against the current target: closest frame first, then
// user requests before prefetch, then the most recent submission.
func lessJob(target int64, a, b renderJob) bool {
	da, db := distance(a.frame, target), distance(b.frame, target)
	if da != db {
		return da < db
	}
	if a.prefetch != b.prefetch {
		return !a.prefetch
	}
	return a.seq > b.seq
}

func distance(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
