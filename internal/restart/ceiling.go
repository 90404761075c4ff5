package restart

import "github.com/specialistvlad/asegrid/internal/config"

// Ceiling decides whether another attempt may start. The controller asks
// before every attempt, including the first.
type Ceiling interface {
	Allow(job *config.Job, attempts int) bool
}

// CeilingFunc adapts a function to the Ceiling interface.
type CeilingFunc func(job *config.Job, attempts int) bool

func (f CeilingFunc) Allow(job *config.Job, attempts int) bool { return f(job, attempts) }

// PerJob honors each job's MaxAttempts, further capped by Max when it is
// positive.
type PerJob struct {
	Max int
}

func (p PerJob) Allow(job *config.Job, attempts int) bool {
	if p.Max > 0 && attempts >= p.Max {
		return false
	}
	return attempts < job.MaxAttempts
}
