package cron

import (
	"context"
	"time"
)

// Job is one unit of scheduled work. Run must be safe to repeat: cadence is
// tracked per process, so two workers may each run a job once per window.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Entry pairs a job with how often it should run. A zero Every runs the job
// on every tick.
type Entry struct {
	Job   Job
	Every time.Duration
}

type Registry struct {
	entries []Entry
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(job Job, every time.Duration) {
	if job == nil {
		return
	}
	if every < 0 {
		every = 0
	}
	r.entries = append(r.entries, Entry{Job: job, Every: every})
}

// Entries returns a copy in registration order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
