package cron

import (
	"context"
	"fmt"
	"strings"
)

// Job is one maintenance task executed by the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds jobs by name in registration order. Names are unique.
type Registry struct {
	order  []string
	byName map[string]Job
}

// NewRegistry registers jobs in order, skipping nils.
func NewRegistry(jobs ...Job) (*Registry, error) {
	r := &Registry{byName: map[string]Job{}}
	for _, job := range jobs {
		if job == nil {
			continue
		}
		if err := r.Register(job); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(job Job) error {
	if job == nil {
		return fmt.Errorf("cron job required")
	}
	name := strings.TrimSpace(job.Name())
	if name == "" {
		return fmt.Errorf("cron job name required")
	}
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("cron job %q registered twice", name)
	}
	if r.byName == nil {
		r.byName = map[string]Job{}
	}
	r.byName[name] = job
	r.order = append(r.order, name)
	return nil
}

// Jobs returns the registered jobs in registration order.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, 0, len(r.order))
	for _, name := range r.order {
		jobs = append(jobs, r.byName[name])
	}
	return jobs
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Select narrows the registry to the comma-separated names in filter, keeping registration
// order. A blank filter keeps every job; an unknown name is an error.
func (r *Registry) Select(filter string) (*Registry, error) {
	if strings.TrimSpace(filter) == "" {
		return r, nil
	}
	wanted := map[string]bool{}
	for _, name := range strings.Split(filter, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := r.byName[name]; !ok {
			return nil, fmt.Errorf("unknown cron job %q (have %s)", name, strings.Join(r.order, ", "))
		}
		wanted[name] = true
	}
	selected := &Registry{byName: map[string]Job{}}
	for _, name := range r.order {
		if wanted[name] {
			selected.byName[name] = r.byName[name]
			selected.order = append(selected.order, name)
		}
	}
	return selected, nil
}
