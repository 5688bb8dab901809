package connector

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Job is a registered entry point.
type Job struct {
	Meta JobMeta
	Body Body
}

var (
	mu   sync.RWMutex
	jobs = map[string]Job{}
)

// Register adds a job. Registering a name twice panics; jobs register from
// init functions, so a duplicate is a programming error.
func Register(j Job) {
	mu.Lock()
	defer mu.Unlock()
	if j.Meta.Name == "" {
		panic("connector: job without a name")
	}
	if _, dup := jobs[j.Meta.Name]; dup {
		panic(fmt.Sprintf("connector: job %s registered twice", j.Meta.Name))
	}
	jobs[j.Meta.Name] = j
}

// Lookup returns the job registered under name.
func Lookup(name string) (Job, bool) {
	mu.RLock()
	defer mu.RUnlock()
	j, ok := jobs[name]
	return j, ok
}

// Jobs returns every registered job sorted by wave then name.
func Jobs() []Job {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Job, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].Meta.Wave != out[k].Meta.Wave {
			return out[i].Meta.Wave < out[k].Meta.Wave
		}
		return out[i].Meta.Name < out[k].Meta.Name
	})
	return out
}

// Run executes the named job on rt.
func (rt *Runtime) Run(ctx context.Context, name string, opts RunOptions) (Result, error) {
	j, ok := Lookup(name)
	if !ok {
		return Result{}, fmt.Errorf("unknown job %q", name)
	}
	return rt.Execute(ctx, j.Meta, opts, j.Body), nil
}
