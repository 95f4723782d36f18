/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package replay

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/vasayxtx/go-glob"
	"go.uber.org/atomic"

	"github.com/acronis/go-appkit/log"

	"github.com/acronis/go-lrucache/lrucache"
)

const absentValue = "<absent>"

// RunnerOpts represents options for Runner.
type RunnerOpts struct {
	// Concurrency is the maximum number of scenarios executed at the same time.
	// Values less than 1 mean 1.
	Concurrency int

	// Filters are glob patterns (e.g. "capacity-*") matched against scenario names.
	// If not empty, only matching scenarios are executed, others are reported as skipped.
	Filters []string
}

// Runner executes scenarios.
// Every scenario gets its own cache that is owned by a single goroutine for the whole run,
// so the caches are never accessed concurrently.
type Runner struct {
	logger      log.FieldLogger
	concurrency int
	filters     []func(s string) bool
}

// NewRunner creates a new Runner.
func NewRunner(logger log.FieldLogger, opts RunnerOpts) *Runner {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	filters := make([]func(s string) bool, 0, len(opts.Filters))
	for _, pattern := range opts.Filters {
		filters = append(filters, glob.Compile(pattern))
	}
	return &Runner{logger: logger, concurrency: opts.Concurrency, filters: filters}
}

// Failure describes a step whose outcome differs from the expected one.
type Failure struct {
	Scenario string
	Step     int // 1-based
	Op       Op
	Key      string
	Expected string
	Actual   string
}

func (f Failure) String() string {
	switch f.Op {
	case OpSet, OpGet:
		return fmt.Sprintf("%s: step %d (%s %q): expected %s, got %s", f.Scenario, f.Step, f.Op, f.Key, f.Expected, f.Actual)
	default:
		return fmt.Sprintf("%s: step %d (%s): expected %s, got %s", f.Scenario, f.Step, f.Op, f.Expected, f.Actual)
	}
}

// Report is a result of the run.
type Report struct {
	RunID    string
	Passed   int
	Failed   int
	Skipped  int
	Failures []Failure
}

// OK returns true if no scenario failed.
func (r *Report) OK() bool {
	return r.Failed == 0
}

// Run validates and executes scenarios.
// If the context is canceled before all selected scenarios are started, no new scenarios are started
// and the context error is returned once the running ones have finished.
// A cancellation that comes after the last scenario has been started doesn't discard the report.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) (*Report, error) {
	for i := range scenarios {
		if err := scenarios[i].Validate(); err != nil {
			return nil, err
		}
	}

	report := &Report{RunID: xid.New().String()}
	logger := r.logger.With(log.String("run_id", report.RunID))

	selected := make([]*Scenario, 0, len(scenarios))
	for i := range scenarios {
		if !r.matches(scenarios[i].Name) {
			logger.Debug("scenario skipped", log.String("scenario", scenarios[i].Name))
			report.Skipped++
			continue
		}
		selected = append(selected, &scenarios[i])
	}

	var passed, failed atomic.Int32
	results := make([][]Failure, len(selected))
	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	scheduled := 0

loop:
	for i := range selected {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break loop
		case sem <- struct{}{}:
		}
		scheduled++
		wg.Add(1)
		go func(i int) {
			defer func() {
				<-sem
				wg.Done()
			}()
			results[i] = runScenario(selected[i], logger)
			if len(results[i]) == 0 {
				passed.Inc()
			} else {
				failed.Inc()
			}
		}(i)
	}
	wg.Wait()

	if scheduled < len(selected) {
		err := ctx.Err()
		logger.Warn("replay interrupted", log.Error(err),
			log.Int("scheduled", scheduled), log.Int("selected", len(selected)))
		return nil, err
	}

	report.Passed = int(passed.Load())
	report.Failed = int(failed.Load())
	for _, failures := range results {
		report.Failures = append(report.Failures, failures...)
	}
	logger.Info("replay finished",
		log.Int("passed", report.Passed), log.Int("failed", report.Failed), log.Int("skipped", report.Skipped))
	return report, nil
}

func (r *Runner) matches(name string) bool {
	if len(r.filters) == 0 {
		return true
	}
	for _, match := range r.filters {
		if match(name) {
			return true
		}
	}
	return false
}

func runScenario(s *Scenario, logger log.FieldLogger) []Failure {
	logger = logger.With(log.String("scenario", s.Name))
	startedAt := time.Now()

	cache, err := lrucache.NewWithOpts[string](s.Capacity, lrucache.Options[string]{
		OnEvicted: func(key string, _ string) {
			logger.Debug("entry evicted", log.String("key", key))
		},
	})
	if err != nil {
		// Capacity is checked by Validate.
		panic(err)
	}

	var failures []Failure
	for i := range s.Steps {
		if f, failed := runStep(cache, &s.Steps[i]); failed {
			f.Scenario, f.Step = s.Name, i+1
			logger.Warn("step failed", log.Int("step", f.Step), log.String("op", string(f.Op)),
				log.String("key", f.Key), log.String("expected", f.Expected), log.String("actual", f.Actual))
			failures = append(failures, f)
		}
	}

	fields := []log.Field{
		log.Int("steps", len(s.Steps)), log.Int("capacity", s.Capacity), log.Duration("duration", time.Since(startedAt)),
	}
	if len(failures) != 0 {
		logger.Error("scenario failed", append(fields, log.Int("failures", len(failures)))...)
		return failures
	}
	logger.Info("scenario passed", fields...)
	return nil
}

func runStep(cache *lrucache.LRUCache[string], st *Step) (f Failure, failed bool) {
	key := st.KeyString()
	f = Failure{Op: st.Op, Key: key}
	switch st.Op {
	case OpSet:
		cache.Set(key, st.Value)
		return f, false

	case OpGet:
		val, ok := cache.Get(key)
		actual := absentValue
		if ok {
			actual = fmt.Sprintf("%q", val)
		}
		expected := absentValue
		if st.Want != nil {
			expected = fmt.Sprintf("%q", *st.Want)
		}
		f.Expected, f.Actual = expected, actual
		return f, expected != actual

	case OpCount:
		f.Expected, f.Actual = fmt.Sprint(*st.Count), fmt.Sprint(cache.Count())
		return f, f.Expected != f.Actual

	case OpKeys:
		f.Expected, f.Actual = formatKeys(st.Keys), formatKeys(cache.Keys())
		return f, f.Expected != f.Actual
	}
	return f, false
}

func formatKeys(keys []string) string {
	quoted := make([]string, len(keys))
	for i := range keys {
		quoted[i] = fmt.Sprintf("%q", keys[i])
	}
	return "[" + strings.Join(quoted, " ") + "]"
}
