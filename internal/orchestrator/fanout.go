package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"datacenter/internal/api"
	"datacenter/internal/mcpserver"
	"datacenter/pkg/logging"

	"github.com/google/uuid"
)

// ErrInvalidQuery is wrapped by every CrossSourceCall validation failure.
var ErrInvalidQuery = errors.New("invalid cross-source query")

// CrossSourceQuery describes one tool call fanned out to several sources.
type CrossSourceQuery struct {
	// Tool is the tool to invoke on every target. Required.
	Tool string

	// Args are passed unchanged to every target.
	Args map[string]any

	// Targets are data source names. Empty means every enabled source.
	Targets []string

	// Strategy defaults to api.CollectAll.
	Strategy api.Strategy

	// Timeout bounds the whole call. Zero means management.fanout_timeout.
	Timeout time.Duration
}

type branch struct {
	name string
	proc *mcpserver.WorkerProcess
}

// CrossSourceCall invokes q.Tool on every target concurrently and reports
// the outcome per target. Targets that are unknown, not Connected, or do not
// advertise the tool are reported without being called.
//
// With api.CollectAll every branch runs to completion or until the timeout.
// With api.FirstSuccess the call returns on the first successful branch and
// cancels the others; the result holds the winner and the failures that
// were already known.
//
// The returned error is non-nil only when the query itself is invalid.
func (o *Orchestrator) CrossSourceCall(ctx context.Context, q CrossSourceQuery) (map[string]api.CallResult, error) {
	if q.Tool == "" {
		return nil, fmt.Errorf("%w: tool name is required", ErrInvalidQuery)
	}
	if q.Strategy == "" {
		q.Strategy = api.CollectAll
	}
	if !q.Strategy.Valid() {
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidQuery, q.Strategy)
	}
	if q.Timeout <= 0 {
		q.Timeout = o.management().FanOutTimeout
	}

	targets := q.Targets
	if len(targets) == 0 {
		for _, ds := range o.config().EnabledDataSources() {
			targets = append(targets, ds.Name)
		}
	}

	supported := make(map[string]bool)
	for _, name := range o.registry.SourcesWithTool(q.Tool) {
		supported[name] = true
	}

	callID := uuid.NewString()
	results := make(map[string]api.CallResult, len(targets))
	var branches []branch
	seen := make(map[string]bool, len(targets))
	for _, name := range targets {
		if seen[name] {
			continue
		}
		seen[name] = true

		src, err := o.target(name)
		if err == nil && !supported[name] {
			err = &api.UnsupportedByTargetError{Source: name, Tool: q.Tool}
		}
		if err != nil {
			results[name] = api.CallResult{Source: name, Err: err}
			continue
		}
		branches = append(branches, branch{name: name, proc: src.proc})
	}

	logging.Debug("Orchestrator", "Cross-source call %s: %s on %d of %d targets (%s)",
		callID, q.Tool, len(branches), len(results)+len(branches), q.Strategy)
	if len(branches) == 0 {
		return results, nil
	}

	ctx, cancel := context.WithTimeout(ctx, q.Timeout)
	defer cancel()

	outcomes := make(chan api.CallResult, len(branches))
	for _, b := range branches {
		go func(b branch) {
			begin := time.Now()
			out, err := b.proc.CallTool(ctx, q.Tool, q.Args)
			outcomes <- api.CallResult{Source: b.name, Output: out, Err: err, Duration: time.Since(begin)}
		}(b)
	}

	for range branches {
		res := <-outcomes
		results[res.Source] = res
		if q.Strategy == api.FirstSuccess && res.OK() {
			logging.Debug("Orchestrator", "Cross-source call %s won by %s after %s", callID, res.Source, res.Duration)
			return results, nil
		}
	}
	return results, nil
}
