package brain

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"verdict.app/engine/internal/model"
)

type RunStatus string

const (
	StatusPending           RunStatus = "PENDING"
	StatusRunning           RunStatus = "RUNNING"
	StatusAwaitingSynthesis RunStatus = "AWAITING_SYNTHESIS"
	StatusDone              RunStatus = "DONE"
	StatusErrored           RunStatus = "ERRORED"
)

var transitions = map[RunStatus][]RunStatus{
	StatusPending:           {StatusRunning},
	StatusRunning:           {StatusAwaitingSynthesis},
	StatusAwaitingSynthesis: {StatusDone, StatusErrored},
}

func (s RunStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusErrored
}

var (
	ErrMissingReports    = errors.New("missing reports")
	ErrSlotFilled        = errors.New("report slot already filled")
	ErrInvalidTransition = errors.New("invalid run state transition")
)

// PeerReports is the read side of a run that analysis tasks see.
type PeerReports interface {
	Report(kind model.ReportKind) (*model.AnalysisReport, bool)
}

// RunState is one submission's aggregate. Report slots are write-once;
// after the barrier the state is read-only until sealed.
type RunState struct {
	Idea model.Idea

	mu         sync.RWMutex
	status     RunStatus
	reports    map[model.ReportKind]*model.AnalysisReport
	executions map[model.ReportKind]model.AgentExecution
	verdict    *model.Verdict
	err        error
	startedAt  time.Time
	finishedAt time.Time
	done       chan struct{}
}

func NewRunState(idea model.Idea) *RunState {
	return &RunState{
		Idea:       idea,
		status:     StatusPending,
		reports:    make(map[model.ReportKind]*model.AnalysisReport, len(model.AllReportKinds)),
		executions: make(map[model.ReportKind]model.AgentExecution, len(model.AllReportKinds)),
		done:       make(chan struct{}),
	}
}

func (s *RunState) Status() RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Report is a best-effort snapshot read of one slot.
func (s *RunState) Report(kind model.ReportKind) (*model.AnalysisReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[kind]
	return r, ok
}

// Reports returns a copy of the filled slots.
func (s *RunState) Reports() map[model.ReportKind]*model.AnalysisReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.ReportKind]*model.AnalysisReport, len(s.reports))
	for k, r := range s.reports {
		out[k] = r
	}
	return out
}

// Missing lists the kinds without a report, in canonical order.
func (s *RunState) Missing() []model.ReportKind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var missing []model.ReportKind
	for _, k := range model.AllReportKinds {
		if _, ok := s.reports[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

// Executions returns the per-task records in canonical order.
func (s *RunState) Executions() []model.AgentExecution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AgentExecution, 0, len(s.executions))
	for _, k := range model.AllReportKinds {
		if e, ok := s.executions[k]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Verdict returns the sealed verdict, if any.
func (s *RunState) Verdict() (model.Verdict, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.verdict == nil {
		return model.Verdict{}, false
	}
	return *s.verdict, true
}

// Err is the reason an ERROR verdict was sealed: ErrMissingReports or the
// synthesis failure. Nil for a regular verdict.
func (s *RunState) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Duration is the wall time from RUNNING to sealing.
func (s *RunState) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startedAt.IsZero() {
		return 0
	}
	end := s.finishedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.startedAt)
}

// Done is closed once the run is sealed.
func (s *RunState) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the run is sealed or ctx ends. The run itself keeps going
// when ctx ends.
func (s *RunState) Wait(ctx context.Context) (model.Verdict, error) {
	select {
	case <-s.done:
		v, _ := s.Verdict()
		return v, nil
	case <-ctx.Done():
		return model.Verdict{}, ctx.Err()
	}
}

func (s *RunState) transition(to RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(to)
}

func (s *RunState) transitionLocked(to RunStatus) error {
	if !slices.Contains(transitions[s.status], to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.status, to)
	}
	if to == StatusRunning {
		s.startedAt = time.Now()
	}
	s.status = to
	return nil
}

func (s *RunState) setReport(r *model.AnalysisReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning {
		return fmt.Errorf("writing %s report while %s: %w", r.Kind, s.status, ErrInvalidTransition)
	}
	if _, ok := s.reports[r.Kind]; ok {
		return fmt.Errorf("%s: %w", r.Kind, ErrSlotFilled)
	}
	s.reports[r.Kind] = r
	return nil
}

func (s *RunState) recordExecution(e model.AgentExecution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[e.Kind] = e
}

// seal stores the verdict, moves to a terminal status and releases waiters.
func (s *RunState) seal(v model.Verdict, to RunStatus, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(to); err != nil {
		return err
	}
	s.verdict = &v
	s.err = cause
	s.finishedAt = time.Now()
	close(s.done)
	return nil
}

// abort seals an ERRORED run from any non-terminal status, bypassing the
// transition table. It reports false when the run was already sealed.
func (s *RunState) abort(v model.Verdict, cause error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.IsTerminal() {
		return false
	}
	s.status = StatusErrored
	s.verdict = &v
	s.err = cause
	s.finishedAt = time.Now()
	close(s.done)
	return true
}
