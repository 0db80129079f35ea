package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
)

// Checker probes one dependency. A nil error means healthy.
type Checker func(ctx context.Context) error

type HealthReport struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

func (r HealthReport) Healthy() bool {
	return r.Status == HealthStatusOK
}

// HealthService runs every registered checker concurrently with a shared timeout.
type HealthService struct {
	checkers map[string]Checker
	timeout  time.Duration
}

func NewHealthService(timeout time.Duration) *HealthService {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthService{checkers: make(map[string]Checker), timeout: timeout}
}

// Register adds a named dependency check. Not safe to call concurrently with Check.
func (h *HealthService) Register(name string, c Checker) {
	h.checkers[name] = c
}

func (h *HealthService) Names() []string {
	names := make([]string, 0, len(h.checkers))
	for n := range h.checkers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (h *HealthService) Check(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	report := HealthReport{Status: HealthStatusOK, Components: make(map[string]string, len(h.checkers))}

	// Checkers report through the map and always return nil so one failure
	// never cuts the others short.
	var mu sync.Mutex
	var g errgroup.Group
	for name, check := range h.checkers {
		g.Go(func() error {
			status := HealthStatusOK
			if err := check(ctx); err != nil {
				status = "error: " + err.Error()
			}
			mu.Lock()
			report.Components[name] = status
			if status != HealthStatusOK {
				report.Status = HealthStatusDegraded
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return report
}
