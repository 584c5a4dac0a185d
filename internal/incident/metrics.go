package incident

import (
	"context"
	"time"
)

// Summary is the derived response/resolution view over a window of
// resolved incidents. Averages are nil when the window holds no
// resolved incidents.
type Summary struct {
	AvgResponseSeconds   *float64       `json:"avg_response_time_seconds"`
	AvgResolutionSeconds *float64       `json:"avg_resolution_time_seconds"`
	ResolvedCount        int            `json:"resolved_count"`
	SeverityCounts       map[string]int `json:"severity_counts"`
	StatusCounts         map[string]int `json:"status_counts"`
}

// WindowToday returns the default metrics cutoff: midnight UTC of the
// current day.
func WindowToday() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// Metrics computes the summary for incidents resolved at or after the
// cutoff. Deltas are whole seconds; negative deltas indicate a
// state-machine invariant violation upstream and are excluded from the
// averages rather than silently admitted.
func (s *Service) Metrics(ctx context.Context, cutoff time.Time) (*Summary, error) {
	resolved, err := s.store.ResolvedSince(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		ResolvedCount:  len(resolved),
		SeverityCounts: make(map[string]int),
		StatusCounts:   make(map[string]int),
	}

	var (
		responseTotal, resolutionTotal int64
		responseN, resolutionN         int
	)
	for _, inc := range resolved {
		if d, ok := wholeSeconds(inc.CreatedAt, inc.AcknowledgedAt); ok {
			responseTotal += d
			responseN++
		}
		if d, ok := wholeSeconds(inc.CreatedAt, inc.ResolvedAt); ok {
			resolutionTotal += d
			resolutionN++
		}
	}
	if responseN > 0 {
		avg := float64(responseTotal) / float64(responseN)
		sum.AvgResponseSeconds = &avg
	}
	if resolutionN > 0 {
		avg := float64(resolutionTotal) / float64(resolutionN)
		sum.AvgResolutionSeconds = &avg
	}

	all, err := s.store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, inc := range all {
		sum.SeverityCounts[string(inc.Severity)]++
		sum.StatusCounts[string(inc.Status)]++
	}

	return sum, nil
}

// wholeSeconds returns the delta from..to in whole seconds. ok is
// false when either bound is unset or the delta is negative.
func wholeSeconds(from, to time.Time) (int64, bool) {
	if from.IsZero() || to.IsZero() {
		return 0, false
	}
	d := to.Sub(from)
	if d < 0 {
		return 0, false
	}
	return int64(d / time.Second), true
}
