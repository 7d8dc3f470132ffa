// Package metrics keeps the rolling history of request performance samples
// that the response-time and error-rate checks read.
package metrics

import (
	"sync"
	"time"
)

// Sample is a single recorded request.
type Sample struct {
	Endpoint     string        `json:"endpoint"`
	ResponseTime time.Duration `json:"response_time"`
	StatusCode   int           `json:"status_code"`
	Timestamp    time.Time     `json:"timestamp"`
}

// IsError reports whether the sample counts toward the error rate.
func (s Sample) IsError() bool {
	return s.StatusCode >= 400
}

// IsServerError reports a 5xx response.
func (s Sample) IsServerError() bool {
	return s.StatusCode >= 500
}

// Store is an append-only sample history that trims itself back to the most
// recent trimTo entries once it grows past maxSamples. It is safe for
// concurrent use.
type Store struct {
	mu         sync.RWMutex
	samples    []Sample
	maxSamples int
	trimTo     int
	now        func() time.Time
}

// NewStore creates a sample store.
func NewStore(maxSamples, trimTo int) *Store {
	if maxSamples <= 0 {
		maxSamples = 2000
	}
	if trimTo <= 0 || trimTo > maxSamples {
		trimTo = maxSamples / 2
	}
	return &Store{
		maxSamples: maxSamples,
		trimTo:     trimTo,
		now:        time.Now,
	}
}

// Record appends a sample.
func (s *Store) Record(endpoint string, responseTime time.Duration, statusCode int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, Sample{
		Endpoint:     endpoint,
		ResponseTime: responseTime,
		StatusCode:   statusCode,
		Timestamp:    s.now(),
	})

	if len(s.samples) > s.maxSamples {
		s.keepLastLocked(s.trimTo)
	}
}

// Len returns the number of retained samples.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

// Recent returns a copy of the last n samples, oldest first.
func (s *Store) Recent(n int) []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > len(s.samples) {
		n = len(s.samples)
	}
	out := make([]Sample, n)
	copy(out, s.samples[len(s.samples)-n:])
	return out
}

// RecentErrors returns up to n of the most recent samples with status >= 400,
// oldest first.
func (s *Store) RecentErrors(n int) []Sample {
	return s.recentMatching(n, Sample.IsError)
}

// RecentServerErrors returns up to n of the most recent 5xx samples.
func (s *Store) RecentServerErrors(n int) []Sample {
	return s.recentMatching(n, Sample.IsServerError)
}

func (s *Store) recentMatching(n int, match func(Sample) bool) []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Sample
	for i := len(s.samples) - 1; i >= 0 && len(out) < n; i-- {
		if match(s.samples[i]) {
			out = append(out, s.samples[i])
		}
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// AverageResponseTime returns the mean response time over the last n
// samples and how many samples it covered.
func (s *Store) AverageResponseTime(n int) (time.Duration, int) {
	recent := s.Recent(n)
	if len(recent) == 0 {
		return 0, 0
	}

	var total time.Duration
	for _, sample := range recent {
		total += sample.ResponseTime
	}
	return total / time.Duration(len(recent)), len(recent)
}

// ErrorRate returns the share of error responses over the last n samples
// and how many samples it covered.
func (s *Store) ErrorRate(n int) (float64, int) {
	recent := s.Recent(n)
	if len(recent) == 0 {
		return 0, 0
	}

	errors := 0
	for _, sample := range recent {
		if sample.IsError() {
			errors++
		}
	}
	return float64(errors) / float64(len(recent)), len(recent)
}

// Trim keeps only the last keep samples and returns how many were removed.
func (s *Store) Trim(keep int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keepLastLocked(keep)
}

// TrimIfOver trims to the last keep samples only when more than limit are
// retained.
func (s *Store) TrimIfOver(limit, keep int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.samples) <= limit {
		return 0
	}
	return s.keepLastLocked(keep)
}

func (s *Store) keepLastLocked(keep int) int {
	if keep < 0 {
		keep = 0
	}
	removed := len(s.samples) - keep
	if removed <= 0 {
		return 0
	}

	// Copy into a fresh slice so the trimmed prefix can be collected.
	kept := make([]Sample, keep, max(keep, s.trimTo))
	copy(kept, s.samples[removed:])
	s.samples = kept
	return removed
}
