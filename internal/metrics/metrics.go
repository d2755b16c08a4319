package metrics

// Metrics collection for controller requests

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/tonylturner/enipctl/internal/errors"
)

// OperationType represents the type of operation
type OperationType string

const (
	OperationRegisterSession OperationType = "REGISTER_SESSION"
	OperationForwardOpen     OperationType = "FORWARD_OPEN"
	OperationForwardClose    OperationType = "FORWARD_CLOSE"
	OperationRead            OperationType = "READ"
	OperationWrite           OperationType = "WRITE"
	OperationMultipleService OperationType = "MULTIPLE_SERVICE"
	OperationTagList         OperationType = "TAG_LIST"
	OperationTemplate        OperationType = "TEMPLATE"
	OperationScan            OperationType = "SCAN"
)

// Metric represents a single operation metric
type Metric struct {
	Timestamp   time.Time     `json:"timestamp"`
	Operation   OperationType `json:"operation"`
	TargetName  string        `json:"target_name"`
	ServiceCode string        `json:"service_code"`
	Success     bool          `json:"success"`
	RTTMs       float64       `json:"rtt_ms"`
	JitterMs    float64       `json:"jitter_ms,omitempty"`
	Status      uint8         `json:"status"`
	Error       string        `json:"error,omitempty"`
	Timeout     bool          `json:"timeout,omitempty"`
}

// FromError fills the failure fields of m from err.
func (m Metric) FromError(err error) Metric {
	if err == nil {
		m.Success = true
		return m
	}
	m.Success = false
	m.Error = err.Error()
	m.Timeout = errors.IsTimeout(err)
	return m
}

// Sink collects and aggregates metrics
type Sink struct {
	mu      sync.RWMutex
	metrics []Metric
	summary *Summary
}

func newSummary() *Summary {
	return &Summary{
		RTTBuckets:     make(map[string]int),
		RTTByOperation: make(map[OperationType]*OperationStats),
	}
}

// Summary contains aggregated statistics
type Summary struct {
	TotalOperations int
	SuccessfulOps   int
	FailedOps       int
	TimeoutCount    int
	MinRTT          float64
	MaxRTT          float64
	AvgRTT          float64
	P50RTT          float64
	P90RTT          float64
	P95RTT          float64
	P99RTT          float64
	MaxJitter       float64
	AvgJitter       float64
	jitterCount     int
	RTTBuckets      map[string]int
	RTTByOperation  map[OperationType]*OperationStats
}

// OperationStats contains statistics for a specific operation type
type OperationStats struct {
	Count   int
	Success int
	Failed  int
	MinRTT  float64
	MaxRTT  float64
	AvgRTT  float64
	SumRTT  float64
}

// NewSink creates a new metrics sink
func NewSink() *Sink {
	return &Sink{
		metrics: make([]Metric, 0),
		summary: newSummary(),
	}
}

// Record records a new metric. A nil sink drops it.
func (s *Sink) Record(m Metric) {
	if s == nil {
		return
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics = append(s.metrics, m)
	s.updateSummary(m)
}

// GetMetrics returns a copy of all recorded metrics
func (s *Sink) GetMetrics() []Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics := make([]Metric, len(s.metrics))
	copy(metrics, s.metrics)
	return metrics
}

// GetSummary returns the aggregated summary
func (s *Sink) GetSummary() *Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := *s.summary
	summary.RTTBuckets = make(map[string]int)
	summary.RTTByOperation = make(map[OperationType]*OperationStats, len(s.summary.RTTByOperation))
	for op, stats := range s.summary.RTTByOperation {
		cp := *stats
		summary.RTTByOperation[op] = &cp
	}

	percentiles, buckets := summarizeRTT(s.metrics)
	summary.P50RTT = percentiles[0]
	summary.P90RTT = percentiles[1]
	summary.P95RTT = percentiles[2]
	summary.P99RTT = percentiles[3]
	for k, v := range buckets {
		summary.RTTBuckets[k] = v
	}
	return &summary
}

// updateSummary updates the summary statistics with a new metric
func (s *Sink) updateSummary(m Metric) {
	s.summary.TotalOperations++

	if m.Success {
		s.summary.SuccessfulOps++
	} else {
		s.summary.FailedOps++
		if m.Timeout {
			s.summary.TimeoutCount++
		}
	}

	if m.JitterMs > 0 {
		if m.JitterMs > s.summary.MaxJitter {
			s.summary.MaxJitter = m.JitterMs
		}
		s.summary.jitterCount++
		total := s.summary.AvgJitter*float64(s.summary.jitterCount-1) + m.JitterMs
		s.summary.AvgJitter = total / float64(s.summary.jitterCount)
	}

	if m.Success && m.RTTMs > 0 {
		if s.summary.MinRTT == 0 || m.RTTMs < s.summary.MinRTT {
			s.summary.MinRTT = m.RTTMs
		}
		if m.RTTMs > s.summary.MaxRTT {
			s.summary.MaxRTT = m.RTTMs
		}
		totalRTT := s.summary.AvgRTT*float64(s.summary.SuccessfulOps-1) + m.RTTMs
		s.summary.AvgRTT = totalRTT / float64(s.summary.SuccessfulOps)
	}

	opStats, exists := s.summary.RTTByOperation[m.Operation]
	if !exists {
		opStats = &OperationStats{}
		s.summary.RTTByOperation[m.Operation] = opStats
	}
	opStats.Count++
	if !m.Success {
		opStats.Failed++
		return
	}
	opStats.Success++
	if m.RTTMs > 0 {
		if opStats.MinRTT == 0 || m.RTTMs < opStats.MinRTT {
			opStats.MinRTT = m.RTTMs
		}
		if m.RTTMs > opStats.MaxRTT {
			opStats.MaxRTT = m.RTTMs
		}
		opStats.SumRTT += m.RTTMs
		opStats.AvgRTT = opStats.SumRTT / float64(opStats.Success)
	}
}

func summarizeRTT(metrics []Metric) ([4]float64, map[string]int) {
	rtts := make([]float64, 0, len(metrics))
	buckets := make(map[string]int)
	for _, m := range metrics {
		if m.Success && m.RTTMs > 0 {
			rtts = append(rtts, m.RTTMs)
			incrementBucket(buckets, m.RTTMs)
		}
	}
	return computePercentiles(rtts), buckets
}

func incrementBucket(buckets map[string]int, value float64) {
	switch {
	case value < 1:
		buckets["lt_1ms"]++
	case value < 5:
		buckets["1_5ms"]++
	case value < 10:
		buckets["5_10ms"]++
	case value < 50:
		buckets["10_50ms"]++
	case value < 100:
		buckets["50_100ms"]++
	case value < 500:
		buckets["100_500ms"]++
	default:
		buckets["gt_500ms"]++
	}
}

func computePercentiles(values []float64) [4]float64 {
	var result [4]float64
	if len(values) == 0 {
		return result
	}
	sort.Float64s(values)
	result[0] = percentile(values, 0.50)
	result[1] = percentile(values, 0.90)
	result[2] = percentile(values, 0.95)
	result[3] = percentile(values, 0.99)
	return result
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
