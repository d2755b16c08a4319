package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tonylturner/enipctl/internal/errors"
)

func TestMetricsSummary(t *testing.T) {
	sink := NewSink()
	sink.Record(Metric{Operation: OperationRead, TargetName: "counter", Success: true, RTTMs: 5, JitterMs: 1})
	sink.Record(Metric{Operation: OperationRead, TargetName: "counter", Success: true, RTTMs: 10, JitterMs: 2})
	sink.Record(Metric{Operation: OperationWrite, TargetName: "setpoint"}.FromError(fmt.Errorf("write: %w", errors.ErrTimeout)))

	summary := sink.GetSummary()
	if summary.TotalOperations != 3 {
		t.Fatalf("expected total ops 3, got %d", summary.TotalOperations)
	}
	if summary.SuccessfulOps != 2 || summary.FailedOps != 1 {
		t.Fatalf("unexpected success/fail counts: %d/%d", summary.SuccessfulOps, summary.FailedOps)
	}
	if summary.TimeoutCount != 1 {
		t.Fatalf("expected timeout count 1, got %d", summary.TimeoutCount)
	}
	if summary.MinRTT != 5 || summary.MaxRTT != 10 || summary.AvgRTT != 7.5 {
		t.Fatalf("RTT min/max/avg = %v/%v/%v", summary.MinRTT, summary.MaxRTT, summary.AvgRTT)
	}
	if summary.P50RTT != 5 || summary.P90RTT != 10 {
		t.Fatalf("percentiles = %v/%v", summary.P50RTT, summary.P90RTT)
	}
	if summary.AvgJitter != 1.5 || summary.MaxJitter != 2 {
		t.Fatalf("jitter avg/max = %v/%v", summary.AvgJitter, summary.MaxJitter)
	}

	read := summary.RTTByOperation[OperationRead]
	if read == nil || read.Count != 2 || read.Success != 2 {
		t.Fatalf("read stats = %+v", read)
	}
	write := summary.RTTByOperation[OperationWrite]
	if write == nil || write.Failed != 1 {
		t.Fatalf("write stats = %+v", write)
	}

	// The returned summary is a copy.
	read.Count = 99
	if sink.GetSummary().RTTByOperation[OperationRead].Count != 2 {
		t.Fatal("GetSummary must not expose internal state")
	}
}

func TestNilSinkRecord(t *testing.T) {
	var sink *Sink
	sink.Record(Metric{Operation: OperationRead})
}

func TestFormatSummary(t *testing.T) {
	sink := NewSink()
	if got := FormatSummary(sink.GetSummary()); got != "Total Operations: 0\n" {
		t.Errorf("empty summary = %q", got)
	}

	sink.Record(Metric{Operation: OperationForwardOpen, Success: true, RTTMs: 2})
	sink.Record(Metric{Operation: OperationRead, Success: true, RTTMs: 1.5})
	out := FormatSummary(sink.GetSummary())
	for _, want := range []string{"Total Operations: 2", "FORWARD_OPEN: 1 ops", "READ: 1 ops", "1-5ms=2"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "FORWARD_OPEN") > strings.Index(out, "READ:") {
		t.Error("operations should be sorted")
	}
}

func TestWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.csv")
	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	if err := w.WriteMetric(Metric{Operation: OperationRead, TargetName: "counter", ServiceCode: "0x4C", Success: true, RTTMs: 1.25}); err != nil {
		t.Fatalf("WriteMetric() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read CSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "timestamp,operation,target_name") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "READ,counter,0x4C,true,1.250") {
		t.Errorf("row = %q", lines[1])
	}
}
