package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	if Classify(CategoryTransport, "dial", nil) != nil {
		t.Fatal("Classify(nil) should be nil")
	}

	inner := fmt.Errorf("connection refused")
	err := Classify(CategoryTransport, "dial", inner)
	if !stderrors.Is(err, inner) {
		t.Error("classified error should unwrap to the inner error")
	}
	if got := err.Error(); got != "dial: transport: connection refused" {
		t.Errorf("Error() = %q", got)
	}
	if CategoryOf(err) != CategoryTransport {
		t.Errorf("CategoryOf() = %v", CategoryOf(err))
	}

	wrapped := fmt.Errorf("read tag: %w", err)
	if CategoryOf(wrapped) != CategoryTransport {
		t.Errorf("CategoryOf(wrapped) = %v", CategoryOf(wrapped))
	}
}

func TestCategoryOfSentinels(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"timeout", fmt.Errorf("read: %w", ErrTimeout), CategoryTimeout},
		{"cancelled", fmt.Errorf("read: %w", ErrCancelled), CategoryCancelled},
		{"not connected", ErrNotConnected, CategoryUnknown},
		{"plain", fmt.Errorf("boom"), CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategoryOf(tt.err); got != tt.want {
				t.Errorf("CategoryOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsTimeoutAndCancelled(t *testing.T) {
	if !IsTimeout(Classify(CategoryTimeout, "read", fmt.Errorf("no reply"))) {
		t.Error("classified timeout not detected")
	}
	if !IsTimeout(fmt.Errorf("x: %w", ErrTimeout)) {
		t.Error("wrapped ErrTimeout not detected")
	}
	if IsTimeout(ErrCancelled) {
		t.Error("ErrCancelled is not a timeout")
	}
	if !IsCancelled(ErrCancelled) {
		t.Error("ErrCancelled not detected")
	}
}

func TestCategoryString(t *testing.T) {
	if CategoryCIPStatus.String() != "cip_status" {
		t.Errorf("String() = %q", CategoryCIPStatus.String())
	}
	if Category(99).String() != "unknown" {
		t.Errorf("String() = %q", Category(99).String())
	}
}
