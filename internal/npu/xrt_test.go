package npu

import (
	"errors"
	"testing"
)

func TestOpenXRTUnavailable(t *testing.T) {
	if _, err := OpenXRT(0); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
}
