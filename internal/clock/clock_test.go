package clock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/npresenced/npresenced/internal/lookup"
)

func TestNow_Monotonic(t *testing.T) {
	c := New()
	a := c.Now()
	time.Sleep(1100 * time.Millisecond)
	b := c.Now()
	if b <= a {
		t.Errorf("expected Now() to advance, got a=%d b=%d", a, b)
	}
}

func TestCalibrate_SetsTProbe(t *testing.T) {
	// Inject an always-absent probe so calibration runs without touching a
	// real radio. The probe returns at once, so the measured time is under
	// a second and Calibrate must clamp TProbe to at least 1 second.
	l := lookup.NewFunc(func(ctx context.Context, mac string) ([]byte, error) {
		return nil, errors.New("absent")
	})
	TProbe = 0
	Calibrate(context.Background(), l)
	if TProbe < 1 {
		t.Errorf("expected TProbe >= 1 after calibration, got %d", TProbe)
	}
}
