package logging

import "testing"

func TestNew(t *testing.T) {
	for _, debug := range []bool{false, true} {
		logger, err := New(debug, "test")
		if err != nil {
			t.Fatalf("New(%v) error = %v", debug, err)
		}
		if logger == nil {
			t.Fatalf("New(%v) returned nil logger", debug)
		}
		if got := logger.Core().Enabled(-1); got != debug {
			t.Errorf("debug level enabled = %v, want %v", got, debug)
		}
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) should return a logger")
	}
	logger, _ := New(false, "test")
	if OrNop(logger) != logger {
		t.Error("OrNop should return the given logger")
	}
}
