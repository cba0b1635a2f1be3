package logging

import "testing"

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"LOG_EMERG":   Emerg,
		"LOG_WARNING": Warning,
		"LOG_DEBUG":   Debug,
	}
	for name, want := range cases {
		got, err := ParseLevel(name)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", name, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestParseLevel_Unknown(t *testing.T) {
	if _, err := ParseLevel("LOG_NOPE"); err == nil {
		t.Error("expected error for unknown level name")
	}
}

func TestNew_StdoutSink(t *testing.T) {
	l, err := New("stdout", Info)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Below-threshold levels must not panic or touch the syslog writer.
	l.Debugf("should be dropped, level below threshold")
	l.Infof("hello %s", "world")
}

func TestLevel_String(t *testing.T) {
	if Warning.String() != "WARNING" {
		t.Errorf("Warning.String() = %q", Warning.String())
	}
}
