package tracee_test

import (
	"testing"

	"github.com/gwatch/gwatch/internal/trace/tracee"
)

func TestStatus_IsTrap(t *testing.T) {
	cases := []struct {
		status tracee.Status
		want   bool
	}{
		{tracee.Status{Kind: tracee.Stopped, Signal: 5}, true},
		{tracee.Status{Kind: tracee.Stopped, Signal: 2}, false},
		{tracee.Status{Kind: tracee.Exited, Signal: 5}, false},
		{tracee.Status{Kind: tracee.Signaled, Signal: 5}, false},
	}
	for _, c := range cases {
		if got := c.status.IsTrap(); got != c.want {
			t.Errorf("%+v.IsTrap() = %v, want %v", c.status, got, c.want)
		}
	}
}

func TestStatus_String(t *testing.T) {
	cases := []struct {
		status tracee.Status
		want   string
	}{
		{tracee.Status{Kind: tracee.Exited, Signal: 0}, "Exited(0)"},
		{tracee.Status{Kind: tracee.Signaled, Signal: 11}, "Signaled(11)"},
		{tracee.Status{Kind: tracee.Stopped, Signal: 5}, "Stopped(5)"},
	}
	for _, c := range cases {
		if got := c.status.String(); got != c.want {
			t.Errorf("String() = %q, want %q", got, c.want)
		}
	}
}

func TestControlError_Unwrap(t *testing.T) {
	inner := errTest("boom")
	err := &tracee.ControlError{Op: "PEEKDATA", Err: inner}
	if err.Unwrap() != inner {
		t.Errorf("Unwrap() did not return the wrapped error")
	}
	if err.Error() != "tracee: PEEKDATA: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
