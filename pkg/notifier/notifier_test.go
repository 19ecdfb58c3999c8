package notifier

import (
	"errors"
	"testing"
	"time"

	"github.com/poltergeist/wraith/pkg/types"
)

type sent struct {
	title   string
	message string
}

func recording(n *RunNotifier) (*[]sent, *int) {
	var msgs []sent
	beeps := 0
	n.notify = func(title, message, _ string) error {
		msgs = append(msgs, sent{title, message})
		return nil
	}
	n.beep = func(float64, int) error {
		beeps++
		return nil
	}
	return &msgs, &beeps
}

func TestRunNotifier(t *testing.T) {
	n := New(types.NotificationOptions{Enabled: true, Sound: true}, nil)
	msgs, beeps := recording(n)

	n.NotifyRunStart("app")
	n.NotifyRunSuccess("app", 1500*time.Millisecond, 0)
	n.NotifyRunSuccess("app", 20*time.Millisecond, 3)
	n.NotifyRunFailure("app", errors.New("configuration: no files"))

	want := []sent{
		{"👻 wraith", "Building app..."},
		{"✅ Build Succeeded", "app built in 1.5s"},
		{"✅ Build Succeeded", "app built in 20ms (3 lint findings)"},
		{"❌ Build Failed", "app: configuration: no files"},
	}
	if len(*msgs) != len(want) {
		t.Fatalf("expected %d notifications, got %d", len(want), len(*msgs))
	}
	for i, w := range want {
		if (*msgs)[i] != w {
			t.Errorf("notification %d: expected %+v, got %+v", i, w, (*msgs)[i])
		}
	}
	if *beeps != 1 {
		t.Errorf("expected 1 beep for the failure, got %d", *beeps)
	}
}

func TestRunNotifier_Disabled(t *testing.T) {
	n := New(types.NotificationOptions{Enabled: false, Sound: true}, nil)
	msgs, beeps := recording(n)

	n.NotifyRunStart("app")
	n.NotifyRunSuccess("app", time.Second, 0)
	n.NotifyRunFailure("app", errors.New("boom"))

	if len(*msgs) != 0 || *beeps != 0 {
		t.Errorf("expected no notifications when disabled, got %d and %d beeps", len(*msgs), *beeps)
	}
}

func TestRunNotifier_SendErrorsAreSwallowed(t *testing.T) {
	n := New(types.NotificationOptions{Enabled: true}, nil)
	n.notify = func(string, string, string) error { return errors.New("no dbus") }
	n.NotifyRunFailure("app", errors.New("boom"))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{2500 * time.Millisecond, "2.5s"},
		{95 * time.Second, "1m35s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
