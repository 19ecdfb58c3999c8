// Package notifier sends desktop notifications for watch-mode runs
package notifier

import (
	"fmt"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/poltergeist/wraith/pkg/logger"
	"github.com/poltergeist/wraith/pkg/types"
)

// Notifier reports run outcomes
type Notifier interface {
	NotifyRunStart(project string)
	NotifyRunSuccess(project string, duration time.Duration, findings int)
	NotifyRunFailure(project string, err error)
}

// RunNotifier sends notifications through beeep
type RunNotifier struct {
	enabled bool
	sound   bool
	logger  logger.Logger

	notify func(title, message, icon string) error
	beep   func(freq float64, duration int) error
}

var _ Notifier = (*RunNotifier)(nil)

// New creates a notifier from the project's notification options
func New(opts types.NotificationOptions, log logger.Logger) *RunNotifier {
	if log == nil {
		log = logger.Nop()
	}
	return &RunNotifier{
		enabled: opts.Enabled,
		sound:   opts.Sound,
		logger:  log,
		notify:  func(title, message, icon string) error { return beeep.Notify(title, message, icon) },
		beep:    beeep.Beep,
	}
}

// NotifyRunStart announces a new run
func (n *RunNotifier) NotifyRunStart(project string) {
	if !n.enabled {
		return
	}
	n.send("👻 wraith", fmt.Sprintf("Building %s...", project), false)
}

// NotifyRunSuccess reports a successful run
func (n *RunNotifier) NotifyRunSuccess(project string, duration time.Duration, findings int) {
	if !n.enabled {
		return
	}
	message := fmt.Sprintf("%s built in %s", project, FormatDuration(duration))
	if findings > 0 {
		message += fmt.Sprintf(" (%d lint findings)", findings)
	}
	n.send("✅ Build Succeeded", message, false)
}

// NotifyRunFailure reports a failed run
func (n *RunNotifier) NotifyRunFailure(project string, err error) {
	if !n.enabled {
		return
	}
	n.send("❌ Build Failed", fmt.Sprintf("%s: %v", project, err), true)
}

func (n *RunNotifier) send(title, message string, alert bool) {
	if err := n.notify(title, message, ""); err != nil {
		n.logger.Debug("Failed to send notification", logger.WithError(err))
	}
	if alert && n.sound {
		if err := n.beep(beeep.DefaultFreq, beeep.DefaultDuration); err != nil {
			n.logger.Debug("Failed to play sound", logger.WithError(err))
		}
	}
}

// FormatDuration renders d for humans
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
