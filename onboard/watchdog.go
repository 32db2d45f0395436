package onboard

import (
	"time"

	"github.com/sirupsen/logrus"

	deverrors "github.com/cacticulturessecure/roombadrive/onboard/errors"
)

// Watchdog reports FaultWatchdogTimeout when no command has been applied
// within the timeout. The drive controller kicks it on every accepted
// command. It keeps running after firing; the safety monitor latches the
// first report anyway.
type Watchdog struct {
	timeout time.Duration
	kick    chan struct{}
	done    chan struct{}
	report  func(deverrors.FaultKind)
	log     logrus.FieldLogger
}

func NewWatchdog(timeout time.Duration, report func(deverrors.FaultKind), log logrus.FieldLogger) *Watchdog {
	if log == nil {
		log = logrus.StandardLogger()
	}

	w := &Watchdog{
		timeout: timeout,
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		report:  report,
		log:     log,
	}

	go w.run()
	return w
}

// Kick resets the timeout. Never blocks.
func (w *Watchdog) Kick() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Stop shuts the watchdog down. Safe to call once.
func (w *Watchdog) Stop() {
	close(w.done)
}

func (w *Watchdog) run() {
	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	for {
		select {
		case <-w.kick:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.timeout)

		case <-timer.C:
			w.log.WithField("timeout", w.timeout).Warn("watchdog expired without a command")
			w.report(deverrors.FaultWatchdogTimeout)
			timer.Reset(w.timeout)

		case <-w.done:
			return
		}
	}
}
