package onboard

import (
	"sync"

	"github.com/sirupsen/logrus"

	deverrors "github.com/cacticulturessecure/roombadrive/onboard/errors"
)

// SafetyMonitor latches the first reported fault. Once tripped it stays
// tripped until Reset is called deliberately; there is no automatic
// recovery, matching the physical requirement for a human-verified
// restart after a safety event.
type SafetyMonitor struct {
	mu    sync.Mutex
	fault deverrors.FaultKind
	log   logrus.FieldLogger
}

func NewSafetyMonitor(log logrus.FieldLogger) *SafetyMonitor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SafetyMonitor{log: log}
}

// ReportFault trips the monitor. The first report wins: repeats of the
// same or any other kind while tripped are logged and produce no further
// side effects. Returns true only when this call caused the trip.
func (s *SafetyMonitor) ReportFault(kind deverrors.FaultKind) bool {
	if kind == deverrors.FaultNone {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fault != deverrors.FaultNone {
		s.log.WithField("fault", kind.String()).Debug("fault reported while already tripped")
		return false
	}

	s.fault = kind
	s.log.WithField("fault", kind.String()).Warn("safety monitor tripped")
	return true
}

func (s *SafetyMonitor) IsTripped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault != deverrors.FaultNone
}

func (s *SafetyMonitor) Fault() deverrors.FaultKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault
}

// Reset clears the tripped state. Only an explicit operator action may
// call this.
func (s *SafetyMonitor) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fault == deverrors.FaultNone {
		return
	}

	s.log.WithField("fault", s.fault.String()).Info("safety monitor reset")
	s.fault = deverrors.FaultNone
}
