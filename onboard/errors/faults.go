package errors

import (
	"fmt"
	"time"
)

// FaultKind classifies safety faults. Anything other than FaultNone trips
// the safety monitor and keeps it tripped until an explicit reset.
type FaultKind int

const (
	FaultNone FaultKind = iota
	FaultOvercurrent
	FaultWiringMismatch
	FaultNoResponse
	FaultWatchdogTimeout
	FaultOperatorStop
)

func (k FaultKind) String() string {
	switch k {
	case FaultNone:
		return "none"
	case FaultOvercurrent:
		return "overcurrent"
	case FaultWiringMismatch:
		return "wiring mismatch"
	case FaultNoResponse:
		return "no response"
	case FaultWatchdogTimeout:
		return "watchdog timeout"
	case FaultOperatorStop:
		return "operator stop"
	}
	return fmt.Sprintf("unknown fault %d", int(k))
}

// Fault is implemented by every error that should escalate to the safety
// monitor. CommandOutOfRangeError deliberately does not implement it.
type Fault interface {
	error
	Kind() FaultKind
}

type WiringMismatchError struct {
	Channel string
	Pin     int
	Cause   error
}

func (e WiringMismatchError) Error() string {
	return fmt.Sprintf("wiring mismatch on channel %s pin %d: %v", e.Channel, e.Pin, e.Cause)
}

func (e WiringMismatchError) Kind() FaultKind { return FaultWiringMismatch }

func (e WiringMismatchError) Unwrap() error { return e.Cause }

type NoResponseError struct {
	Channel string
	Cause   error
}

func (e NoResponseError) Error() string {
	return fmt.Sprintf("no response from channel %s: %v", e.Channel, e.Cause)
}

func (e NoResponseError) Kind() FaultKind { return FaultNoResponse }

func (e NoResponseError) Unwrap() error { return e.Cause }

type OvercurrentError struct {
	Channel string
}

func (e OvercurrentError) Error() string {
	return fmt.Sprintf("overcurrent reported on channel %s", e.Channel)
}

func (e OvercurrentError) Kind() FaultKind { return FaultOvercurrent }

type WatchdogTimeoutError struct {
	Elapsed time.Duration
}

func (e WatchdogTimeoutError) Error() string {
	return fmt.Sprintf("no command applied for %s", e.Elapsed)
}

func (e WatchdogTimeoutError) Kind() FaultKind { return FaultWatchdogTimeout }

// CommandOutOfRangeError rejects a caller-supplied value outside [0,100].
// It is reported to the caller and never trips the safety monitor.
type CommandOutOfRangeError struct {
	Field string
	Value int
}

func (e CommandOutOfRangeError) Error() string {
	return fmt.Sprintf("%s duty %d outside range 0-100", e.Field, e.Value)
}

// SafetyTrippedError is returned for commands refused while the safety
// monitor is tripped.
type SafetyTrippedError struct {
	Fault FaultKind
}

func (e SafetyTrippedError) Error() string {
	return fmt.Sprintf("safety monitor tripped (%s); reset required", e.Fault)
}
