package onboard

import (
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/semver"
	"github.com/sirupsen/logrus"

	deverrors "github.com/cacticulturessecure/roombadrive/onboard/errors"
	"github.com/cacticulturessecure/roombadrive/onboard/gpio"
	"github.com/cacticulturessecure/roombadrive/onboard/hardware"
)

// CONFIG_REVISION constrains the wiring-harness revision a config may
// declare. Pin assignments from another harness revision must not drive
// this controller.
const CONFIG_REVISION = "~1.0.0"

// DriveCommand is one transient differential-drive request, consumed
// once by Apply.
type DriveCommand struct {
	LeftDuty       int
	LeftDirection  hardware.Direction
	RightDuty      int
	RightDirection hardware.Direction
}

func (c DriveCommand) String() string {
	return fmt.Sprintf("left %s %d%% / right %s %d%%",
		c.LeftDirection, c.LeftDuty, c.RightDirection, c.RightDuty)
}

// ChannelStatus is a point-in-time snapshot of one channel for the
// operator surface.
type ChannelStatus struct {
	Duty      int
	Direction hardware.Direction
}

type DriveStatus struct {
	Left    ChannelStatus
	Right   ChannelStatus
	Tripped bool
	Fault   deverrors.FaultKind
}

// DriveController maps DriveCommands onto the two motor channels. It is
// the sole writer of channel state: every mutation happens under its
// lock, one control cycle at a time, so an emergency stop is never left
// half-applied.
type DriveController struct {
	Left  *hardware.MotorChannel
	Right *hardware.MotorChannel

	Safety *SafetyMonitor

	lock            *sync.Mutex
	last            DriveCommand
	active          bool
	watchdog        *Watchdog
	watchdogTimeout time.Duration
	log             logrus.FieldLogger
}

func NewDriveController(config DriveConfig, port gpio.GPIO, log logrus.FieldLogger) (d *DriveController, err error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	if err = checkRevision(config.Revision); err != nil {
		return nil, err
	}
	if err = config.Validate(); err != nil {
		return nil, err
	}

	step := config.Limits.MaxStepPerCycle
	d = &DriveController{
		Left:   hardware.NewMotorChannel("left", config.Left.In1, config.Left.In2, config.Left.Enable, step, port, log),
		Right:  hardware.NewMotorChannel("right", config.Right.In1, config.Right.In2, config.Right.Enable, step, port, log),
		Safety: NewSafetyMonitor(log),
		lock:   new(sync.Mutex),
		log:    log,
	}

	return d, nil
}

func checkRevision(revision string) error {
	if revision == "" {
		// unversioned configs are allowed for bench work
		return nil
	}

	v, err := semver.NewVersion(revision)
	if err != nil {
		return fmt.Errorf("unable to parse config revision %q: %v", revision, err)
	}

	constraint, err := semver.NewConstraint(CONFIG_REVISION)
	if err != nil {
		return err
	}

	if !constraint.Check(v) {
		return fmt.Errorf("unable to use config revision %s - require %s", revision, CONFIG_REVISION)
	}
	return nil
}

// Apply validates and applies one DriveCommand. Out-of-range duty is
// rejected with no state change. While the safety monitor is tripped the
// command is replaced by an emergency stop on both channels. Direction
// is always written before speed so a ramping channel can never drive
// the wrong way.
func (d *DriveController) Apply(cmd DriveCommand) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	if cmd.LeftDuty < 0 || cmd.LeftDuty > 100 {
		return deverrors.CommandOutOfRangeError{Field: "left", Value: cmd.LeftDuty}
	}
	if cmd.RightDuty < 0 || cmd.RightDuty > 100 {
		return deverrors.CommandOutOfRangeError{Field: "right", Value: cmd.RightDuty}
	}

	if d.Safety.IsTripped() {
		d.haltChannels()
		return deverrors.SafetyTrippedError{Fault: d.Safety.Fault()}
	}

	if err := d.applyChannel(d.Left, cmd.LeftDirection, cmd.LeftDuty); err != nil {
		return err
	}
	if err := d.applyChannel(d.Right, cmd.RightDirection, cmd.RightDuty); err != nil {
		return err
	}

	d.last = cmd
	d.active = true
	d.kickWatchdog()
	return nil
}

// kickWatchdog arms the watchdog on the first accepted command and
// resets it on every one after. Callers must hold the lock.
func (d *DriveController) kickWatchdog() {
	if d.watchdogTimeout <= 0 {
		return
	}
	if d.watchdog == nil {
		d.watchdog = NewWatchdog(d.watchdogTimeout, d.ReportFault, d.log)
		return
	}
	d.watchdog.Kick()
}

func (d *DriveController) applyChannel(ch *hardware.MotorChannel, dir hardware.Direction, duty int) error {
	if err := ch.SetDirection(dir); err != nil {
		return d.escalate(err)
	}
	if _, err := ch.SetSpeed(duty); err != nil {
		return d.escalate(err)
	}
	return nil
}

// Tick advances one control cycle: each channel moves one slew step
// toward the last accepted command. A tripped monitor forces both
// channels to 0/brake within this same cycle.
func (d *DriveController) Tick() {
	d.lock.Lock()
	defer d.lock.Unlock()

	if d.Safety.IsTripped() {
		d.haltChannels()
		return
	}

	if !d.active {
		return
	}

	if _, err := d.Left.SetSpeed(d.last.LeftDuty); err != nil {
		d.escalate(err)
		return
	}
	if _, err := d.Right.SetSpeed(d.last.RightDuty); err != nil {
		d.escalate(err)
		return
	}

	if d.Left.Duty() == d.last.LeftDuty && d.Right.Duty() == d.last.RightDuty {
		d.active = false
	}
}

// Stop ramps both channels down to zero through the normal slew-limited
// path and leaves them coasting.
func (d *DriveController) Stop() error {
	return d.Apply(DriveCommand{
		LeftDirection:  hardware.Coast,
		RightDirection: hardware.Coast,
	})
}

// EmergencyStop trips the safety monitor on the operator's behalf and
// halts both channels immediately, bypassing slew limiting.
func (d *DriveController) EmergencyStop() {
	d.ReportFault(deverrors.FaultOperatorStop)
}

// ReportFault escalates a detected fault: the monitor trips and both
// channels are stopped as a single unit with respect to the control
// loop. A report against an already-tripped monitor changes nothing;
// the channels were stopped when the monitor tripped.
func (d *DriveController) ReportFault(kind deverrors.FaultKind) {
	if !d.Safety.ReportFault(kind) {
		return
	}

	d.lock.Lock()
	defer d.lock.Unlock()
	d.haltChannels()
}

// ClearFault resets the safety monitor. Channels stay at 0/brake until
// the next command.
func (d *DriveController) ClearFault() {
	d.Safety.Reset()
}

// StartWatchdog enables the command watchdog. It arms on the first
// accepted command rather than immediately, so an idle operator shell
// does not trip before anything has been driven.
func (d *DriveController) StartWatchdog(limits LimitConfig) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.watchdogTimeout = limits.WatchdogTimeout
}

// StopWatchdog disarms the watchdog, if armed.
func (d *DriveController) StopWatchdog() {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.watchdogTimeout = 0
	if d.watchdog == nil {
		return
	}
	d.watchdog.Stop()
	d.watchdog = nil
}

func (d *DriveController) Status() DriveStatus {
	d.lock.Lock()
	defer d.lock.Unlock()

	return DriveStatus{
		Left:    ChannelStatus{Duty: d.Left.Duty(), Direction: d.Left.Direction()},
		Right:   ChannelStatus{Duty: d.Right.Duty(), Direction: d.Right.Direction()},
		Tripped: d.Safety.IsTripped(),
		Fault:   d.Safety.Fault(),
	}
}

// haltChannels stops both channels. Callers must hold the lock so the
// stop is atomic at cycle granularity.
func (d *DriveController) haltChannels() {
	d.Left.EmergencyStop()
	d.Right.EmergencyStop()
	d.active = false
}

// escalate trips the monitor for any error carrying a fault kind, stops
// both channels and hands the original error back. Callers must hold
// the lock.
func (d *DriveController) escalate(err error) error {
	if fault, ok := err.(deverrors.Fault); ok {
		if d.Safety.ReportFault(fault.Kind()) {
			d.haltChannels()
		}
	}
	return err
}
