package onboard

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	deverrors "github.com/cacticulturessecure/roombadrive/onboard/errors"
	"github.com/cacticulturessecure/roombadrive/onboard/gpio"
	"github.com/cacticulturessecure/roombadrive/onboard/hardware"
)

const (
	StageConnectivity = "connectivity"
	StageIndividual   = "individual-motor"
	StageRamp         = "speed-ramp"
	StageCoordinated  = "coordinated"
)

// StageResult reports one validation stage.
type StageResult struct {
	Stage  string
	Passed bool
	Err    error
}

// TestSequencer runs the staged validation protocol. Stages are strictly
// ordered and fail-fast: a failing stage reports its fault to the safety
// monitor and nothing after it runs. Every motion goes through the
// DriveController, so the safety monitor intercepts stage commands the
// same way it intercepts operator commands.
type TestSequencer struct {
	drive  *DriveController
	port   gpio.GPIO
	limits LimitConfig

	// Cycle is the pause between control cycles while a stage drives a
	// motor. Zero runs the stages without real-time pacing, which is how
	// the simulated port is exercised.
	Cycle time.Duration

	log logrus.FieldLogger
}

func NewTestSequencer(drive *DriveController, port gpio.GPIO, limits LimitConfig, log logrus.FieldLogger) *TestSequencer {
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &TestSequencer{
		drive:  drive,
		port:   port,
		limits: limits,
		Cycle:  limits.ControlCycle,
		log:    log,
	}
}

// Stages returns the ordered stage names.
func (t *TestSequencer) Stages() []string {
	return []string{StageConnectivity, StageIndividual, StageRamp, StageCoordinated}
}

// Run executes every stage in order, stopping at the first failure.
func (t *TestSequencer) Run() []StageResult {
	var results []StageResult
	for _, stage := range t.Stages() {
		result := t.RunStage(stage)
		results = append(results, result)
		if !result.Passed {
			break
		}
	}
	return results
}

// RunStage executes a single stage by name. A tripped safety monitor
// refuses every stage: validation never spins a motor past a latched
// fault.
func (t *TestSequencer) RunStage(name string) StageResult {
	var fn func() error
	var faultKind deverrors.FaultKind

	switch name {
	case StageConnectivity:
		fn, faultKind = t.connectivity, deverrors.FaultWiringMismatch
	case StageIndividual:
		fn, faultKind = t.individualMotor, deverrors.FaultWiringMismatch
	case StageRamp:
		fn, faultKind = t.speedRamp, deverrors.FaultNoResponse
	case StageCoordinated:
		fn, faultKind = t.coordinated, deverrors.FaultNoResponse
	default:
		return StageResult{Stage: name, Err: fmt.Errorf("unknown stage %q", name)}
	}

	if t.drive.Safety.IsTripped() {
		return StageResult{Stage: name, Err: deverrors.SafetyTrippedError{Fault: t.drive.Safety.Fault()}}
	}

	t.log.WithField("stage", name).Info("running validation stage")

	if err := fn(); err != nil {
		t.log.WithField("stage", name).WithError(err).Error("validation stage failed")
		t.drive.ReportFault(faultKind)
		return StageResult{Stage: name, Err: err}
	}

	t.log.WithField("stage", name).Info("validation stage passed")
	return StageResult{Stage: name, Passed: true}
}

// connectivity drives every configured pin and reads it back when the
// port supports read-back. Ports without read-back pass as long as no
// write reports an error.
func (t *TestSequencer) connectivity() error {
	reader, canRead := t.port.(gpio.DigitalReader)

	for _, ch := range []*hardware.MotorChannel{t.drive.Left, t.drive.Right} {
		in1, in2, enable := ch.Pins()

		for _, pin := range []int{in1, in2} {
			for _, level := range []gpio.Level{gpio.High, gpio.Low} {
				if err := t.port.WriteDigital(pin, level); err != nil {
					return fmt.Errorf("channel %s pin %d: %v", ch.Name, pin, err)
				}
				if !canRead {
					continue
				}
				got, err := reader.ReadDigital(pin)
				if err != nil {
					return fmt.Errorf("channel %s pin %d read-back: %v", ch.Name, pin, err)
				}
				if got != level {
					return fmt.Errorf("channel %s pin %d stuck at %s", ch.Name, pin, got)
				}
			}
		}

		if err := t.port.SetPWMDuty(enable, 0); err != nil {
			return fmt.Errorf("channel %s enable pin %d: %v", ch.Name, enable, err)
		}
	}

	return nil
}

// individualMotor drives each channel alone, forward then reverse, at
// the low test duty. The other channel must stay at duty 0 throughout;
// that is checked every control cycle.
func (t *TestSequencer) individualMotor() error {
	duty := t.limits.TestDuty

	sides := []struct {
		name string
		only func(dir hardware.Direction, duty int) DriveCommand
		idle func(DriveStatus) int
	}{
		{
			name: "left",
			only: func(dir hardware.Direction, duty int) DriveCommand {
				return DriveCommand{LeftDuty: duty, LeftDirection: dir, RightDirection: hardware.Coast}
			},
			idle: func(s DriveStatus) int { return s.Right.Duty },
		},
		{
			name: "right",
			only: func(dir hardware.Direction, duty int) DriveCommand {
				return DriveCommand{RightDuty: duty, RightDirection: dir, LeftDirection: hardware.Coast}
			},
			idle: func(s DriveStatus) int { return s.Left.Duty },
		},
	}

	for _, side := range sides {
		guard := func(s DriveStatus) error {
			if v := side.idle(s); v != 0 {
				return fmt.Errorf("other channel moved to %d%% while testing %s", v, side.name)
			}
			return nil
		}

		for _, dir := range []hardware.Direction{hardware.Forward, hardware.Reverse} {
			if err := t.driveTo(side.only(dir, duty), guard); err != nil {
				return err
			}
			if err := t.driveTo(side.only(dir, 0), guard); err != nil {
				return err
			}
		}

		if err := t.driveTo(side.only(hardware.Coast, 0), nil); err != nil {
			return err
		}
	}

	return nil
}

// speedRamp sweeps the left channel through low-high-low targets via the
// controller and verifies the slew limiter bounds every per-cycle
// change.
func (t *TestSequencer) speedRamp() error {
	maxStep := t.drive.Left.MaxStep()
	prev := t.drive.Status().Left.Duty

	for _, target := range []int{t.limits.RampLow, t.limits.RampHigh, t.limits.RampLow, 0} {
		cmd := DriveCommand{LeftDuty: target, LeftDirection: hardware.Forward, RightDirection: hardware.Coast}
		if err := t.drive.Apply(cmd); err != nil {
			return err
		}

		for i := 0; ; i++ {
			status := t.drive.Status()
			if status.Tripped {
				return deverrors.SafetyTrippedError{Fault: status.Fault}
			}

			delta := status.Left.Duty - prev
			if delta < 0 {
				delta = -delta
			}
			if delta > maxStep {
				return fmt.Errorf("left channel jumped %d%% in one cycle (limit %d)", delta, maxStep)
			}
			prev = status.Left.Duty

			if status.Left.Duty == target {
				break
			}
			if i > 100/maxStep+1 {
				return fmt.Errorf("left channel stalled at %d%% ramping to %d%%", status.Left.Duty, target)
			}

			t.drive.Tick()
			t.pause()
		}
	}

	return t.driveTo(DriveCommand{LeftDirection: hardware.Coast, RightDirection: hardware.Coast}, nil)
}

// coordinated issues composite commands through the controller and
// checks both channels respond consistently.
func (t *TestSequencer) coordinated() error {
	duty := t.limits.TestDuty

	motions := []struct {
		name string
		cmd  DriveCommand
	}{
		{"forward", ForwardCommand(duty)},
		{"turn", TurnCommand(duty, 0.5)},
		{"pivot-left", PivotLeftCommand(duty)},
		{"stop", DriveCommand{LeftDirection: hardware.Coast, RightDirection: hardware.Coast}},
	}

	for _, motion := range motions {
		if err := t.driveTo(motion.cmd, nil); err != nil {
			return fmt.Errorf("%s: %v", motion.name, err)
		}

		status := t.drive.Status()
		if status.Left.Direction != motion.cmd.LeftDirection || status.Right.Direction != motion.cmd.RightDirection {
			return fmt.Errorf("%s: channels report %s/%s, commanded %s/%s", motion.name,
				status.Left.Direction, status.Right.Direction,
				motion.cmd.LeftDirection, motion.cmd.RightDirection)
		}
	}

	return nil
}

// driveTo applies a command and ticks the control loop until both
// channels reach the commanded duty, running check every cycle. A trip
// along the way aborts the motion.
func (t *TestSequencer) driveTo(cmd DriveCommand, check func(DriveStatus) error) error {
	if err := t.drive.Apply(cmd); err != nil {
		return err
	}

	maxStep := t.drive.Left.MaxStep()
	for i := 0; ; i++ {
		status := t.drive.Status()
		if status.Tripped {
			return deverrors.SafetyTrippedError{Fault: status.Fault}
		}
		if check != nil {
			if err := check(status); err != nil {
				return err
			}
		}

		if status.Left.Duty == cmd.LeftDuty && status.Right.Duty == cmd.RightDuty {
			return nil
		}
		if i > 100/maxStep+1 {
			return fmt.Errorf("channels stalled at %d%%/%d%% heading for %d%%/%d%%",
				status.Left.Duty, status.Right.Duty, cmd.LeftDuty, cmd.RightDuty)
		}

		t.drive.Tick()
		t.pause()
	}
}

func (t *TestSequencer) pause() {
	if t.Cycle > 0 {
		time.Sleep(t.Cycle)
	}
}
