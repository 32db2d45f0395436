package hardware

import (
	"fmt"

	"github.com/sirupsen/logrus"

	deverrors "github.com/cacticulturessecure/roombadrive/onboard/errors"
	"github.com/cacticulturessecure/roombadrive/onboard/gpio"
)

const DefaultMaxStep = 5

// Direction of a single motor channel through the H-bridge.
type Direction int

const (
	Forward Direction = iota
	Reverse
	Brake
	Coast
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	case Brake:
		return "brake"
	case Coast:
		return "coast"
	}
	return fmt.Sprintf("unknown direction %d", int(d))
}

// ParseDirection maps an operator-supplied name to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "forward", "fwd":
		return Forward, nil
	case "reverse", "rev":
		return Reverse, nil
	case "brake":
		return Brake, nil
	case "coast":
		return Coast, nil
	}
	return Coast, fmt.Errorf("unknown direction %q", s)
}

// pinLevels is the L298N input truth table. Keeping the H-bridge
// semantics in one enumerated map means direction handling can be tested
// without hardware and never scattered across conditional writes.
var pinLevels = map[Direction][2]gpio.Level{
	Forward: {gpio.High, gpio.Low},
	Reverse: {gpio.Low, gpio.High},
	Brake:   {gpio.Low, gpio.Low},
	Coast:   {gpio.High, gpio.High},
}

// PinLevels returns the in1/in2 levels for a direction.
func PinLevels(d Direction) (in1, in2 gpio.Level, ok bool) {
	levels, ok := pinLevels[d]
	return levels[0], levels[1], ok
}

// MotorChannel owns one motor's direction pins plus its enable/PWM pin.
// The drive controller is the sole writer; a channel never limits who
// calls it but assumes exactly one caller per control cycle.
type MotorChannel struct {
	Name string

	in1, in2 int
	enable   int

	direction Direction
	duty      int
	maxStep   int

	port gpio.GPIO
	log  logrus.FieldLogger
}

func NewMotorChannel(name string, in1, in2, enable, maxStep int, port gpio.GPIO, log logrus.FieldLogger) *MotorChannel {
	if maxStep <= 0 {
		maxStep = DefaultMaxStep
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &MotorChannel{
		Name:      name,
		in1:       in1,
		in2:       in2,
		enable:    enable,
		direction: Coast,
		maxStep:   maxStep,
		port:      port,
		log:       log.WithField("channel", name),
	}
}

// Pins returns the configured pin assignment (in1, in2, enable).
func (m *MotorChannel) Pins() (int, int, int) {
	return m.in1, m.in2, m.enable
}

func (m *MotorChannel) Direction() Direction { return m.direction }

func (m *MotorChannel) Duty() int { return m.duty }

func (m *MotorChannel) MaxStep() int { return m.maxStep }

// SetDirection writes both direction pins. A failed write surfaces as a
// WiringMismatchError and leaves the recorded direction unchanged.
func (m *MotorChannel) SetDirection(d Direction) error {
	levels, ok := pinLevels[d]
	if !ok {
		return fmt.Errorf("invalid direction %d for channel %s", int(d), m.Name)
	}

	if err := m.port.WriteDigital(m.in1, levels[0]); err != nil {
		return deverrors.WiringMismatchError{Channel: m.Name, Pin: m.in1, Cause: err}
	}
	if err := m.port.WriteDigital(m.in2, levels[1]); err != nil {
		return deverrors.WiringMismatchError{Channel: m.Name, Pin: m.in2, Cause: err}
	}

	m.direction = d
	return nil
}

// SetSpeed moves the duty cycle toward target by at most maxStep and
// returns the duty actually applied. Targets outside [0,100] are clamped.
// Reaching a far target therefore takes several control cycles; that is
// the intended start-low-ramp-up behaviour.
func (m *MotorChannel) SetSpeed(target int) (int, error) {
	target = clampDuty(target)

	next := m.duty
	if target > m.duty {
		next = m.duty + m.maxStep
		if next > target {
			next = target
		}
	} else if target < m.duty {
		next = m.duty - m.maxStep
		if next < target {
			next = target
		}
	}

	if next == m.duty {
		return m.duty, nil
	}

	if err := m.port.SetPWMDuty(m.enable, next); err != nil {
		return m.duty, deverrors.NoResponseError{Channel: m.Name, Cause: err}
	}

	m.duty = next
	return m.duty, nil
}

// EmergencyStop forces duty 0 and brake, bypassing the slew limiter.
// Hardware write failures are logged but never block the stop: the
// recorded state always ends at 0/brake.
func (m *MotorChannel) EmergencyStop() {
	if err := m.port.SetPWMDuty(m.enable, 0); err != nil {
		m.log.WithError(err).Error("emergency stop: PWM write failed")
	}

	levels := pinLevels[Brake]
	if err := m.port.WriteDigital(m.in1, levels[0]); err != nil {
		m.log.WithError(err).Error("emergency stop: direction pin write failed")
	}
	if err := m.port.WriteDigital(m.in2, levels[1]); err != nil {
		m.log.WithError(err).Error("emergency stop: direction pin write failed")
	}

	m.duty = 0
	m.direction = Brake
}

func clampDuty(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
