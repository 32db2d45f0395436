package gpio

// Level describes the binary state of a GPIO pin: either LOW or HIGH.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "high"
	}
	return "low"
}

// GPIO is the minimal port contract the motor control core depends on.
// Duty is expressed in integer percent (0-100).
type GPIO interface {
	// WriteDigital sets a pin to LOW or HIGH.
	WriteDigital(pin int, level Level) error

	// SetPWMDuty sets the PWM duty cycle for a given pin.
	SetPWMDuty(pin int, percent int) error
}

// DigitalReader is implemented by ports that support reading pin state
// back. Callers discover it by type assertion; ports without read-back
// simply never satisfy it.
type DigitalReader interface {
	ReadDigital(pin int) (Level, error)
}
