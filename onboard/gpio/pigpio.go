package gpio

import (
	"encoding/binary"
	"net"
	"sync"

	"github.com/pkg/errors"
)

// Pigpio drives GPIO through the pigpiod socket interface (normally on
// port 8888). All requests share one connection; pigpiod answers each
// command with a fixed-size response frame.
type Pigpio struct {
	conn net.Conn
	lock sync.Mutex

	frequency int
	prepared  map[int]bool
}

var _ GPIO = &Pigpio{}
var _ DigitalReader = &Pigpio{}

// pigpiod command codes
const (
	cmdModes    uint32 = 0
	cmdPWMRange uint32 = 6
	cmdPWMFreq  uint32 = 7
	cmdRead     uint32 = 3
	cmdWrite    uint32 = 4
	cmdPWM      uint32 = 5
)

const (
	modeOutput uint32 = 1

	// duty range is set to 100 per pin so percent maps directly
	pwmRange uint32 = 100
)

type request struct {
	Cmd uint32
	P1  uint32
	P2  uint32
	P3  uint32
}

// DialPigpio connects to a pigpiod instance. PWM pins are configured for
// the given frequency on first use.
func DialPigpio(addr string, frequency int) (*Pigpio, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't dial into pigpio socket")
	}

	return &Pigpio{
		conn:      conn,
		frequency: frequency,
		prepared:  make(map[int]bool),
	}, nil
}

// Close closes the underlying pigpiod connection.
func (p *Pigpio) Close() error {
	if p.conn == nil {
		return errors.New("connection is already closed")
	}
	return p.conn.Close()
}

// WriteDigital sets a GPIO pin to LOW or HIGH.
func (p *Pigpio) WriteDigital(pin int, level Level) error {
	var raw uint32
	if level {
		raw = 1
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	if _, err := p.exec(cmdModes, uint32(pin), modeOutput); err != nil {
		return err
	}
	_, err := p.exec(cmdWrite, uint32(pin), raw)
	return err
}

// ReadDigital returns the current level of a pin.
func (p *Pigpio) ReadDigital(pin int) (Level, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	res, err := p.exec(cmdRead, uint32(pin), 0)
	if err != nil {
		return Low, err
	}
	return res != 0, nil
}

// SetPWMDuty sets the duty cycle (0-100 percent) for a pin.
func (p *Pigpio) SetPWMDuty(pin int, percent int) error {
	if percent < 0 || percent > 100 {
		return errors.Errorf("duty %d outside range 0-100", percent)
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	if !p.prepared[pin] {
		if _, err := p.exec(cmdPWMRange, uint32(pin), pwmRange); err != nil {
			return err
		}
		if _, err := p.exec(cmdPWMFreq, uint32(pin), uint32(p.frequency)); err != nil {
			return err
		}
		p.prepared[pin] = true
	}

	_, err := p.exec(cmdPWM, uint32(pin), uint32(percent))
	return err
}

// exec sends one command frame and reads the response. pigpiod reports
// errors as a negative result in the final word. Callers must hold the
// lock.
func (p *Pigpio) exec(cmd, p1, p2 uint32) (int32, error) {
	if p.conn == nil {
		return 0, errors.New("not connected to pigpio socket interface")
	}

	req := request{Cmd: cmd, P1: p1, P2: p2}
	if err := binary.Write(p.conn, binary.LittleEndian, req); err != nil {
		return 0, errors.Wrap(err, "unable to write request to socket")
	}

	var resp request
	if err := binary.Read(p.conn, binary.LittleEndian, &resp); err != nil {
		return 0, errors.Wrap(err, "unable to read response from socket")
	}

	res := int32(resp.P3)
	if res < 0 {
		return res, errors.Errorf("pigpio command %d on pin %d failed with code %d", cmd, p1, res)
	}
	return res, nil
}
