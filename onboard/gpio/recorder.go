package gpio

import "sync"

// Write is one recorded port operation, in the order it happened.
type Write struct {
	Pin   int
	PWM   bool
	Level Level // digital writes
	Duty  int   // PWM writes
}

// Recorder is an in-memory GPIO implementation. It tracks the current
// level and duty of every pin and keeps an ordered log of writes, so
// controller logic can be exercised deterministically without hardware.
// Errors can be injected per pin to simulate wiring failures.
type Recorder struct {
	mu     sync.Mutex
	levels map[int]Level
	duties map[int]int
	writes []Write
	broken map[int]error
}

var _ GPIO = &Recorder{}
var _ DigitalReader = &Recorder{}

func NewRecorder() *Recorder {
	return &Recorder{
		levels: make(map[int]Level),
		duties: make(map[int]int),
		broken: make(map[int]error),
	}
}

// FailPin makes every subsequent operation on pin return err. A nil err
// clears the injection.
func (r *Recorder) FailPin(pin int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.broken, pin)
		return
	}
	r.broken[pin] = err
}

func (r *Recorder) WriteDigital(pin int, level Level) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.broken[pin]; err != nil {
		return err
	}
	r.levels[pin] = level
	r.writes = append(r.writes, Write{Pin: pin, Level: level})
	return nil
}

func (r *Recorder) SetPWMDuty(pin int, percent int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.broken[pin]; err != nil {
		return err
	}
	r.duties[pin] = percent
	r.writes = append(r.writes, Write{Pin: pin, PWM: true, Duty: percent})
	return nil
}

func (r *Recorder) ReadDigital(pin int) (Level, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.broken[pin]; err != nil {
		return Low, err
	}
	return r.levels[pin], nil
}

// Level returns the last digital level written to pin.
func (r *Recorder) Level(pin int) Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.levels[pin]
}

// Duty returns the last duty cycle written to pin.
func (r *Recorder) Duty(pin int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.duties[pin]
}

// Writes returns a copy of the ordered write log.
func (r *Recorder) Writes() []Write {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Write, len(r.writes))
	copy(out, r.writes)
	return out
}

// Reset clears the write log but keeps pin state and injected errors.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = nil
}
