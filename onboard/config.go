package onboard

import (
	"fmt"
	"time"

	"github.com/cacticulturessecure/roombadrive/onboard/hardware"
)

// PinConfig maps one channel's logical roles onto physical pins.
type PinConfig struct {
	In1    int `yaml:"in1"`
	In2    int `yaml:"in2"`
	Enable int `yaml:"enable"`
}

// LimitConfig carries the tunable control limits. The source guidance
// only states these as operator ranges, so every value is configurable
// and defaulted rather than hard-coded.
type LimitConfig struct {
	MaxStepPerCycle int           `yaml:"max_step"`
	TestDuty        int           `yaml:"test_duty"`
	RampLow         int           `yaml:"ramp_low"`
	RampHigh        int           `yaml:"ramp_high"`
	WatchdogTimeout time.Duration `yaml:"watchdog_timeout"`
	ControlCycle    time.Duration `yaml:"control_cycle"`
	PWMFrequency    int           `yaml:"pwm_frequency"`
}

const (
	DefaultTestDuty        = 20
	DefaultRampLow         = 15
	DefaultRampHigh        = 50
	DefaultWatchdogTimeout = 2 * time.Second
	DefaultControlCycle    = 50 * time.Millisecond
	DefaultPWMFrequency    = 8000
)

type DriveConfig struct {
	Revision string      `yaml:"revision"`
	Left     PinConfig   `yaml:"left"`
	Right    PinConfig   `yaml:"right"`
	Limits   LimitConfig `yaml:"limits"`
}

// rawLimits mirrors LimitConfig with durations as strings, since yaml.v2
// has no native duration support.
type rawLimits struct {
	MaxStepPerCycle int    `yaml:"max_step"`
	TestDuty        int    `yaml:"test_duty"`
	RampLow         int    `yaml:"ramp_low"`
	RampHigh        int    `yaml:"ramp_high"`
	WatchdogTimeout string `yaml:"watchdog_timeout"`
	ControlCycle    string `yaml:"control_cycle"`
	PWMFrequency    int    `yaml:"pwm_frequency"`
}

func (c *LimitConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw rawLimits
	if err := unmarshal(&raw); err != nil {
		return err
	}

	c.MaxStepPerCycle = raw.MaxStepPerCycle
	c.TestDuty = raw.TestDuty
	c.RampLow = raw.RampLow
	c.RampHigh = raw.RampHigh
	c.PWMFrequency = raw.PWMFrequency

	for _, d := range []struct {
		value string
		into  *time.Duration
	}{
		{raw.WatchdogTimeout, &c.WatchdogTimeout},
		{raw.ControlCycle, &c.ControlCycle},
	} {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %v", d.value, err)
		}
		*d.into = parsed
	}

	c.applyDefaults()
	return nil
}

func (c LimitConfig) MarshalYAML() (interface{}, error) {
	return rawLimits{
		MaxStepPerCycle: c.MaxStepPerCycle,
		TestDuty:        c.TestDuty,
		RampLow:         c.RampLow,
		RampHigh:        c.RampHigh,
		WatchdogTimeout: c.WatchdogTimeout.String(),
		ControlCycle:    c.ControlCycle.String(),
		PWMFrequency:    c.PWMFrequency,
	}, nil
}

func (c *LimitConfig) applyDefaults() {
	if c.MaxStepPerCycle <= 0 {
		c.MaxStepPerCycle = hardware.DefaultMaxStep
	}
	if c.TestDuty <= 0 {
		c.TestDuty = DefaultTestDuty
	}
	if c.RampLow <= 0 {
		c.RampLow = DefaultRampLow
	}
	if c.RampHigh <= 0 {
		c.RampHigh = DefaultRampHigh
	}
	if c.WatchdogTimeout <= 0 {
		c.WatchdogTimeout = DefaultWatchdogTimeout
	}
	if c.ControlCycle <= 0 {
		c.ControlCycle = DefaultControlCycle
	}
	if c.PWMFrequency <= 0 {
		c.PWMFrequency = DefaultPWMFrequency
	}
}

// Validate checks the pin assignment is complete and free of overlaps.
func (c *DriveConfig) Validate() error {
	seen := make(map[int]string)
	for _, p := range []struct {
		role string
		pin  int
	}{
		{"left.in1", c.Left.In1},
		{"left.in2", c.Left.In2},
		{"left.enable", c.Left.Enable},
		{"right.in1", c.Right.In1},
		{"right.in2", c.Right.In2},
		{"right.enable", c.Right.Enable},
	} {
		if p.pin <= 0 {
			return fmt.Errorf("pin for %s is not set", p.role)
		}
		if other, ok := seen[p.pin]; ok {
			return fmt.Errorf("pin %d assigned to both %s and %s", p.pin, other, p.role)
		}
		seen[p.pin] = p.role
	}

	// zero-value Limits happens when the yaml omits the section entirely
	c.Limits.applyDefaults()

	return nil
}
