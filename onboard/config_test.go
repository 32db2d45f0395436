package onboard

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"gopkg.in/yaml.v2"
)

const testYaml = `
revision: 1.0.0
left:
  in1: 19
  in2: 13
  enable: 26
right:
  in1: 21
  in2: 20
  enable: 16
limits:
  max_step: 4
  watchdog_timeout: 1500ms
`

func TestConfigParsing(t *testing.T) {
	var config DriveConfig

	Convey("parsing is successful", t, func() {
		err := yaml.Unmarshal([]byte(testYaml), &config)
		So(err, ShouldBeNil)

		Convey("pin assignment is set", func() {
			So(config.Left, ShouldResemble, PinConfig{In1: 19, In2: 13, Enable: 26})
			So(config.Right, ShouldResemble, PinConfig{In1: 21, In2: 20, Enable: 16})
		})

		Convey("given limits are kept and durations parsed", func() {
			So(config.Limits.MaxStepPerCycle, ShouldEqual, 4)
			So(config.Limits.WatchdogTimeout, ShouldEqual, 1500*time.Millisecond)
		})

		Convey("omitted limits fall back to defaults", func() {
			So(config.Limits.TestDuty, ShouldEqual, DefaultTestDuty)
			So(config.Limits.RampLow, ShouldEqual, DefaultRampLow)
			So(config.Limits.RampHigh, ShouldEqual, DefaultRampHigh)
			So(config.Limits.ControlCycle, ShouldEqual, DefaultControlCycle)
			So(config.Limits.PWMFrequency, ShouldEqual, DefaultPWMFrequency)
		})

		Convey("validation accepts the documented assignment", func() {
			So(config.Validate(), ShouldBeNil)
		})
	})

	Convey("an invalid duration is rejected", t, func() {
		err := yaml.Unmarshal([]byte("limits:\n  control_cycle: fast\n"), &DriveConfig{})
		So(err, ShouldNotBeNil)
	})
}

func TestConfigValidation(t *testing.T) {
	base := func() DriveConfig {
		return DriveConfig{
			Left:  PinConfig{In1: 19, In2: 13, Enable: 26},
			Right: PinConfig{In1: 21, In2: 20, Enable: 16},
		}
	}

	Convey("a missing pin is rejected", t, func() {
		config := base()
		config.Right.Enable = 0
		So(config.Validate(), ShouldNotBeNil)
	})

	Convey("a double-assigned pin is rejected", t, func() {
		config := base()
		config.Right.In1 = 19
		So(config.Validate(), ShouldNotBeNil)
	})

	Convey("validation fills limits when the yaml omits them", t, func() {
		config := base()
		So(config.Validate(), ShouldBeNil)
		So(config.Limits.MaxStepPerCycle, ShouldEqual, 5)
		So(config.Limits.WatchdogTimeout, ShouldEqual, DefaultWatchdogTimeout)
	})
}

func TestConfigRoundTrip(t *testing.T) {
	Convey("limits survive marshal and unmarshal", t, func() {
		original := LimitConfig{
			MaxStepPerCycle: 3,
			TestDuty:        25,
			RampLow:         10,
			RampHigh:        60,
			WatchdogTimeout: time.Second,
			ControlCycle:    20 * time.Millisecond,
			PWMFrequency:    10000,
		}

		out, err := yaml.Marshal(original)
		So(err, ShouldBeNil)

		var parsed LimitConfig
		So(yaml.Unmarshal(out, &parsed), ShouldBeNil)
		So(parsed, ShouldResemble, original)
	})
}
