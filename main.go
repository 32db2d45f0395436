package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/caarlos0/env/v6"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/cacticulturessecure/roombadrive/onboard"
	"github.com/cacticulturessecure/roombadrive/onboard/gpio"
	"github.com/cacticulturessecure/roombadrive/onboard/hardware"
)

const (
	exitOK           = 0
	exitStageFailure = 1
	exitFaultTripped = 2
)

type EnvConfig struct {
	DEBUG       bool   `env:"DEBUG" envDefault:"false"`
	CONFIG      string `env:"DRIVE_CONFIG" envDefault:"./drive_config.yaml"`
	PIGPIO_ADDR string `env:"PIGPIO_ADDR" envDefault:"localhost:8888"`
}

var ENV *EnvConfig

func init() {
	ENV = new(EnvConfig)
	env.Parse(ENV)
}

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", ENV.CONFIG, "path to the drive pin configuration yaml")
	sim := flag.Bool("sim", false, "drive an in-memory recorder port instead of hardware")
	pigpioAddr := flag.String("pigpio", ENV.PIGPIO_ADDR, "address of the pigpiod socket interface")
	runTests := flag.Bool("test", false, "run the full validation sequence and exit")
	stage := flag.String("stage", "", "run a single validation stage and exit")
	flag.Parse()

	log := logrus.New()
	if ENV.DEBUG {
		log.SetLevel(logrus.DebugLevel)
	}

	raw, err := os.ReadFile(*configPath)
	if err != nil {
		log.WithError(err).Error("unable to read config file")
		return exitFaultTripped
	}

	var config onboard.DriveConfig
	if err = yaml.Unmarshal(raw, &config); err != nil {
		log.WithError(err).Error("unable to unmarshal config yaml")
		return exitFaultTripped
	}
	if err = config.Validate(); err != nil {
		log.WithError(err).Error("invalid pin configuration")
		return exitFaultTripped
	}

	var port gpio.GPIO
	if *sim {
		log.Info("running in simulator mode")
		port = gpio.NewRecorder()
	} else {
		pigpio, err := gpio.DialPigpio(*pigpioAddr, config.Limits.PWMFrequency)
		if err != nil {
			log.WithError(err).Error("unable to reach pigpiod")
			return exitFaultTripped
		}
		defer pigpio.Close()
		port = pigpio
	}

	drive, err := onboard.NewDriveController(config, port, log)
	if err != nil {
		log.WithError(err).Error("unable to initialize drive controller")
		return exitFaultTripped
	}

	sequencer := onboard.NewTestSequencer(drive, port, config.Limits, log)
	if *sim {
		sequencer.Cycle = 0
	}

	// stop the motors on Ctrl+C before the process dies
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Warn("interrupt received, stopping motors")
		drive.EmergencyStop()
		os.Exit(exitFaultTripped)
	}()

	if *stage != "" {
		return reportResults(sequencer.RunStage(*stage))
	}
	if *runTests {
		return reportResults(sequencer.Run()...)
	}

	if !*sim {
		drive.StartWatchdog(config.Limits)
		defer drive.StopWatchdog()
	}

	// cooperative control loop: one slew step per cycle. The sequencer
	// paces its own cycles while a test runs, so the loop yields to it.
	var testRunning atomic.Bool
	loopDone := make(chan struct{})
	defer close(loopDone)
	go func() {
		ticker := time.NewTicker(config.Limits.ControlCycle)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if testRunning.Load() {
					continue
				}
				drive.Tick()
			case <-loopDone:
				return
			}
		}
	}()

	runShell(drive, sequencer, &testRunning)
	tripped := drive.Safety.IsTripped()
	drive.EmergencyStop() // park the motors before the process exits

	if tripped {
		return exitFaultTripped
	}
	return exitOK
}

func reportResults(results ...onboard.StageResult) int {
	code := exitOK
	for _, result := range results {
		if result.Passed {
			fmt.Printf("PASS %s\n", result.Stage)
			continue
		}
		fmt.Printf("FAIL %s: %v\n", result.Stage, result.Err)
		code = exitStageFailure
	}
	return code
}

func runShell(drive *onboard.DriveController, sequencer *onboard.TestSequencer, testRunning *atomic.Bool) {
	speed := 25 // manual-control duty, trimmed with the speed command

	shell := ishell.New()
	shell.Println("roombadrive operator shell")
	shell.ShowPrompt(true)

	argSpeed := func(c *ishell.Context) int {
		if len(c.Args) >= 1 {
			if v, err := strconv.Atoi(c.Args[0]); err == nil {
				return v
			}
			c.Err(fmt.Errorf("invalid speed %q, using %d%%", c.Args[0], speed))
		}
		return speed
	}

	apply := func(c *ishell.Context, cmd onboard.DriveCommand) {
		if err := drive.Apply(cmd); err != nil {
			c.Err(err)
			return
		}
		c.Printf("applied: %s\n", cmd)
	}

	shell.AddCmd(&ishell.Cmd{
		Name: "forward",
		Help: "forward [speed] - drive both motors forward",
		Func: func(c *ishell.Context) {
			apply(c, onboard.ForwardCommand(argSpeed(c)))
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "reverse",
		Help: "reverse [speed] - drive both motors backward",
		Func: func(c *ishell.Context) {
			apply(c, onboard.ReverseCommand(argSpeed(c)))
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "left",
		Help: "left [speed] - pivot counter-clockwise in place",
		Func: func(c *ishell.Context) {
			apply(c, onboard.PivotLeftCommand(argSpeed(c)))
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "right",
		Help: "right [speed] - pivot clockwise in place",
		Func: func(c *ishell.Context) {
			apply(c, onboard.PivotRightCommand(argSpeed(c)))
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "turn",
		Help: "turn <speed> <bias> - arc forward, bias in [-1,1]",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("usage: turn <speed> <bias>"))
				return
			}
			v, err := strconv.Atoi(c.Args[0])
			if err != nil {
				c.Err(fmt.Errorf("invalid speed %q", c.Args[0]))
				return
			}
			bias, err := strconv.ParseFloat(c.Args[1], 64)
			if err != nil {
				c.Err(fmt.Errorf("invalid bias %q", c.Args[1]))
				return
			}
			apply(c, onboard.TurnCommand(v, bias))
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "drive",
		Help: "drive <lduty> <ldir> <rduty> <rdir> - raw per-channel command",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 4 {
				c.Err(fmt.Errorf("usage: drive <lduty> <ldir> <rduty> <rdir>"))
				return
			}
			lduty, err := strconv.Atoi(c.Args[0])
			if err != nil {
				c.Err(fmt.Errorf("invalid left duty %q", c.Args[0]))
				return
			}
			ldir, err := hardware.ParseDirection(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			rduty, err := strconv.Atoi(c.Args[2])
			if err != nil {
				c.Err(fmt.Errorf("invalid right duty %q", c.Args[2]))
				return
			}
			rdir, err := hardware.ParseDirection(c.Args[3])
			if err != nil {
				c.Err(err)
				return
			}
			apply(c, onboard.DriveCommand{
				LeftDuty:       lduty,
				LeftDirection:  ldir,
				RightDuty:      rduty,
				RightDirection: rdir,
			})
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "speed",
		Help: "speed [+|-] - show or trim the manual-control speed by 5",
		Func: func(c *ishell.Context) {
			if len(c.Args) >= 1 {
				switch c.Args[0] {
				case "+":
					if speed += 5; speed > 100 {
						speed = 100
					}
				case "-":
					if speed -= 5; speed < 5 {
						speed = 5
					}
				default:
					c.Err(fmt.Errorf("usage: speed [+|-]"))
					return
				}
			}
			c.Printf("manual speed: %d%%\n", speed)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "stop",
		Help: "ramp both motors down to zero",
		Func: func(c *ishell.Context) {
			if err := drive.Stop(); err != nil {
				c.Err(err)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "estop",
		Help: "emergency stop: immediate zero duty and brake on both motors",
		Func: func(c *ishell.Context) {
			drive.EmergencyStop()
			c.Println("emergency stop engaged; clear to resume")
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "clear",
		Help: "reset the safety monitor after a fault",
		Func: func(c *ishell.Context) {
			drive.ClearFault()
			c.Println("safety monitor reset")
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name:      "test",
		Help:      "test [stage] - run the validation sequence or one stage",
		Completer: func([]string) []string { return sequencer.Stages() },
		Func: func(c *ishell.Context) {
			testRunning.Store(true)
			defer testRunning.Store(false)

			var results []onboard.StageResult
			if len(c.Args) >= 1 {
				results = []onboard.StageResult{sequencer.RunStage(c.Args[0])}
			} else {
				results = sequencer.Run()
			}
			for _, result := range results {
				if result.Passed {
					c.Printf("PASS %s\n", result.Stage)
				} else {
					c.Printf("FAIL %s: %v\n", result.Stage, result.Err)
				}
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "status",
		Help: "show channel duty, direction and safety state",
		Func: func(c *ishell.Context) {
			status := drive.Status()
			c.Printf("left:  %s at %d%%\n", status.Left.Direction, status.Left.Duty)
			c.Printf("right: %s at %d%%\n", status.Right.Direction, status.Right.Duty)
			if status.Tripped {
				c.Printf("safety: TRIPPED (%s)\n", status.Fault)
			} else {
				c.Println("safety: normal")
			}
		},
	})

	shell.Run()
}
