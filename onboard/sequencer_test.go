package onboard

import (
	"errors"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	deverrors "github.com/cacticulturessecure/roombadrive/onboard/errors"
	"github.com/cacticulturessecure/roombadrive/onboard/gpio"
)

func newTestSequencer() (*gpio.Recorder, *DriveController, *TestSequencer) {
	port, drive := newTestDrive()
	sequencer := NewTestSequencer(drive, port, testConfig().Limits, quietLog())
	sequencer.Cycle = 0
	return port, drive, sequencer
}

func TestSequenceFullRun(t *testing.T) {
	Convey("all four stages pass against the recorder port", t, func() {
		_, drive, sequencer := newTestSequencer()

		results := sequencer.Run()

		So(results, ShouldHaveLength, 4)
		for _, result := range results {
			So(result.Err, ShouldBeNil)
			So(result.Passed, ShouldBeTrue)
		}
		So(results[0].Stage, ShouldEqual, StageConnectivity)
		So(results[3].Stage, ShouldEqual, StageCoordinated)
		So(drive.Safety.IsTripped(), ShouldBeFalse)

		Convey("and the motors end parked", func() {
			So(drive.Left.Duty(), ShouldEqual, 0)
			So(drive.Right.Duty(), ShouldEqual, 0)
		})
	})
}

func TestSequenceFailFast(t *testing.T) {
	Convey("a connectivity failure halts the sequence and trips safety", t, func() {
		port, drive, sequencer := newTestSequencer()
		port.FailPin(19, errors.New("open circuit"))

		results := sequencer.Run()

		So(results, ShouldHaveLength, 1)
		So(results[0].Stage, ShouldEqual, StageConnectivity)
		So(results[0].Passed, ShouldBeFalse)
		So(results[0].Err, ShouldNotBeNil)
		So(drive.Safety.Fault(), ShouldEqual, deverrors.FaultWiringMismatch)
	})

	Convey("a failure on the second channel is still caught", t, func() {
		port, drive, sequencer := newTestSequencer()
		port.FailPin(20, errors.New("floating input"))

		result := sequencer.RunStage(StageConnectivity)

		So(result.Passed, ShouldBeFalse)
		So(drive.Safety.IsTripped(), ShouldBeTrue)
	})
}

func TestSequenceIndividualMotor(t *testing.T) {
	Convey("each channel is exercised alone", t, func() {
		port, drive, sequencer := newTestSequencer()

		result := sequencer.RunStage(StageIndividual)

		So(result.Err, ShouldBeNil)
		So(result.Passed, ShouldBeTrue)
		So(drive.Safety.IsTripped(), ShouldBeFalse)

		Convey("the right channel never moves until the left finishes", func() {
			writes := port.Writes()

			lastLeft, firstRight := -1, -1
			for i, w := range writes {
				if !w.PWM || w.Duty == 0 {
					continue
				}
				switch w.Pin {
				case 26:
					lastLeft = i
				case 16:
					if firstRight == -1 {
						firstRight = i
					}
				}
			}

			So(lastLeft, ShouldBeGreaterThan, -1)
			So(firstRight, ShouldBeGreaterThan, lastLeft)
		})
	})
}

func TestSequenceSpeedRamp(t *testing.T) {
	Convey("the sweep never exceeds one slew step per cycle", t, func() {
		port, _, sequencer := newTestSequencer()

		result := sequencer.RunStage(StageRamp)

		So(result.Err, ShouldBeNil)
		So(result.Passed, ShouldBeTrue)

		prev := 0
		for _, w := range port.Writes() {
			if !w.PWM || w.Pin != 26 {
				continue
			}
			delta := w.Duty - prev
			if delta < 0 {
				delta = -delta
			}
			So(delta, ShouldBeLessThanOrEqualTo, 5)
			prev = w.Duty
		}
		// sweep peaked at the configured high point
		So(prev, ShouldEqual, 0)
	})
}

func TestSequenceCoordinated(t *testing.T) {
	Convey("composite motions drive both channels consistently", t, func() {
		_, drive, sequencer := newTestSequencer()

		result := sequencer.RunStage(StageCoordinated)

		So(result.Err, ShouldBeNil)
		So(result.Passed, ShouldBeTrue)
		So(drive.Left.Duty(), ShouldEqual, 0)
		So(drive.Right.Duty(), ShouldEqual, 0)
	})

	Convey("a channel fault during a motion fails the stage", t, func() {
		port, drive, sequencer := newTestSequencer()
		port.FailPin(16, errors.New("silent driver"))

		result := sequencer.RunStage(StageCoordinated)

		So(result.Passed, ShouldBeFalse)
		So(drive.Safety.IsTripped(), ShouldBeTrue)
	})
}

func TestSequenceRefusedWhileTripped(t *testing.T) {
	Convey("a tripped safety monitor blocks every stage", t, func() {
		port, drive, sequencer := newTestSequencer()
		drive.ReportFault(deverrors.FaultOvercurrent)
		port.Reset()

		for _, stage := range sequencer.Stages() {
			result := sequencer.RunStage(stage)
			So(result.Passed, ShouldBeFalse)
			So(result.Err, ShouldHaveSameTypeAs, deverrors.SafetyTrippedError{})
		}

		Convey("and no motor is driven past the latched fault", func() {
			So(port.Writes(), ShouldBeEmpty)
			So(drive.Left.Duty(), ShouldEqual, 0)
			So(drive.Right.Duty(), ShouldEqual, 0)
		})
	})

	Convey("a full run reports the refusal on the first stage", t, func() {
		_, drive, sequencer := newTestSequencer()
		drive.ReportFault(deverrors.FaultOvercurrent)

		results := sequencer.Run()

		So(results, ShouldHaveLength, 1)
		So(results[0].Stage, ShouldEqual, StageConnectivity)
		So(results[0].Passed, ShouldBeFalse)
	})
}

func TestSequenceSharesControlLoop(t *testing.T) {
	Convey("motion stages tolerate a concurrently running control loop", t, func() {
		_, drive, sequencer := newTestSequencer()

		done := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					drive.Tick()
					drive.Status()
				}
			}
		}()

		individual := sequencer.RunStage(StageIndividual)
		coordinated := sequencer.RunStage(StageCoordinated)
		close(done)
		wg.Wait()

		So(individual.Err, ShouldBeNil)
		So(individual.Passed, ShouldBeTrue)
		So(coordinated.Err, ShouldBeNil)
		So(coordinated.Passed, ShouldBeTrue)
		So(drive.Left.Duty(), ShouldEqual, 0)
		So(drive.Right.Duty(), ShouldEqual, 0)
	})
}

func TestSequenceUnknownStage(t *testing.T) {
	Convey("an unknown stage name fails without tripping safety", t, func() {
		_, drive, sequencer := newTestSequencer()

		result := sequencer.RunStage("bogus")

		So(result.Passed, ShouldBeFalse)
		So(result.Err, ShouldNotBeNil)
		So(drive.Safety.IsTripped(), ShouldBeFalse)
	})
}
