package onboard

import (
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	deverrors "github.com/cacticulturessecure/roombadrive/onboard/errors"
)

func TestWatchdog(t *testing.T) {
	Convey("expiry reports a watchdog timeout", t, func() {
		faults := make(chan deverrors.FaultKind, 1)
		w := NewWatchdog(20*time.Millisecond, func(kind deverrors.FaultKind) {
			select {
			case faults <- kind:
			default:
			}
		}, quietLog())
		defer w.Stop()

		select {
		case kind := <-faults:
			So(kind, ShouldEqual, deverrors.FaultWatchdogTimeout)
		case <-time.After(2 * time.Second):
			So(fmt.Errorf("watchdog never fired"), ShouldBeNil)
		}
	})

	Convey("regular kicks hold the timeout off", t, func() {
		faults := make(chan deverrors.FaultKind, 1)
		w := NewWatchdog(300*time.Millisecond, func(kind deverrors.FaultKind) {
			select {
			case faults <- kind:
			default:
			}
		}, quietLog())
		defer w.Stop()

		for i := 0; i < 5; i++ {
			time.Sleep(50 * time.Millisecond)
			w.Kick()
		}

		select {
		case <-faults:
			So(fmt.Errorf("watchdog fired despite kicks"), ShouldBeNil)
		default:
		}
	})

	Convey("a stopped watchdog stays quiet", t, func() {
		faults := make(chan deverrors.FaultKind, 1)
		w := NewWatchdog(30*time.Millisecond, func(kind deverrors.FaultKind) {
			select {
			case faults <- kind:
			default:
			}
		}, quietLog())
		w.Stop()

		time.Sleep(100 * time.Millisecond)

		select {
		case <-faults:
			So(fmt.Errorf("watchdog fired after stop"), ShouldBeNil)
		default:
		}
	})
}
