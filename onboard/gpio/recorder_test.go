package gpio

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRecorder(t *testing.T) {
	Convey("writes are tracked per pin and in order", t, func() {
		r := NewRecorder()

		So(r.WriteDigital(19, High), ShouldBeNil)
		So(r.SetPWMDuty(26, 40), ShouldBeNil)
		So(r.WriteDigital(19, Low), ShouldBeNil)

		So(r.Level(19), ShouldEqual, Low)
		So(r.Duty(26), ShouldEqual, 40)

		writes := r.Writes()
		So(writes, ShouldHaveLength, 3)
		So(writes[0], ShouldResemble, Write{Pin: 19, Level: High})
		So(writes[1], ShouldResemble, Write{Pin: 26, PWM: true, Duty: 40})
	})

	Convey("read-back reflects the last digital write", t, func() {
		r := NewRecorder()

		So(r.WriteDigital(13, High), ShouldBeNil)

		level, err := r.ReadDigital(13)
		So(err, ShouldBeNil)
		So(level, ShouldEqual, High)

		level, err = r.ReadDigital(21) // never written
		So(err, ShouldBeNil)
		So(level, ShouldEqual, Low)
	})

	Convey("injected pin failures affect every operation on that pin", t, func() {
		r := NewRecorder()
		broken := errors.New("open circuit")
		r.FailPin(19, broken)

		So(r.WriteDigital(19, High), ShouldEqual, broken)
		_, err := r.ReadDigital(19)
		So(err, ShouldEqual, broken)
		So(r.WriteDigital(13, High), ShouldBeNil)

		r.FailPin(19, nil)
		So(r.WriteDigital(19, High), ShouldBeNil)
	})

	Convey("reset clears the log but not pin state", t, func() {
		r := NewRecorder()
		So(r.WriteDigital(19, High), ShouldBeNil)

		r.Reset()

		So(r.Writes(), ShouldBeEmpty)
		So(r.Level(19), ShouldEqual, High)
	})
}
