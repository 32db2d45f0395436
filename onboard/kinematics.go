package onboard

import "github.com/cacticulturessecure/roombadrive/onboard/hardware"

// Composite motions. Each is a pure derivation of a DriveCommand from a
// requested speed; no state lives here. Steering follows the usual
// differential-drive mixing: equal duty drives straight, opposing
// directions pivot in place, and a biased turn slows the inner wheel.

func ForwardCommand(speed int) DriveCommand {
	return DriveCommand{
		LeftDuty:       speed,
		LeftDirection:  hardware.Forward,
		RightDuty:      speed,
		RightDirection: hardware.Forward,
	}
}

func ReverseCommand(speed int) DriveCommand {
	return DriveCommand{
		LeftDuty:       speed,
		LeftDirection:  hardware.Reverse,
		RightDuty:      speed,
		RightDirection: hardware.Reverse,
	}
}

// PivotLeftCommand spins in place counter-clockwise: left wheel reverse,
// right wheel forward.
func PivotLeftCommand(speed int) DriveCommand {
	return DriveCommand{
		LeftDuty:       speed,
		LeftDirection:  hardware.Reverse,
		RightDuty:      speed,
		RightDirection: hardware.Forward,
	}
}

func PivotRightCommand(speed int) DriveCommand {
	return DriveCommand{
		LeftDuty:       speed,
		LeftDirection:  hardware.Forward,
		RightDuty:      speed,
		RightDirection: hardware.Reverse,
	}
}

// TurnCommand arcs while moving forward. bias ranges over [-1,1]:
// negative slows the left wheel (turning left), positive slows the
// right wheel, zero drives straight.
func TurnCommand(speed int, bias float64) DriveCommand {
	if bias < -1 {
		bias = -1
	}
	if bias > 1 {
		bias = 1
	}

	left, right := speed, speed
	if bias < 0 {
		left = int(float64(speed) * (1 + bias))
	} else if bias > 0 {
		right = int(float64(speed) * (1 - bias))
	}

	return DriveCommand{
		LeftDuty:       left,
		LeftDirection:  hardware.Forward,
		RightDuty:      right,
		RightDirection: hardware.Forward,
	}
}
