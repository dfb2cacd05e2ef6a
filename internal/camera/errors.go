package camera

import "errors"

var (
	// ErrIO is returned when a calibration or parameter file cannot be opened or read
	ErrIO = errors.New("camera: i/o failure")
	// ErrFormat is returned for unrecognized extensions and malformed value counts
	ErrFormat = errors.New("camera: bad format")
	// ErrUncalibrated is returned when an operation needs a calibrated K
	ErrUncalibrated = errors.New("camera: intrinsics not calibrated")
)

// Global debug function for camera package
var debugMsgFunc func(string, string)

// SetDebugFunction allows main package to provide debug function
func SetDebugFunction(fn func(component, message string)) {
	debugMsgFunc = fn
}

func debugMsg(component, message string) {
	if debugMsgFunc != nil {
		debugMsgFunc(component, message)
	}
}
