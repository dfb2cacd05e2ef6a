package calibration

import "errors"

// ErrCalibration is returned when the sampled correspondence set is empty or
// inconsistent, or when the solver produced no usable camera matrix.
var ErrCalibration = errors.New("calibration: failed")

// Global debug function for calibration package
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
