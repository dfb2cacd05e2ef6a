package locator

import (
	"errors"
	"fmt"
)

// ErrSingularProjection is returned when the pixel ray runs parallel to the
// ground plane and has no intersection.
var ErrSingularProjection = errors.New("locator: singular projection")

// ErrSelection is the parent of every recoverable selection failure. Only a
// too-small region changes state, by dropping back to AwaitingRegion.
var ErrSelection = errors.New("locator: selection rejected")

var (
	ErrRegionTooSmall  = fmt.Errorf("%w: region too small", ErrSelection)
	ErrClickTooFar     = fmt.Errorf("%w: no feature near click", ErrSelection)
	ErrNoFeatures      = fmt.Errorf("%w: region has no features", ErrSelection)
	ErrUnexpectedEvent = fmt.Errorf("%w: event not valid in current mode", ErrSelection)
	ErrNoFrame         = fmt.Errorf("%w: no frame loaded", ErrSelection)
)

// Global debug function for locator package
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

// IsSelection reports whether err is a recoverable selection rejection
func IsSelection(err error) bool {
	return errors.Is(err, ErrSelection)
}
