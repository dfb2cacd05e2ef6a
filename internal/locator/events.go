package locator

import (
	"fmt"
	"image"

	"safetycam/internal/geometry"
)

// EventKind identifies an operator input
type EventKind int

const (
	EventPress EventKind = iota
	EventDrag
	EventRelease
	EventClick
	EventReset
)

func (k EventKind) String() string {
	switch k {
	case EventPress:
		return "press"
	case EventDrag:
		return "drag"
	case EventRelease:
		return "release"
	case EventClick:
		return "click"
	case EventReset:
		return "reset"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is delivered by the UI layer. Pt is ignored for EventReset.
type Event struct {
	Kind EventKind
	Pt   image.Point
}

func Press(x, y int) Event   { return Event{Kind: EventPress, Pt: image.Pt(x, y)} }
func Drag(x, y int) Event    { return Event{Kind: EventDrag, Pt: image.Pt(x, y)} }
func Release(x, y int) Event { return Event{Kind: EventRelease, Pt: image.Pt(x, y)} }
func Click(x, y int) Event   { return Event{Kind: EventClick, Pt: image.Pt(x, y)} }
func Reset() Event           { return Event{Kind: EventReset} }

// Outcome reports what an event did
type Outcome struct {
	Mode   Mode
	Ground geometry.GroundPoint
	// Projected is set when a click produced a new ground point
	Projected bool
}

// Handle dispatches ev to the matching transition
func (l *Locator) Handle(ev Event) (Outcome, error) {
	var err error
	out := Outcome{}

	switch ev.Kind {
	case EventPress:
		err = l.Press(ev.Pt)
	case EventDrag:
		err = l.Drag(ev.Pt)
	case EventRelease:
		err = l.Release(ev.Pt)
	case EventClick:
		var g geometry.GroundPoint
		g, err = l.Click(ev.Pt)
		if err == nil {
			out.Ground = g
			out.Projected = true
		}
	case EventReset:
		l.Reset()
	default:
		err = fmt.Errorf("%w: unknown event %v", ErrUnexpectedEvent, ev.Kind)
	}

	out.Mode = l.mode
	return out, err
}

// Replay feeds events in order and returns the last outcome. Selection
// errors are collected and do not stop the replay; any other error does.
func (l *Locator) Replay(events []Event) (Outcome, []error) {
	var out Outcome
	var errs []error
	for _, ev := range events {
		o, err := l.Handle(ev)
		out = o
		if err != nil {
			errs = append(errs, err)
			if !IsSelection(err) {
				break
			}
		}
	}
	return out, errs
}
