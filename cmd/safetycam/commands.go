package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"safetycam/internal/locator"
)

// command is one line typed on stdin. Events go to the locator; height and
// quit are handled by the loop itself.
type command struct {
	events    []locator.Event
	setHeight bool
	height    float64
	quit      bool
}

const commandHelp = `commands:
  X Y | click X Y          pick the feature nearest to pixel (X, Y)
  roi X0 Y0 X1 Y1          replace the selection with this region
  r | reset                start a new selection
  h M | height M           set the camera height in metres
  q | quit                 exit`

// parseCommand turns one stdin line into a command
func parseCommand(line string) (command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return command{}, fmt.Errorf("empty command")
	}

	switch fields[0] {
	case "r", "reset":
		return command{events: []locator.Event{locator.Reset()}}, nil
	case "q", "quit", "exit":
		return command{quit: true}, nil
	case "h", "height":
		if len(fields) != 2 {
			return command{}, fmt.Errorf("usage: height METRES")
		}
		h, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return command{}, fmt.Errorf("bad height %q: %v", fields[1], err)
		}
		return command{setHeight: true, height: h}, nil
	case "roi":
		v, err := parseInts(fields[1:], 4)
		if err != nil {
			return command{}, fmt.Errorf("usage: roi X0 Y0 X1 Y1: %v", err)
		}
		events := append([]locator.Event{locator.Reset()}, regionEvents(v[0], v[1], v[2], v[3])...)
		return command{events: events}, nil
	case "click":
		fields = fields[1:]
	}

	v, err := parseInts(fields, 2)
	if err != nil {
		return command{}, fmt.Errorf("unknown command %q", line)
	}
	return command{events: []locator.Event{locator.Click(v[0], v[1])}}, nil
}

func parseInts(fields []string, n int) ([]int, error) {
	if len(fields) != n {
		return nil, fmt.Errorf("want %d numbers, got %d", n, len(fields))
	}
	out := make([]int, n)
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// regionEvents is the press/drag/release sequence for a rectangle
func regionEvents(x0, y0, x1, y1 int) []locator.Event {
	return []locator.Event{
		locator.Press(x0, y0),
		locator.Drag(x1, y1),
		locator.Release(x1, y1),
	}
}

// readCommands scans r line by line and sends each parsed command. Parse
// errors are reported through warn. The channel is closed at EOF.
func readCommands(r io.Reader, out chan<- command, warn func(string)) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "?" || line == "help" {
			warn(commandHelp)
			continue
		}
		cmd, err := parseCommand(line)
		if err != nil {
			warn(err.Error())
			continue
		}
		out <- cmd
	}
}
