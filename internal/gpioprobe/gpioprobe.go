// Package gpioprobe tries several independent ways of claiming the panel's
// GPIO lines. When bring-up fails it is rarely obvious whether the problem
// is permissions, a stale pin export or the library in use, so each
// approach goes through a different stack and the runner reports which of
// them worked.
package gpioprobe

import (
	"fmt"
	"os"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"epdiag/internal/epd"
)

// Approach is one way of initializing the GPIO lines.
type Approach struct {
	Name string
	Run  func(logf func(string, ...any)) error
}

// Outcome is the result of running one approach.
type Outcome struct {
	Name string
	Err  error
}

// Approaches returns the probe list for the given pin assignment:
// RST/DC/CS as outputs, BUSY as input.
func Approaches(pins epd.Pins) []Approach {
	return []Approach{
		{Name: "periph direct setup", Run: func(logf func(string, ...any)) error {
			return periphSetup(pins, nil)
		}},
		{Name: "go-rpio memory-mapped setup", Run: func(logf func(string, ...any)) error {
			return rpioSetup(pins)
		}},
		{Name: "periph per-pin setup", Run: func(logf func(string, ...any)) error {
			return periphSetup(pins, logf)
		}},
	}
}

// periphSetup claims all four lines through periph.io. When perPin is
// non-nil it reports progress after each pin, the way the step-by-step
// variant narrows down which line is the problem.
func periphSetup(pins epd.Pins, perPin func(string, ...any)) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periph host init: %w", err)
	}

	outs := []struct {
		name string
		num  int
	}{
		{"RST", pins.RST},
		{"DC", pins.DC},
		{"CS", pins.CS},
	}
	for _, o := range outs {
		p := gpioreg.ByName(fmt.Sprintf("GPIO%d", o.num))
		if p == nil {
			return fmt.Errorf("gpio %d not found", o.num)
		}
		if err := p.Out(gpio.Low); err != nil {
			return fmt.Errorf("gpio %d Out: %w", o.num, err)
		}
		if perPin != nil {
			perPin("Pin %d (%s) setup OK", o.num, o.name)
		}
	}

	p := gpioreg.ByName(fmt.Sprintf("GPIO%d", pins.BUSY))
	if p == nil {
		return fmt.Errorf("gpio %d not found", pins.BUSY)
	}
	if err := p.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return fmt.Errorf("gpio %d In: %w", pins.BUSY, err)
	}
	if perPin != nil {
		perPin("Pin %d (BUSY) setup OK", pins.BUSY)
	}

	return nil
}

// rpioSetup goes through /dev/gpiomem via go-rpio, bypassing periph
// entirely. A close/reopen cycle clears any half-configured state left by
// a previous run.
func rpioSetup(pins epd.Pins) error {
	if err := rpio.Open(); err != nil {
		return fmt.Errorf("rpio open: %w", err)
	}
	if err := rpio.Close(); err != nil {
		return fmt.Errorf("rpio close: %w", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := rpio.Open(); err != nil {
		return fmt.Errorf("rpio reopen: %w", err)
	}
	defer rpio.Close()

	for _, num := range []int{pins.RST, pins.DC, pins.CS} {
		rpio.Pin(num).Output()
	}
	rpio.Pin(pins.BUSY).Input()

	return nil
}

// RunAll executes every approach, logging per-approach success or failure.
// It returns the outcomes and whether at least one approach worked. On
// total failure it logs the user/group context, the usual culprit for
// GPIO permission errors.
func RunAll(approaches []Approach, logf func(string, ...any)) ([]Outcome, bool) {
	outcomes := make([]Outcome, 0, len(approaches))
	anyOK := false

	for _, a := range approaches {
		logf("Testing: %s", a.Name)
		err := a.Run(logf)
		if err != nil {
			logf("FAILED: %s: %v", a.Name, err)
		} else {
			logf("SUCCESS: %s", a.Name)
			anyOK = true
		}
		outcomes = append(outcomes, Outcome{Name: a.Name, Err: err})
	}

	if !anyOK {
		logf("All approaches failed - checking system...")
		logf("User: %s", os.Getenv("USER"))
		if groups, err := os.Getgroups(); err == nil {
			logf("Groups: %v", groups)
		}
	}

	return outcomes, anyOK
}
