package diag

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"epdiag/internal/epd"
)

// OpenHardware initializes periph.io and resolves the probe handles for
// the given pin profile. Unlike epd.Open it leaves the panel untouched:
// no reset, no initial pin levels beyond deasserted chip selects.
func OpenHardware(portName string, speedHz int64, pins epd.Pins) (*Hardware, func() error, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("diag: periph host init failed: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, nil, fmt.Errorf("diag: failed to open SPI port: %w", err)
	}
	if speedHz <= 0 {
		speedHz = 4_000_000
	}
	conn, err := port.Connect(physic.Frequency(speedHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, nil, fmt.Errorf("diag: failed to connect SPI: %w", err)
	}

	out := func(num int, initial gpio.Level) (gpio.PinOut, error) {
		name := fmt.Sprintf("GPIO%d", num)
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("diag: gpio %s not found", name)
		}
		if err := p.Out(initial); err != nil {
			return nil, fmt.Errorf("diag: gpio %s Out failed: %w", name, err)
		}
		return p, nil
	}

	h := &Hardware{SPI: conn}
	fail := func(err error) (*Hardware, func() error, error) {
		_ = port.Close()
		return nil, nil, err
	}

	if h.RST, err = out(pins.RST, gpio.High); err != nil {
		return fail(err)
	}
	if h.DC, err = out(pins.DC, gpio.Low); err != nil {
		return fail(err)
	}
	if h.CS, err = out(pins.CS, gpio.High); err != nil {
		return fail(err)
	}
	if pins.CSS != 0 {
		if h.CSS, err = out(pins.CSS, gpio.High); err != nil {
			return fail(err)
		}
	}

	busyName := fmt.Sprintf("GPIO%d", pins.BUSY)
	busy := gpioreg.ByName(busyName)
	if busy == nil {
		return fail(fmt.Errorf("diag: gpio %s not found", busyName))
	}
	if err := busy.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return fail(fmt.Errorf("diag: gpio %s In failed: %w", busyName, err))
	}
	h.BUSY = busy

	return h, port.Close, nil
}
