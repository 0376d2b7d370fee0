// Package epd drives the Waveshare 13.3" Spectra 6 e-paper HAT+ over
// SPI/GPIO using periph.io. The panel speaks a UC8159-family command set:
// commands are written with DC low, parameters with DC high, and the BUSY
// line is held high while the controller processes a command.
//
// Command sequences are expressed as plain functions over the controller
// interface (see sequence.go) so they can be verified without hardware.
package epd

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Panel commands.
const (
	panelSetting           byte = 0x00
	powerOff               byte = 0x02
	powerOn                byte = 0x04
	deepSleep              byte = 0x07
	dataStartTransmission1 byte = 0x10
	displayRefresh         byte = 0x12
	dataStartTransmission2 byte = 0x13
	resolutionSetting      byte = 0x61
)

// deepSleepCheck is the magic parameter the controller requires before it
// actually enters deep sleep.
const deepSleepCheck byte = 0xA5

// whitePair is two white pixels (code 0x1) packed into one byte nibble-wise.
const whitePair byte = 0x11

// ErrBusyTimeout is returned when the BUSY line does not go idle within the
// budget for an operation. After a refresh the caller may choose to treat
// it as a warning; the panel sometimes completes late.
var ErrBusyTimeout = errors.New("epd: busy timeout")

// Busy-wait budgets, matching the panel datasheet worst cases.
const (
	powerOnBusyTimeout  = 10 * time.Second
	refreshBusyTimeout  = 45 * time.Second
	powerOffBusyTimeout = 5 * time.Second

	busyPollInterval = 100 * time.Millisecond
)

// Opts describes the panel geometry.
type Opts struct {
	Width  int
	Height int
}

// Spectra6 is the 13.3" Spectra 6 HAT+ panel.
var Spectra6 = Opts{Width: 1600, Height: 1200}

// BufferSize returns the length of a packed transmission buffer
// (4 pixels per byte).
func (o *Opts) BufferSize() int {
	return o.Width * o.Height / 4
}

// Pins lists the BCM GPIO numbers wired to the panel. CSS is the slave
// chip select on dual-controller panels and may be zero.
type Pins struct {
	RST  int
	DC   int
	CS   int
	CSS  int
	BUSY int
}

// Dev is a handle to the panel.
type Dev struct {
	conn spi.Conn
	port spi.PortCloser

	dc   gpio.PinOut
	cs   gpio.PinOut
	rst  gpio.PinOut
	busy gpio.PinIn

	opts Opts
}

// Open initializes the periph.io host, opens the SPI port (empty portName
// selects the first available, /dev/spidev0.0 on a Pi) and configures all
// GPIO lines for the given pin assignment.
func Open(portName string, speedHz int64, pins Pins, opts Opts) (*Dev, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("epd: periph host init failed: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("epd: failed to open SPI port: %w", err)
	}

	if speedHz <= 0 {
		speedHz = 4_000_000
	}
	conn, err := port.Connect(physic.Frequency(speedHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("epd: failed to connect SPI: %w", err)
	}

	gpioOut := func(num int, initial gpio.Level) (gpio.PinOut, error) {
		name := fmt.Sprintf("GPIO%d", num)
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("epd: gpio %s not found", name)
		}
		if err := p.Out(initial); err != nil {
			return nil, fmt.Errorf("epd: gpio %s Out failed: %w", name, err)
		}
		return p, nil
	}
	gpioIn := func(num int) (gpio.PinIn, error) {
		name := fmt.Sprintf("GPIO%d", num)
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("epd: gpio %s not found", name)
		}
		if err := p.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("epd: gpio %s In failed: %w", name, err)
		}
		return p, nil
	}

	d := &Dev{port: port, conn: conn, opts: opts}

	if d.rst, err = gpioOut(pins.RST, gpio.High); err != nil {
		_ = port.Close()
		return nil, err
	}
	if d.dc, err = gpioOut(pins.DC, gpio.Low); err != nil {
		_ = port.Close()
		return nil, err
	}
	if d.cs, err = gpioOut(pins.CS, gpio.High); err != nil {
		_ = port.Close()
		return nil, err
	}
	if d.busy, err = gpioIn(pins.BUSY); err != nil {
		_ = port.Close()
		return nil, err
	}

	return d, nil
}

// Close releases the SPI port. GPIO lines need no explicit teardown under
// periph.io.
func (d *Dev) Close() error {
	return d.port.Close()
}

// String returns a short description of the device.
func (d *Dev) String() string {
	return fmt.Sprintf("epd.Dev{%s, %dx%d}", d.conn, d.opts.Width, d.opts.Height)
}

// Reset performs the hardware reset sequence: RST high 200ms, low 2ms,
// high 200ms.
func (d *Dev) Reset() error {
	if err := d.rst.Out(gpio.High); err != nil {
		return err
	}
	time.Sleep(200 * time.Millisecond)
	if err := d.rst.Out(gpio.Low); err != nil {
		return err
	}
	time.Sleep(2 * time.Millisecond)
	if err := d.rst.Out(gpio.High); err != nil {
		return err
	}
	time.Sleep(200 * time.Millisecond)
	return nil
}

// Init resets the panel and runs the power-on / panel-setting / resolution
// sequence. The panel must be re-initialized after Sleep.
func (d *Dev) Init() error {
	if err := d.Reset(); err != nil {
		return fmt.Errorf("epd: reset failed: %w", err)
	}
	eh := &errorHandler{d: d}
	if err := initPanel(eh, &d.opts); err != nil {
		return err
	}
	return eh.err
}

// Clear floods both transmission buffers with white and refreshes.
func (d *Dev) Clear() error {
	eh := &errorHandler{d: d}
	if err := clearPanel(eh, &d.opts); err != nil {
		return err
	}
	return eh.err
}

// Display uploads a packed buffer (4 pixels per byte, see internal/convert)
// to both transmission buffers and refreshes. The buffer length must be
// exactly Width*Height/4.
func (d *Dev) Display(buf []byte) error {
	if len(buf) != d.opts.BufferSize() {
		return fmt.Errorf("epd: invalid buffer size %d, expected %d", len(buf), d.opts.BufferSize())
	}
	eh := &errorHandler{d: d}
	if err := displayBuffer(eh, buf); err != nil {
		return err
	}
	return eh.err
}

// Refresh triggers a display refresh and waits for the panel to go idle.
// Returns ErrBusyTimeout if the panel is still busy after 45s.
func (d *Dev) Refresh() error {
	eh := &errorHandler{d: d}
	if err := refresh(eh); err != nil {
		return err
	}
	return eh.err
}

// Sleep powers the panel off and puts the controller into deep sleep.
func (d *Dev) Sleep() error {
	eh := &errorHandler{d: d}
	if err := sleepPanel(eh); err != nil {
		return err
	}
	return eh.err
}

// BusyLevel reports the current level of the BUSY line.
func (d *Dev) BusyLevel() bool {
	return d.busy.Read() == gpio.High
}

// --- low-level transfers ---

// sendCommand writes one command byte with DC low and CS asserted.
func (d *Dev) sendCommand(cmd byte) error {
	if err := d.dc.Out(gpio.Low); err != nil {
		return err
	}
	if err := d.cs.Out(gpio.Low); err != nil {
		return err
	}
	err := d.conn.Tx([]byte{cmd}, nil)
	if cerr := d.cs.Out(gpio.High); err == nil {
		err = cerr
	}
	return err
}

// sendData writes parameter bytes with DC high and CS asserted.
func (d *Dev) sendData(data []byte) error {
	if err := d.dc.Out(gpio.High); err != nil {
		return err
	}
	if err := d.cs.Out(gpio.Low); err != nil {
		return err
	}
	err := d.conn.Tx(data, nil)
	if cerr := d.cs.Out(gpio.High); err == nil {
		err = cerr
	}
	return err
}

// waitUntilIdle polls the BUSY line every 100ms until it goes low or the
// timeout elapses.
func (d *Dev) waitUntilIdle(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for d.busy.Read() == gpio.High {
		if time.Now().After(deadline) {
			return ErrBusyTimeout
		}
		time.Sleep(busyPollInterval)
	}
	return nil
}

// errorHandler adapts *Dev to the controller interface, remembering the
// first transfer error and turning later calls into no-ops.
type errorHandler struct {
	d   *Dev
	err error
}

func (eh *errorHandler) sendCommand(cmd byte) {
	if eh.err != nil {
		return
	}
	eh.err = eh.d.sendCommand(cmd)
}

func (eh *errorHandler) sendData(data []byte) {
	if eh.err != nil {
		return
	}
	eh.err = eh.d.sendData(data)
}

func (eh *errorHandler) sendByte(data byte) {
	eh.sendData([]byte{data})
}

func (eh *errorHandler) waitUntilIdle(timeout time.Duration) error {
	if eh.err != nil {
		return eh.err
	}
	return eh.d.waitUntilIdle(timeout)
}

func (eh *errorHandler) settle(dur time.Duration) {
	if eh.err != nil {
		return
	}
	time.Sleep(dur)
}
