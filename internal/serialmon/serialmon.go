// Package serialmon tails the serial output of the companion ESP32
// display client and annotates the lines that indicate test progress.
package serialmon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tarm/serial"
)

// Open opens the serial port at the given baud rate. The read timeout
// keeps Watch responsive to context cancellation while the device is
// quiet.
func Open(port string, baud int) (io.ReadCloser, error) {
	p, err := serial.OpenPort(&serial.Config{
		Name:        port,
		Baud:        baud,
		ReadTimeout: time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("serialmon: opening %s: %w", port, err)
	}
	return p, nil
}

// Annotator inspects a device line and optionally returns a note to
// print alongside it.
type Annotator func(line string) (string, bool)

// StatusAnnotator flags the lines the display client prints while
// bringing up WiFi and the panel.
func StatusAnnotator() Annotator {
	return func(line string) (string, bool) {
		switch {
		case strings.Contains(line, "Display initialized"):
			return "display initialization successful", true
		case strings.Contains(line, "Clear(RED)"):
			return "display clear command executed", true
		case strings.Contains(line, "WiFi connected"):
			return "WiFi connection successful", true
		case strings.Contains(line, "ERROR"), strings.Contains(line, "FAILED"):
			return "error reported by device", true
		}
		return "", false
	}
}

// ColorAnnotator flags the lines printed during the color cycle test,
// so the operator knows which refresh the panel should be showing.
func ColorAnnotator() Annotator {
	return func(line string) (string, bool) {
		switch {
		case strings.Contains(line, "Text display completed"):
			return "text banner should be visible", true
		case strings.Contains(line, "RED"):
			return "RED refresh should be visible", true
		case strings.Contains(line, "BLUE"):
			return "BLUE refresh should be visible", true
		case strings.Contains(line, "GREEN"):
			return "GREEN refresh should be visible", true
		case strings.Contains(line, "WHITE"):
			return "WHITE refresh should be visible", true
		}
		return "", false
	}
}

// Monitor echoes device lines to Out, one per line, prefixed and
// optionally annotated.
type Monitor struct {
	Out      io.Writer
	Prefix   string
	Annotate Annotator

	// PollInterval is the idle sleep between empty reads. Zero means
	// 100ms.
	PollInterval time.Duration
}

// Watch reads lines from r for up to d (0 means until ctx is canceled)
// and echoes them. Serial ports with a read timeout surface io.EOF on
// idle; Watch treats that as "no data yet" and keeps polling. It
// returns the number of lines echoed.
func (m *Monitor) Watch(ctx context.Context, r io.Reader, d time.Duration) (int, error) {
	poll := m.PollInterval
	if poll == 0 {
		poll = 100 * time.Millisecond
	}

	var deadline time.Time
	if d > 0 {
		deadline = time.Now().Add(d)
	}

	var pending []byte
	buf := make([]byte, 256)
	lines := 0

	// A partial line left in pending when the window closes is still
	// device output; emit it instead of dropping it.
	flush := func() {
		if line := strings.TrimRight(string(pending), "\r"); line != "" {
			m.emit(line)
			lines++
		}
		pending = nil
	}

	for {
		if ctx.Err() != nil {
			flush()
			return lines, nil
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			flush()
			return lines, nil
		}

		n, err := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				line := strings.TrimRight(string(pending[:i]), "\r")
				pending = pending[i+1:]
				if line != "" {
					m.emit(line)
					lines++
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Read timeout on a quiet port. Back off and retry
				// until the window closes.
				select {
				case <-ctx.Done():
					flush()
					return lines, nil
				case <-time.After(poll):
				}
				continue
			}
			flush()
			return lines, err
		}
	}
}

func (m *Monitor) emit(line string) {
	fmt.Fprintf(m.Out, "%s%s\n", m.Prefix, line)
	if m.Annotate != nil {
		if note, ok := m.Annotate(line); ok {
			fmt.Fprintf(m.Out, "  >> %s\n", note)
		}
	}
}
