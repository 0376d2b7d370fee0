package epd

import "time"

// controller abstracts the transfer layer so the command sequences below
// can be exercised against a recording fake in tests.
type controller interface {
	sendCommand(byte)
	sendData([]byte)
	sendByte(byte)
	waitUntilIdle(timeout time.Duration) error
	settle(time.Duration)
}

// initPanel runs the post-reset bring-up: power on, panel setting and
// resolution. The power-on busy wait is fatal; an unpowered panel cannot
// accept the rest of the sequence.
func initPanel(ctrl controller, opts *Opts) error {
	ctrl.sendCommand(powerOn)
	if err := ctrl.waitUntilIdle(powerOnBusyTimeout); err != nil {
		return err
	}

	// KW/R mode, scan/shift/booster defaults.
	ctrl.sendCommand(panelSetting)
	ctrl.sendData([]byte{0x2f, 0x00})

	ctrl.sendCommand(resolutionSetting)
	ctrl.sendData([]byte{
		byte(opts.Width >> 8), byte(opts.Width & 0xff),
		byte(opts.Height >> 8), byte(opts.Height & 0xff),
	})

	return nil
}

// clearPanel floods both transmission buffers with white pixel pairs and
// refreshes the display.
func clearPanel(ctrl controller, opts *Opts) error {
	buf := make([]byte, opts.BufferSize())
	for i := range buf {
		buf[i] = whitePair
	}

	ctrl.sendCommand(dataStartTransmission1)
	ctrl.sendData(buf)
	ctrl.sendCommand(dataStartTransmission2)
	ctrl.sendData(buf)

	return refresh(ctrl)
}

// displayBuffer uploads a packed frame to both transmission buffers and
// refreshes. The panel expects the same data in both for a full update.
func displayBuffer(ctrl controller, buf []byte) error {
	ctrl.sendCommand(dataStartTransmission1)
	ctrl.sendData(buf)
	ctrl.sendCommand(dataStartTransmission2)
	ctrl.sendData(buf)

	return refresh(ctrl)
}

// refresh triggers the refresh cycle. A full Spectra 6 refresh takes tens
// of seconds; a timeout here is reported but the sequence state is intact.
func refresh(ctrl controller) error {
	ctrl.sendCommand(displayRefresh)
	ctrl.settle(100 * time.Millisecond)
	return ctrl.waitUntilIdle(refreshBusyTimeout)
}

// sleepPanel powers off and enters deep sleep. Only a hardware reset (Init)
// wakes the controller afterwards. Deep sleep is sent even when power-off
// overruns its busy budget; a controller left awake keeps drawing power.
func sleepPanel(ctrl controller) error {
	ctrl.sendCommand(powerOff)
	err := ctrl.waitUntilIdle(powerOffBusyTimeout)
	ctrl.sendCommand(deepSleep)
	ctrl.sendByte(deepSleepCheck)
	return err
}
