package epd

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type record struct {
	cmd  byte
	data []byte
}

type fakeController struct {
	records []record

	// busyErr is returned from every waitUntilIdle call.
	busyErr error
	// waits records the timeout budget of each waitUntilIdle call.
	waits []time.Duration
}

func (f *fakeController) sendCommand(cmd byte) {
	f.records = append(f.records, record{cmd: cmd})
}

func (f *fakeController) sendData(data []byte) {
	cur := &f.records[len(f.records)-1]
	cur.data = append(cur.data, data...)
}

func (f *fakeController) sendByte(data byte) {
	f.sendData([]byte{data})
}

func (f *fakeController) waitUntilIdle(timeout time.Duration) error {
	f.waits = append(f.waits, timeout)
	return f.busyErr
}

func (f *fakeController) settle(time.Duration) {}

func whiteBuffer(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = whitePair
	}
	return buf
}

func diffRecords(t *testing.T, got, want []record) {
	t.Helper()
	if diff := cmp.Diff(got, want, cmpopts.EquateEmpty(), cmp.AllowUnexported(record{})); diff != "" {
		t.Errorf("command sequence difference (-got +want):\n%s", diff)
	}
}

func TestInitPanel(t *testing.T) {
	var got fakeController

	opts := Spectra6
	if err := initPanel(&got, &opts); err != nil {
		t.Fatalf("initPanel() error: %v", err)
	}

	diffRecords(t, got.records, []record{
		{cmd: powerOn},
		{cmd: panelSetting, data: []byte{0x2f, 0x00}},
		{cmd: resolutionSetting, data: []byte{0x06, 0x40, 0x04, 0xb0}},
	})

	if diff := cmp.Diff(got.waits, []time.Duration{powerOnBusyTimeout}); diff != "" {
		t.Errorf("busy wait budgets (-got +want):\n%s", diff)
	}
}

func TestInitPanelPowerOnTimeout(t *testing.T) {
	got := fakeController{busyErr: ErrBusyTimeout}

	opts := Spectra6
	if err := initPanel(&got, &opts); err != ErrBusyTimeout {
		t.Fatalf("initPanel() error = %v, want ErrBusyTimeout", err)
	}

	// The sequence must stop before panel setting.
	diffRecords(t, got.records, []record{{cmd: powerOn}})
}

func TestClearPanel(t *testing.T) {
	var got fakeController

	opts := Opts{Width: 16, Height: 4}
	if err := clearPanel(&got, &opts); err != nil {
		t.Fatalf("clearPanel() error: %v", err)
	}

	white := whiteBuffer(16 * 4 / 4)
	diffRecords(t, got.records, []record{
		{cmd: dataStartTransmission1, data: white},
		{cmd: dataStartTransmission2, data: white},
		{cmd: displayRefresh},
	})
}

func TestDisplayBuffer(t *testing.T) {
	var got fakeController

	buf := []byte{0x01, 0x23, 0x45}
	if err := displayBuffer(&got, buf); err != nil {
		t.Fatalf("displayBuffer() error: %v", err)
	}

	diffRecords(t, got.records, []record{
		{cmd: dataStartTransmission1, data: buf},
		{cmd: dataStartTransmission2, data: buf},
		{cmd: displayRefresh},
	})
}

func TestRefreshTimeoutSurfaces(t *testing.T) {
	got := fakeController{busyErr: ErrBusyTimeout}

	if err := refresh(&got); err != ErrBusyTimeout {
		t.Fatalf("refresh() error = %v, want ErrBusyTimeout", err)
	}
	if diff := cmp.Diff(got.waits, []time.Duration{refreshBusyTimeout}); diff != "" {
		t.Errorf("busy wait budgets (-got +want):\n%s", diff)
	}
}

func TestSleepPanel(t *testing.T) {
	var got fakeController

	if err := sleepPanel(&got); err != nil {
		t.Fatalf("sleepPanel() error: %v", err)
	}

	diffRecords(t, got.records, []record{
		{cmd: powerOff},
		{cmd: deepSleep, data: []byte{deepSleepCheck}},
	})

	if diff := cmp.Diff(got.waits, []time.Duration{powerOffBusyTimeout}); diff != "" {
		t.Errorf("busy wait budgets (-got +want):\n%s", diff)
	}
}

func TestSleepPanelPowerOffTimeout(t *testing.T) {
	got := fakeController{busyErr: ErrBusyTimeout}

	if err := sleepPanel(&got); err != ErrBusyTimeout {
		t.Fatalf("sleepPanel() error = %v, want ErrBusyTimeout", err)
	}

	// Deep sleep must still be sent; a late power-off is no reason to
	// leave the controller awake.
	diffRecords(t, got.records, []record{
		{cmd: powerOff},
		{cmd: deepSleep, data: []byte{deepSleepCheck}},
	})
}
