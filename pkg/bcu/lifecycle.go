package bcu

import (
	"errors"
	"fmt"

	"github.com/selfbus/bcu-go/pkg/comobj"
	"github.com/selfbus/bcu-go/pkg/memory"
	"github.com/selfbus/bcu-go/pkg/usermem"
)

// Commit triggers besides the periodic flush.
const (
	TriggerEnd         = "end"
	TriggerReset       = "reset"
	TriggerVoltageFail = "voltage-fail"
)

// runStateRunning is the application run state of a started device.
const runStateRunning = 1

// statusRunning enables the protocol layers and selects user mode.
const statusRunning = usermem.StatusLink | usermem.StatusTransport | usermem.StatusApp | usermem.StatusUserMode

// Start completes the boot sequence. The observer receives
// RECALL_APP_STARTUP and the device accepts telegrams afterwards.
func (d *Device) Start() error {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	switch d.State() {
	case StateUninitialized:
		return ErrUninitialized
	case StateHalted:
		return ErrHalted
	case StateRunning:
		return nil
	case StateInitialized:
	default:
		return fmt.Errorf("%w: start in state %s", ErrNotRunning, d.State())
	}
	return d.startLocked(ReasonRecallAppStartup)
}

func (d *Device) startLocked(reason Reason) error {
	if _, err := d.ram.UpdateStatus(statusRunning, 0); err != nil {
		return err
	}
	if err := d.ram.SetRunState(runStateRunning); err != nil {
		return err
	}
	if err := d.writeApplication(); err != nil {
		return err
	}
	d.flushPending = false
	d.lastGroupSend = d.clock.Millis() - d.groupIntervalMillis()
	d.transition(StateRunning, reason)
	return nil
}

// writeApplication stores the configured application identity if it
// differs from the EEPROM content.
func (d *Device) writeApplication() error {
	app := d.cfg.Application
	if app.IsZero() {
		return nil
	}
	e := d.eeprom
	m, err := e.Manufacturer()
	if err != nil {
		return err
	}
	dt, err := e.DeviceType()
	if err != nil {
		return err
	}
	v, err := e.Version()
	if err != nil {
		return err
	}
	if m == app.Manufacturer && dt == app.DeviceType && v == app.Version {
		return nil
	}
	pei, err := e.AppPeiType()
	if err != nil {
		return err
	}
	return e.SetApplication(app.Manufacturer, app.DeviceType, app.Version, pei)
}

// Loop runs one iteration of the main loop: it sends at most one pending
// group telegram and commits a modified EEPROM once the bus has been idle
// for the flush delay.
func (d *Device) Loop() error {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	switch d.State() {
	case StateUninitialized:
		return ErrUninitialized
	case StateHalted:
		return ErrHalted
	case StateRunning:
	default:
		return nil
	}

	now := d.clock.Millis()
	if d.bus.Idle() && now-d.lastGroupSend >= d.groupIntervalMillis() {
		sent, err := d.comObjects.SendNext(d.sender())
		if sent {
			d.lastGroupSend = now
		}
		if err != nil && !errors.Is(err, comobj.ErrNoTable) {
			d.logError(err, "send group telegram", false)
		}
	}

	if !d.eeprom.Modified() {
		d.flushPending = false
		return nil
	}
	if !d.bus.Idle() {
		return nil
	}
	if !d.flushPending {
		d.flushPending = true
		d.flushAt = now + uint32(d.cfg.FlushDelay.Milliseconds())
		return nil
	}
	if int32(now-d.flushAt) < 0 {
		return nil
	}
	return d.flushLocked()
}

func (d *Device) groupIntervalMillis() uint32 {
	return uint32(d.cfg.GroupTelegramInterval.Milliseconds())
}

// Flush commits the EEPROM shadow now. The observer receives FLASH
// exactly once, before the commit starts. A commit failure halts the
// device.
func (d *Device) Flush() error {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	switch d.State() {
	case StateUninitialized:
		return ErrUninitialized
	case StateHalted:
		return ErrHalted
	case StateRunning, StateInitialized:
	default:
		return fmt.Errorf("%w: flush in state %s", ErrNotRunning, d.State())
	}
	return d.flushLocked()
}

func (d *Device) flushLocked() error {
	back := d.State()
	d.flushPending = false
	d.transition(StateFlashing, ReasonFlash)
	if err := d.commitLocked(memory.TriggerFlush); err != nil {
		return err
	}
	d.transition(back, 0)
	return nil
}

// commitLocked writes the shadow to flash and halts the device on failure.
func (d *Device) commitLocked(trigger string) error {
	if err := d.eeprom.Region().Flush(trigger); err != nil {
		d.halt(err)
		return fmt.Errorf("%w: %w", ErrHalted, err)
	}
	return nil
}

// End shuts the device down in order: the observer receives BCU_END and
// pending EEPROM changes are committed. Start resumes operation.
func (d *Device) End() error {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	switch d.State() {
	case StateUninitialized:
		return ErrUninitialized
	case StateHalted:
		return ErrHalted
	case StateInitialized:
		return nil
	}
	d.notify(ReasonBcuEnd)
	if err := d.commitLocked(TriggerEnd); err != nil {
		return err
	}
	d.transition(StateInitialized, 0)
	return nil
}

// Restart handles a restart request: the observer receives RESET, the
// EEPROM is committed and the device waits in Reset for Reboot.
func (d *Device) Restart() error {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	switch d.State() {
	case StateUninitialized:
		return ErrUninitialized
	case StateHalted:
		return ErrHalted
	case StateRunning, StateInitialized:
	default:
		return fmt.Errorf("%w: restart in state %s", ErrNotRunning, d.State())
	}
	d.transition(StateReset, ReasonReset)
	return d.commitLocked(TriggerReset)
}

// BusVoltageFail handles loss of bus power: the observer receives
// STORE_APP_BUS_VOLTAGE_FAIL, the EEPROM is committed immediately and the
// device resets.
func (d *Device) BusVoltageFail() error {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	switch d.State() {
	case StateUninitialized:
		return ErrUninitialized
	case StateHalted:
		return ErrHalted
	case StateRunning, StateInitialized:
	default:
		return fmt.Errorf("%w: voltage fail in state %s", ErrNotRunning, d.State())
	}
	d.transition(StateBusVoltageFail, ReasonStoreAppBusVoltageFail)
	if err := d.commitLocked(TriggerVoltageFail); err != nil {
		return err
	}
	d.transition(StateReset, ReasonReset)
	return nil
}

// Reboot boots a device waiting in Reset: the EEPROM shadow is reloaded
// from flash, RAM is cleared and the observer receives RECALL_APP_OTHER.
func (d *Device) Reboot() error {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	switch d.State() {
	case StateUninitialized:
		return ErrUninitialized
	case StateHalted:
		return ErrHalted
	case StateReset:
	default:
		return fmt.Errorf("%w: reboot in state %s", ErrNotRunning, d.State())
	}
	if err := d.eeprom.Region().Load(); err != nil {
		return err
	}
	if err := d.ram.Reset(); err != nil {
		return err
	}
	d.transition(StateInitialized, 0)
	return d.startLocked(ReasonRecallAppOther)
}
