package bcu

import "fmt"

// State is the lifecycle state of a device.
type State uint8

const (
	// StateUninitialized - nothing built yet.
	StateUninitialized State = iota

	// StateInitialized - components built, shadow loaded from flash.
	StateInitialized

	// StateRunning - telegrams are processed.
	StateRunning

	// StateFlashing - the EEPROM shadow is being committed.
	StateFlashing

	// StateBusVoltageFail - emergency commit after losing bus power.
	StateBusVoltageFail

	// StateReset - the device is about to restart.
	StateReset

	// StateHalted - a fatal error stopped the device.
	StateHalted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateInitialized:
		return "INITIALIZED"
	case StateRunning:
		return "RUNNING"
	case StateFlashing:
		return "FLASHING"
	case StateBusVoltageFail:
		return "BUS_VOLTAGE_FAIL"
	case StateReset:
		return "RESET"
	case StateHalted:
		return "HALTED"
	default:
		return "UNKNOWN"
	}
}

// Reason is a lifecycle notification.
type Reason uint8

const (
	ReasonReset                  Reason = 1
	ReasonFlash                  Reason = 2
	ReasonBcuEnd                 Reason = 3
	ReasonRecallAppStartup       Reason = 4
	ReasonRecallAppInit          Reason = 5
	ReasonRecallAppOther         Reason = 6
	ReasonStoreAppDownload       Reason = 0x80
	ReasonStoreAppBusVoltageFail Reason = 0x81
)

// String returns the notification name.
func (r Reason) String() string {
	switch r {
	case ReasonReset:
		return "reset"
	case ReasonFlash:
		return "flash"
	case ReasonBcuEnd:
		return "bcu_end"
	case ReasonRecallAppStartup:
		return "recallAppStartup"
	case ReasonRecallAppInit:
		return "recallAppInit"
	case ReasonRecallAppOther:
		return "recallAppOther"
	case ReasonStoreAppDownload:
		return "storeAppDownload"
	case ReasonStoreAppBusVoltageFail:
		return "storeAppBusVoltageFail"
	default:
		return fmt.Sprintf("Reason(0x%02x)", uint8(r))
	}
}

// Observer receives lifecycle notifications. Notify runs synchronously on
// the goroutine driving the transition. It must not call back into the
// device's lifecycle operations (Start, Flush, Loop, End, Restart,
// BusVoltageFail); reading and writing com objects is fine.
type Observer interface {
	// Notify announces a transition before it completes.
	Notify(reason Reason)

	// Halted reports the error that stopped the device.
	Halted(err error)
}

// ObserverFunc adapts a function to an Observer that ignores halts.
type ObserverFunc func(reason Reason)

// Notify calls f.
func (f ObserverFunc) Notify(reason Reason) { f(reason) }

// Halted does nothing.
func (ObserverFunc) Halted(error) {}

type noopObserver struct{}

func (noopObserver) Notify(Reason) {}
func (noopObserver) Halted(error)  {}

var (
	_ Observer = ObserverFunc(nil)
	_ Observer = noopObserver{}
)
