package bcu

import (
	"time"

	"github.com/selfbus/bcu-go/pkg/hal"
	"github.com/selfbus/bcu-go/pkg/log"
)

// MaxGroupTelegramsPerSecond limits group sends to protect the transmit
// circuit from overheating.
const MaxGroupTelegramsPerSecond = 28

// Application identifies the application program a device runs.
type Application struct {
	Manufacturer uint16
	DeviceType   uint16
	Version      byte
}

// IsZero reports whether no application is configured.
func (a Application) IsZero() bool {
	return a == Application{}
}

// Config configures a Device.
type Config struct {
	// FlushDelay is how long the bus must stay idle after an EEPROM
	// change before the shadow is committed.
	FlushDelay time.Duration

	// GroupTelegramInterval is the minimum time between two group sends.
	GroupTelegramInterval time.Duration

	// CommitRetries is how often a failed page commit is retried before
	// the device halts.
	CommitRetries int

	// Application, if set, is written to the EEPROM identity fields at
	// Start.
	Application Application

	// Clock is the system tick. Defaults to a wall clock.
	Clock hal.Clock

	// Interrupts is the interrupt controller. Defaults to none.
	Interrupts hal.Interrupts

	// Observer receives lifecycle notifications.
	Observer Observer

	// Logger receives device events. If nil, logging is disabled.
	Logger log.Logger

	// SessionID identifies this boot in events. Generated when empty.
	SessionID string
}

// DefaultConfig returns a Config with the firmware defaults.
func DefaultConfig() Config {
	return Config{
		FlushDelay:            50 * time.Millisecond,
		GroupTelegramInterval: time.Second / MaxGroupTelegramsPerSecond,
		CommitRetries:         1,
	}
}

// Option changes a Config.
type Option func(*Config)

// WithLogger sets the event logger.
func WithLogger(l log.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithObserver registers the lifecycle observer. A device has exactly one.
func WithObserver(o Observer) Option {
	return func(c *Config) { c.Observer = o }
}

// WithFlushDelay sets the idle time before a modified EEPROM is flushed.
func WithFlushDelay(d time.Duration) Option {
	return func(c *Config) { c.FlushDelay = d }
}

// WithClock sets the system tick.
func WithClock(clk hal.Clock) Option {
	return func(c *Config) { c.Clock = clk }
}

// WithInterrupts sets the interrupt controller.
func WithInterrupts(irq hal.Interrupts) Option {
	return func(c *Config) { c.Interrupts = irq }
}

// WithApplication sets the application identity written at Start.
func WithApplication(a Application) Option {
	return func(c *Config) { c.Application = a }
}

// WithGroupTelegramRate limits group sends to perSecond telegrams. Values
// outside 1..MaxGroupTelegramsPerSecond are ignored.
func WithGroupTelegramRate(perSecond int) Option {
	return func(c *Config) {
		if perSecond > 0 && perSecond <= MaxGroupTelegramsPerSecond {
			c.GroupTelegramInterval = time.Second / time.Duration(perSecond)
		}
	}
}

// WithSessionID fixes the session ID stamped on events.
func WithSessionID(id string) Option {
	return func(c *Config) { c.SessionID = id }
}
