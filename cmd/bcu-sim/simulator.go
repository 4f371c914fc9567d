package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/selfbus/bcu-go/pkg/bcu"
	"github.com/selfbus/bcu-go/pkg/board"
	"github.com/selfbus/bcu-go/pkg/hal"
	"github.com/selfbus/bcu-go/pkg/hal/sim"
	"github.com/selfbus/bcu-go/pkg/image"
	"github.com/selfbus/bcu-go/pkg/log"
	"github.com/selfbus/bcu-go/pkg/persistence"
	"github.com/selfbus/bcu-go/pkg/telegram"
	"github.com/selfbus/bcu-go/pkg/usermem"
)

// Simulator is one simulated device on a board, with its bus and flash.
type Simulator struct {
	mu sync.Mutex

	cfg      Config
	board    *board.Board
	clock    hal.Clock
	simClock *sim.Clock // nil with the wall clock
	flash    *sim.Flash
	bus      *sim.Bus
	dev      *bcu.Device
	peer     telegram.Address

	store     *persistence.FlashStore
	sessions  []persistence.Session
	startedAt time.Time

	events *log.FileLogger
	logger *slog.Logger
}

// NewSimulator boots a device as configured. The flash is restored from the
// state file when one exists.
func NewSimulator(cfg Config, logger *slog.Logger) (*Simulator, error) {
	b, err := board.Resolve(cfg.Board)
	if err != nil {
		return nil, err
	}
	if err := b.Check(); err != nil {
		return nil, err
	}

	s := &Simulator{
		cfg:       cfg,
		board:     b,
		bus:       sim.NewBus(),
		startedAt: time.Now(),
		logger:    logger,
	}
	if s.peer, err = telegram.ParsePhysical(cfg.Peer); err != nil {
		return nil, fmt.Errorf("peer: %w", err)
	}
	if cfg.Clock == "sim" {
		s.simClock = sim.NewClock()
		s.clock = s.simClock
	} else {
		s.clock = sim.NewWallClock()
	}
	s.flash = b.NewFlash(s.simClock)

	if cfg.State != "" {
		s.store = persistence.NewFlashStore(cfg.State)
		img, err := s.store.Load()
		if err != nil {
			return nil, err
		}
		if img != nil {
			if err := img.Restore(s.flash, b.Variant); err != nil {
				return nil, err
			}
			s.sessions = img.Sessions
			logger.Info("flash restored", "state", cfg.State, "saved_at", img.SavedAt.Format(time.RFC3339))
		}
	}

	var loggers []log.Logger
	if cfg.EventLog != "" {
		if s.events, err = log.NewFileLogger(cfg.EventLog); err != nil {
			return nil, fmt.Errorf("opening event log: %w", err)
		}
		loggers = append(loggers, s.events)
	}
	loggers = append(loggers, log.NewSlogAdapter(logger))

	opts := []bcu.Option{
		bcu.WithClock(s.clock),
		bcu.WithInterrupts(sim.NewInterrupts()),
		bcu.WithLogger(log.NewMultiLogger(loggers...)),
		bcu.WithObserver(&lifecycleLogger{logger: logger}),
		bcu.WithFlushDelay(cfg.FlushDelay),
	}
	if cfg.GroupRate > 0 {
		opts = append(opts, bcu.WithGroupTelegramRate(cfg.GroupRate))
	}
	if s.dev, err = bcu.New(b.Variant, s.flash, s.bus, opts...); err != nil {
		s.closeEvents()
		return nil, err
	}

	if cfg.Address != "" {
		own, err := telegram.ParsePhysical(cfg.Address)
		if err != nil {
			s.closeEvents()
			return nil, fmt.Errorf("address: %w", err)
		}
		if err := s.dev.SetOwnAddress(own); err != nil {
			s.closeEvents()
			return nil, err
		}
	}
	if err := s.dev.Start(); err != nil {
		s.closeEvents()
		return nil, err
	}
	if err := s.applyBoard(); err != nil {
		s.closeEvents()
		return nil, err
	}

	own, _ := s.dev.OwnAddress()
	logger.Info("device started",
		"board", b.Name, "variant", b.Variant, "address", own.Physical(), "session", s.dev.SessionID())
	return s, nil
}

// applyBoard sets the RAM options the board enables. RAM is cleared on
// every boot, so this runs after Start and Reboot.
func (s *Simulator) applyBoard() error {
	if !s.board.Has(board.FeatureAutoResponse) {
		return nil
	}
	ram := s.dev.Ram()
	return ram.SetDeviceControl(ram.DeviceControl() | usermem.DeviceControlMemAutoResponse)
}

// Device returns the simulated device.
func (s *Simulator) Device() *bcu.Device { return s.dev }

// Board returns the board descriptor.
func (s *Simulator) Board() *board.Board { return s.board }

// Bus returns the simulated bus.
func (s *Simulator) Bus() *sim.Bus { return s.bus }

// Flash returns the simulated flash.
func (s *Simulator) Flash() *sim.Flash { return s.flash }

// Peer returns the address the simulator sends from.
func (s *Simulator) Peer() telegram.Address { return s.peer }

// Inject delivers t to the device and returns the telegrams it sent in
// reply. A device that restarted is rebooted.
func (s *Simulator) Inject(t telegram.Telegram) ([]telegram.Telegram, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.injectLocked(t)
}

func (s *Simulator) injectLocked(t telegram.Telegram) ([]telegram.Telegram, error) {
	s.bus.Take()
	err := s.dev.Receive(t)
	if rerr := s.rebootIfReset(); rerr != nil {
		return s.bus.Take(), errors.Join(err, rerr)
	}
	return s.bus.Take(), err
}

// Request implements inspect.Link.
func (s *Simulator) Request(ctx context.Context, t telegram.Telegram) ([]telegram.Telegram, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Inject(t)
}

// Tick runs one main loop iteration and returns the telegrams it sent.
// With the simulated clock, time advances by the configured tick first.
func (s *Simulator) Tick() ([]telegram.Telegram, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.simClock != nil {
		s.simClock.Advance(s.cfg.Tick)
	}
	return s.loopLocked()
}

func (s *Simulator) loopLocked() ([]telegram.Telegram, error) {
	s.bus.Take()
	err := s.dev.Loop()
	if rerr := s.rebootIfReset(); rerr != nil {
		err = errors.Join(err, rerr)
	}
	return s.bus.Take(), err
}

func (s *Simulator) rebootIfReset() error {
	if s.dev.State() != bcu.StateReset {
		return nil
	}
	if err := s.dev.Reboot(); err != nil {
		return err
	}
	return s.applyBoard()
}

// Download builds an application image, which must target this board's
// variant, and loads it, either straight into memory or as memory write telegrams from the
// peer. The EEPROM is committed afterwards.
func (s *Simulator) Download(path string, overBus bool) (*image.Download, error) {
	img, err := image.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if img.Variant != s.board.Variant {
		return nil, &bcu.MismatchError{Field: "image variant", Want: s.board.Variant.String(), Got: img.Variant.String()}
	}
	dl, err := image.Build(img)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if overBus {
		own, err := s.dev.OwnAddress()
		if err != nil {
			return nil, err
		}
		for _, t := range dl.Telegrams(s.peer, own) {
			if _, err := s.injectLocked(t); err != nil {
				return nil, fmt.Errorf("telegram %s: %w", t, err)
			}
		}
	} else if err := dl.Apply(s.dev); err != nil {
		return nil, err
	}
	if err := s.dev.Flush(); err != nil {
		return nil, err
	}
	s.logger.Info("image loaded", "name", img.Name, "segments", len(dl.Segments), "bytes", dl.Size())
	return dl, nil
}

// Flush commits the EEPROM now.
func (s *Simulator) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev.Flush()
}

// Restart restarts the device and boots it again.
func (s *Simulator) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.dev.Restart(); err != nil {
		return err
	}
	return s.rebootIfReset()
}

// VoltageFail simulates a bus voltage failure followed by recovery.
func (s *Simulator) VoltageFail() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.dev.BusVoltageFail(); err != nil {
		return err
	}
	return s.rebootIfReset()
}

// Replay feeds records to the device, advancing the simulated clock by each
// record's delay and running the main loop in between. Every telegram is
// printed to w. The device's sends are returned as a trace.
func (s *Simulator) Replay(records []telegram.Record, w io.Writer) ([]telegram.Record, error) {
	if s.simClock == nil {
		return nil, errors.New("replay needs the simulated clock")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []telegram.Record
	last := s.clock.Millis()
	emit := func(sent []telegram.Telegram) {
		for _, t := range sent {
			now := s.clock.Millis()
			fmt.Fprintf(w, "%8d OUT %s\n", now, t)
			out = append(out, telegram.Record{DelayMs: now - last, Telegram: t})
			last = now
		}
	}
	loop := func() error {
		sent, err := s.loopLocked()
		emit(sent)
		if errors.Is(err, bcu.ErrHalted) {
			return err
		}
		if err != nil {
			fmt.Fprintf(w, "%8d ERR %v\n", s.clock.Millis(), err)
		}
		return nil
	}

	for _, r := range records {
		if r.DelayMs > 0 {
			s.simClock.Advance(time.Duration(r.DelayMs) * time.Millisecond)
			if err := loop(); err != nil {
				return out, err
			}
		}
		fmt.Fprintf(w, "%8d IN  %s\n", s.clock.Millis(), r.Telegram)
		sent, err := s.injectLocked(r.Telegram)
		emit(sent)
		switch {
		case errors.Is(err, bcu.ErrHalted):
			return out, err
		case err != nil:
			fmt.Fprintf(w, "%8d ERR %v\n", s.clock.Millis(), err)
		}
	}

	// Let pending group sends go out and the EEPROM settle.
	for i := 0; i < 2; i++ {
		if err := loop(); err != nil {
			return out, err
		}
		s.simClock.Advance(max(s.cfg.FlushDelay, s.cfg.Tick))
	}
	return out, loop()
}

// Save writes the committed flash to the state file.
func (s *Simulator) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Simulator) saveLocked() error {
	if s.store == nil {
		return errors.New("no state file configured")
	}
	if s.dev.State() == bcu.StateRunning && s.dev.Eeprom().Modified() {
		if err := s.dev.Flush(); err != nil {
			return err
		}
	}
	img := persistence.Snapshot(s.flash, s.board.Variant, s.board.Name)
	img.Sessions = slices.Clone(s.sessions)
	img.AddSession(s.dev.SessionID(), s.startedAt)
	if err := s.store.Save(img); err != nil {
		return err
	}
	s.logger.Debug("flash saved", "state", s.store.Path(), "pages_written", s.flash.Stats().Programs)
	return nil
}

// Close stops the device, saves the flash and closes the event log.
func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.dev.State() == bcu.StateRunning {
		errs = append(errs, s.dev.End())
	}
	if s.store != nil {
		errs = append(errs, s.saveLocked())
	}
	errs = append(errs, s.closeEvents())
	return errors.Join(errs...)
}

func (s *Simulator) closeEvents() error {
	if s.events == nil {
		return nil
	}
	err := s.events.Close()
	s.events = nil
	return err
}

// lifecycleLogger reports lifecycle notifications to the diagnostic log.
type lifecycleLogger struct {
	logger *slog.Logger
}

func (l *lifecycleLogger) Notify(reason bcu.Reason) {
	l.logger.Info("lifecycle", "reason", reason)
}

func (l *lifecycleLogger) Halted(err error) {
	l.logger.Error("device halted", "error", err)
}
