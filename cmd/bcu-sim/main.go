// Command bcu-sim runs a simulated bus coupling unit on the host.
//
// The simulator boots a BCU variant from a board descriptor, keeps its
// physical flash in a state file across runs and offers:
//   - An interactive console for inspecting memory, com objects and properties
//   - Application download from a YAML image, directly or over the bus
//   - Replay of telegram traces (YAML scripts or CBOR traces)
//   - A CBOR event log readable with bcu-log
//
// Usage:
//
//	bcu-sim [flags] <command> [args]
//
// Commands:
//
//	boards             List the embedded board descriptors
//	run                Boot and open the interactive console
//	download <image>   Boot, download an application image and save
//	replay <trace>     Boot and replay a telegram script or trace
//
// Flags:
//
//	-config string       YAML configuration file; flags override it
//	-board string        Board name or descriptor file (default "4te-bcu2")
//	-state string        Flash image file kept across runs
//	-address string      Physical address to program at boot
//	-peer string         Address the simulator sends from (default "15.15.250")
//	-event-log string    CBOR event log file
//	-log-level string    Log level: debug, info, warn, error (default "info")
//	-clock string        Tick source: wall or sim (default "wall")
//	-flush-delay dur     Bus idle time before an EEPROM commit (default 50ms)
//	-group-rate int      Group telegrams per second (default 28)
//	-tick dur            Console main loop interval (default 10ms)
//	-image string        Application image downloaded by run at boot
//	-over-bus            Download with memory write telegrams
//	-record string       Write the device's replies during replay as a CBOR trace
//
// Examples:
//
//	# Boot a BCU2 and keep its flash in bcu2.flash
//	bcu-sim -board 4te-bcu2 -state bcu2.flash -address 1.1.5 run
//
//	# Download a dimmer application over the bus
//	bcu-sim -state bcu2.flash -over-bus download dimmer.yaml
//
//	# Replay a script and record the replies
//	bcu-sim -state bcu2.flash -record replies.cbor replay steps.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/selfbus/bcu-go/cmd/bcu-sim/interactive"
	"github.com/selfbus/bcu-go/pkg/bcu"
	"github.com/selfbus/bcu-go/pkg/board"
	"github.com/selfbus/bcu-go/pkg/telegram"
)

// Config holds the simulator configuration.
type Config struct {
	Board      string        `yaml:"board"`
	State      string        `yaml:"state"`
	Address    string        `yaml:"address"`
	Peer       string        `yaml:"peer"`
	EventLog   string        `yaml:"event_log"`
	LogLevel   string        `yaml:"log_level"`
	Clock      string        `yaml:"clock"`
	FlushDelay time.Duration `yaml:"flush_delay"`
	GroupRate  int           `yaml:"group_rate"`
	Tick       time.Duration `yaml:"tick"`
	Image      string        `yaml:"image"`
	OverBus    bool          `yaml:"over_bus"`

	// Record is only taken from the command line.
	Record string `yaml:"-"`
}

// DefaultConfig returns the configuration used without flags or file.
func DefaultConfig() Config {
	return Config{
		Board:      "4te-bcu2",
		Peer:       "15.15.250",
		LogLevel:   "info",
		Clock:      "wall",
		FlushDelay: bcu.DefaultConfig().FlushDelay,
		GroupRate:  bcu.MaxGroupTelegramsPerSecond,
		Tick:       10 * time.Millisecond,
	}
}

func (c *Config) validate() error {
	switch c.Clock {
	case "wall", "sim":
	default:
		return fmt.Errorf("unknown clock %q (use wall or sim)", c.Clock)
	}
	if c.Address != "" {
		if _, err := telegram.ParsePhysical(c.Address); err != nil {
			return fmt.Errorf("address: %w", err)
		}
	}
	if _, err := telegram.ParsePhysical(c.Peer); err != nil {
		return fmt.Errorf("peer: %w", err)
	}
	if c.Tick <= 0 {
		return fmt.Errorf("tick must be positive, got %s", c.Tick)
	}
	if c.GroupRate < 0 {
		return fmt.Errorf("group rate must not be negative, got %d", c.GroupRate)
	}
	return nil
}

// parseConfig parses the flags, merging a configuration file under them.
// It returns the remaining arguments.
func parseConfig(args []string, stderr io.Writer) (Config, []string, error) {
	cfg := DefaultConfig()
	var configFile string

	fs := flag.NewFlagSet("bcu-sim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(stderr) }
	fs.StringVar(&configFile, "config", "", "YAML configuration file")
	fs.StringVar(&cfg.Board, "board", cfg.Board, "Board name or descriptor file")
	fs.StringVar(&cfg.State, "state", cfg.State, "Flash image file kept across runs")
	fs.StringVar(&cfg.Address, "address", cfg.Address, "Physical address to program at boot")
	fs.StringVar(&cfg.Peer, "peer", cfg.Peer, "Address the simulator sends from")
	fs.StringVar(&cfg.EventLog, "event-log", cfg.EventLog, "CBOR event log file")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.Clock, "clock", cfg.Clock, "Tick source: wall or sim")
	fs.DurationVar(&cfg.FlushDelay, "flush-delay", cfg.FlushDelay, "Bus idle time before an EEPROM commit")
	fs.IntVar(&cfg.GroupRate, "group-rate", cfg.GroupRate, "Group telegrams per second")
	fs.DurationVar(&cfg.Tick, "tick", cfg.Tick, "Console main loop interval")
	fs.StringVar(&cfg.Image, "image", cfg.Image, "Application image downloaded by run at boot")
	fs.BoolVar(&cfg.OverBus, "over-bus", cfg.OverBus, "Download with memory write telegrams")
	fs.StringVar(&cfg.Record, "record", "", "Write replies during replay as a CBOR trace")

	if err := fs.Parse(args); err != nil {
		return cfg, nil, err
	}

	if configFile != "" {
		// Flags given on the command line win over the file.
		set := make(map[string]string)
		fs.Visit(func(f *flag.Flag) { set[f.Name] = f.Value.String() })

		data, err := os.ReadFile(configFile)
		if err != nil {
			return cfg, nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, nil, fmt.Errorf("parsing config %s: %w", configFile, err)
		}
		for name, value := range set {
			if err := fs.Set(name, value); err != nil {
				return cfg, nil, err
			}
		}
	}

	return cfg, fs.Args(), cfg.validate()
}

func main() {
	cfg, args, err := parseConfig(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if len(args) == 0 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	logger := newLogger(os.Stderr, cfg.LogLevel)

	switch cmd, rest := args[0], args[1:]; cmd {
	case "boards":
		err = runBoards(os.Stdout)
	case "run":
		err = runConsole(cfg, logger)
	case "download":
		if len(rest) != 1 {
			err = errors.New("usage: bcu-sim [flags] download <image>")
			break
		}
		err = runDownload(cfg, logger, rest[0])
	case "replay":
		if len(rest) != 1 {
			err = errors.New("usage: bcu-sim [flags] replay <trace>")
			break
		}
		cfg.Clock = "sim"
		err = runReplay(cfg, logger, rest[0], os.Stdout)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		printUsage(os.Stderr)
		err = fmt.Errorf("unknown command: %s", cmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `bcu-sim - simulated bus coupling unit

Usage:
  bcu-sim [flags] <command> [args]

Commands:
  boards             List the embedded board descriptors
  run                Boot and open the interactive console
  download <image>   Boot, download an application image and save
  replay <trace>     Boot and replay a telegram script (.yaml) or CBOR trace

Run 'bcu-sim -h' for the flags.
`)
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func runBoards(w io.Writer) error {
	names, err := board.Available()
	if err != nil {
		return err
	}
	for _, name := range names {
		b, err := board.Load(name)
		if err != nil {
			return err
		}
		features := make([]string, len(b.Features))
		for i, f := range b.Features {
			features[i] = string(f)
		}
		fmt.Fprintf(w, "%-18s %-9s flash %6d bytes / %4d  %s\n",
			b.Name, b.Variant, b.Flash.Size, b.Flash.PageSize, strings.Join(features, ","))
		for _, warning := range b.Validate().Warnings {
			fmt.Fprintf(w, "  warning: %s\n", warning)
		}
	}
	return nil
}

func runConsole(cfg Config, logger *slog.Logger) (err error) {
	s, err := NewSimulator(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.Close()) }()

	if cfg.Image != "" {
		if _, err := s.Download(cfg.Image, cfg.OverBus); err != nil {
			return fmt.Errorf("downloading %s: %w", cfg.Image, err)
		}
	}

	console, err := interactive.New(s, cfg.Tick)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	console.Run(ctx, cancel)
	return nil
}

func runDownload(cfg Config, logger *slog.Logger, path string) (err error) {
	s, err := NewSimulator(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.Close()) }()

	dl, err := s.Download(path, cfg.OverBus)
	if err != nil {
		return err
	}
	logger.Info("application downloaded",
		"image", filepath.Base(path), "segments", len(dl.Segments), "bytes", dl.Size(), "over_bus", cfg.OverBus)
	return nil
}

func runReplay(cfg Config, logger *slog.Logger, path string, w io.Writer) (err error) {
	records, err := loadRecords(path)
	if err != nil {
		return err
	}

	s, err := NewSimulator(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.Close()) }()

	replies, err := s.Replay(records, w)
	if err != nil {
		return err
	}
	if cfg.Record == "" {
		return nil
	}
	f, err := os.Create(cfg.Record)
	if err != nil {
		return err
	}
	defer f.Close()
	return telegram.WriteTrace(f, replies)
}

// loadRecords reads a YAML script or a CBOR trace, by extension.
func loadRecords(path string) ([]telegram.Record, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		script, err := telegram.ParseScript(data)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		return script.Records(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return telegram.ReadTrace(f)
}
