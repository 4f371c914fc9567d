// Package board describes the hardware a BCU variant runs on: flash
// geometry and timing, programming button and LED pins, and the optional
// features the firmware enables. Descriptors are YAML files; a set of
// known boards is embedded.
package board

import (
	"embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/selfbus/bcu-go/pkg/bcu"
	"github.com/selfbus/bcu-go/pkg/hal"
	"github.com/selfbus/bcu-go/pkg/hal/sim"
	"github.com/selfbus/bcu-go/pkg/layout"
)

//go:embed boards/*.yaml
var boardFS embed.FS

// Board is a hardware descriptor.
type Board struct {
	Schema      string         `yaml:"schema"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Variant     layout.Variant `yaml:"variant"`
	Flash       Flash          `yaml:"flash"`
	Pins        Pins           `yaml:"pins"`
	Features    []Feature      `yaml:"features"`
}

// Flash is the flash geometry and timing of a board.
type Flash struct {
	Size        int           `yaml:"size"`
	PageSize    int           `yaml:"page_size"`
	EraseTime   time.Duration `yaml:"erase_time"`
	ProgramTime time.Duration `yaml:"program_time"`
}

// Timing returns the documented flash timing.
func (f Flash) Timing() hal.FlashTiming {
	return hal.FlashTiming{Erase: f.EraseTime, Program: f.ProgramTime}
}

// Pins names the programming button and LED pins.
type Pins struct {
	ProgButton   string `yaml:"prog_button"`
	ProgLED      string `yaml:"prog_led"`
	ProgInverted bool   `yaml:"prog_inverted"`
}

// Feature is an optional firmware capability.
type Feature string

// Known features.
const (
	FeatureProperties         Feature = "properties"
	FeatureHighRAM            Feature = "high-ram"
	FeatureAutoResponse       Feature = "auto-response"
	FeatureLoadMemoryServices Feature = "load-memory-services"
)

// Has reports whether the board enables f.
func (b *Board) Has(f Feature) bool {
	for _, x := range b.Features {
		if x == f {
			return true
		}
	}
	return false
}

// Layout returns the memory layout of the board's variant.
func (b *Board) Layout() (layout.Layout, error) {
	return layout.For(b.Variant)
}

// NewFlash creates a simulated flash with the board's geometry and
// timing. If clock is not nil, flash operations advance it.
func (b *Board) NewFlash(clock *sim.Clock) *sim.Flash {
	f := sim.NewFlash(b.Flash.Size, b.Flash.PageSize)
	if b.Flash.EraseTime > 0 || b.Flash.ProgramTime > 0 {
		f.SetTiming(b.Flash.Timing())
	}
	if clock != nil {
		f.AttachClock(clock)
	}
	return f
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

var (
	cacheMu sync.RWMutex
	cache   = make(map[string]*Board)
)

// Parse parses a board descriptor.
func Parse(data []byte) (*Board, error) {
	var b Board
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parsing board: %w", err)
	}
	if b.Schema == "" {
		b.Schema = SchemaCurrent
	}
	s, err := ParseSchema(b.Schema)
	if err != nil {
		return nil, fmt.Errorf("board %q: %w", b.Name, err)
	}
	if !s.Compatible(CurrentSchema()) {
		return nil, fmt.Errorf("board %q: schema %s is not compatible with %s", b.Name, s, SchemaCurrent)
	}
	return &b, nil
}

// LoadFile loads a board descriptor from a file.
func LoadFile(path string) (*Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}

// Load loads an embedded board by name (e.g. "4te-bcu2").
func Load(name string) (*Board, error) {
	cacheMu.RLock()
	if b, ok := cache[name]; ok {
		cacheMu.RUnlock()
		return b, nil
	}
	cacheMu.RUnlock()

	data, err := boardFS.ReadFile("boards/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("board %q not found: %w", name, err)
	}
	b, err := Parse(data)
	if err != nil {
		return nil, err
	}

	cacheMu.Lock()
	cache[name] = b
	cacheMu.Unlock()

	return b, nil
}

// Resolve loads an embedded board by name, or a descriptor file if ref
// names one.
func Resolve(ref string) (*Board, error) {
	if strings.HasSuffix(ref, ".yaml") || strings.HasSuffix(ref, ".yml") || strings.ContainsRune(ref, os.PathSeparator) {
		return LoadFile(ref)
	}
	return Load(ref)
}

// Available returns the names of the embedded boards, sorted.
func Available() ([]string, error) {
	entries, err := boardFS.ReadDir("boards")
	if err != nil {
		return nil, fmt.Errorf("reading boards directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".yaml"); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// ValidationResult holds the outcome of validating a board.
type ValidationResult struct {
	Valid    bool
	Errors   []error
	Warnings []string
}

// Validate checks that the board can host its variant. Every problem that
// would make the device boot into a mismatch is an error.
func (b *Board) Validate() ValidationResult {
	var result ValidationResult

	l, err := b.Layout()
	if err != nil {
		result.Errors = append(result.Errors, err)
		return result
	}

	if b.Flash.PageSize <= 0 || b.Flash.Size <= 0 || b.Flash.Size%b.Flash.PageSize != 0 {
		result.Errors = append(result.Errors, &bcu.MismatchError{
			Field: "flash page size",
			Want:  fmt.Sprintf("a divisor of 0x%x", b.Flash.Size),
			Got:   fmt.Sprintf("0x%x", b.Flash.PageSize),
		})
	}
	if need := l.EEPROM.End(); uint64(b.Flash.Size) < uint64(need) {
		result.Errors = append(result.Errors, &bcu.MismatchError{
			Field: "flash size",
			Want:  fmt.Sprintf(">= 0x%x for %s", need, b.Variant),
			Got:   fmt.Sprintf("0x%x", b.Flash.Size),
		})
	}

	for _, f := range b.Features {
		ok, known := supports(l, f)
		switch {
		case !known:
			result.Warnings = append(result.Warnings, fmt.Sprintf("unknown feature %q", f))
		case !ok:
			result.Errors = append(result.Errors, &bcu.MismatchError{
				Field: "feature " + string(f),
				Want:  "a variant supporting it",
				Got:   b.Variant.String(),
			})
		}
	}
	if l.Properties && !b.Has(FeatureProperties) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%s has interface objects but the board does not list %q", b.Variant, FeatureProperties))
	}
	if b.Pins.ProgButton == "" {
		result.Warnings = append(result.Warnings, "no programming button pin")
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// Check returns the first validation error, or nil.
func (b *Board) Check() error {
	r := b.Validate()
	if len(r.Errors) > 0 {
		return r.Errors[0]
	}
	return nil
}

// supports reports whether layout l can provide f, and whether f is known.
func supports(l layout.Layout, f Feature) (ok, known bool) {
	switch f {
	case FeatureProperties:
		return l.Properties, true
	case FeatureHighRAM:
		return l.HighRAM.Size > 0, true
	case FeatureAutoResponse:
		return l.Variant != layout.BCU1, true
	case FeatureLoadMemoryServices:
		switch l.Variant {
		case layout.MASK0701, layout.MASK0705, layout.SYSTEMB:
			return true, true
		}
		return false, true
	}
	return false, false
}
