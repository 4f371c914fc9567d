package telegram

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML accepts "1/2/3", "1.1.5" or a number.
func (a *Address) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	var (
		v   Address
		err error
	)
	switch {
	case strings.Contains(s, "/"):
		v, err = ParseGroup(s)
	case strings.Contains(s, "."):
		v, err = ParsePhysical(s)
	default:
		v, err = parseRaw(s)
	}
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*a = v
	return nil
}

// UnmarshalYAML accepts a service name ("GroupValueWrite") or a number.
func (a *APCI) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if v, ok := ParseAPCI(s); ok {
		*a = v
		return nil
	}
	n, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return fmt.Errorf("line %d: unknown APCI %q", value.Line, s)
	}
	*a = APCI(n)
	return nil
}

// Script is a human-written telegram sequence for the simulator.
type Script struct {
	Steps []Step `yaml:"steps"`
}

// Step is one scripted telegram, injected after DelayMs of bus time.
type Step struct {
	DelayMs  uint32   `yaml:"delay_ms"`
	Telegram Telegram `yaml:",inline"`
}

// ParseScript parses a YAML telegram script.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing script: %w", err)
	}
	return &s, nil
}

// Records converts the script to trace records.
func (s *Script) Records() []Record {
	out := make([]Record, len(s.Steps))
	for i, st := range s.Steps {
		out[i] = Record{DelayMs: st.DelayMs, Telegram: st.Telegram}
	}
	return out
}
