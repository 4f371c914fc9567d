// Package commands implements the bcu-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/selfbus/bcu-go/pkg/log"
	"github.com/selfbus/bcu-go/pkg/telegram"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Layer     *log.Layer
	Direction *log.Direction
	Category  *log.Category
}

func (f ViewFilter) matches(e log.Event) bool {
	if f.Layer != nil && e.Layer != *f.Layer {
		return false
	}
	if f.Direction != nil && (e.Telegram == nil || e.Direction != *f.Direction) {
		return false
	}
	if f.Category != nil && e.Category != *f.Category {
		return false
	}
	return true
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [session] tick LAYER Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	session := shortenSessionID(event.SessionID)

	var typeLabel string
	switch {
	case event.Telegram != nil:
		typeLabel = telegram.APCI(event.Telegram.APCI).String()
	case event.Lifecycle != nil:
		typeLabel = "State"
	case event.Commit != nil:
		typeLabel = "Commit"
	case event.Memory != nil:
		typeLabel = "Memory"
	case event.Error != nil:
		typeLabel = "Error"
	default:
		typeLabel = "Unknown"
	}

	dir := ""
	if event.Telegram != nil {
		dir = event.Direction.String()
	}
	fmt.Fprintf(w, "%s [%s] t=%d %-3s %s %s\n", ts, session, event.Tick, dir, event.Layer.String(), typeLabel)

	switch {
	case event.Telegram != nil:
		formatTelegramDetails(w, event.Telegram)
	case event.Lifecycle != nil:
		formatLifecycleDetails(w, event.Lifecycle)
	case event.Commit != nil:
		formatCommitDetails(w, event.Commit)
	case event.Memory != nil:
		formatMemoryDetails(w, event.Memory)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// shortenSessionID returns the first 8 characters of the session ID.
func shortenSessionID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatTelegramDetails(w io.Writer, tg *log.TelegramEvent) {
	dest := telegram.Address(tg.Dest).Physical()
	if tg.Group {
		dest = telegram.Address(tg.Dest).Group()
	}
	fmt.Fprintf(w, "  %s -> %s\n", telegram.Address(tg.Source).Physical(), dest)
	if len(tg.Payload) > 0 {
		fmt.Fprintf(w, "  Payload: %s\n", hex.EncodeToString(tg.Payload))
	}
	if tg.Dropped {
		fmt.Fprintf(w, "  Dropped: %s\n", tg.DropReason)
	}
}

func formatLifecycleDetails(w io.Writer, lc *log.LifecycleEvent) {
	if lc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", lc.OldState, lc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", lc.NewState)
	}
	if lc.Notification != "" {
		fmt.Fprintf(w, "  Notification: %s\n", lc.Notification)
	}
}

func formatCommitDetails(w io.Writer, c *log.CommitEvent) {
	fmt.Fprintf(w, "  Region: %s  Trigger: %s\n", c.Region, c.Trigger)
	fmt.Fprintf(w, "  Pages: %d written, %d skipped\n", c.PagesWritten, c.PagesSkipped)
	if c.Failed {
		fmt.Fprintf(w, "  FAILED after %d attempts\n", c.Attempts)
	}
}

func formatMemoryDetails(w io.Writer, m *log.MemoryEvent) {
	op := "read"
	if m.Write {
		op = "write"
	}
	if m.Space == "PROPERTY" {
		fmt.Fprintf(w, "  Property %s: object %d, pid %d, start %d, %d bytes\n",
			op, m.Address>>16, (m.Address>>8)&0xff, m.Address&0xff, m.Length)
		return
	}
	fmt.Fprintf(w, "  %s %s: 0x%04x, %d bytes\n", m.Space, op, m.Address, m.Length)
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
	if err.Fatal {
		fmt.Fprintln(w, "  Fatal: device halted")
	}
}

// ParseLayerFlag parses a layer string from command-line flag (case-insensitive).
func ParseLayerFlag(s string) (log.Layer, error) {
	return parseLayer(s)
}

func parseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "memory":
		return log.LayerMemory, nil
	case "tables":
		return log.LayerTables, nil
	case "device":
		return log.LayerDevice, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be memory, tables, or device)", s)
	}
}

// ParseDirectionFlag parses a direction string from command-line flag (case-insensitive).
func ParseDirectionFlag(s string) (log.Direction, error) {
	return parseDirection(s)
}

func parseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategoryFlag parses a category string from command-line flag (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	return parseCategory(s)
}

func parseCategory(s string) (log.Category, error) {
	if c, ok := log.ParseCategory(strings.ToUpper(s)); ok {
		return c, nil
	}
	return 0, fmt.Errorf("invalid category: %s (must be telegram, lifecycle, commit, memory, or error)", s)
}

// RunView executes the view command.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if filter.matches(event) {
			formatEvent(output, event)
		}
	}

	return nil
}
