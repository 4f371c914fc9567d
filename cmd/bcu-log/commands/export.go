package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/selfbus/bcu-go/pkg/log"
	"github.com/selfbus/bcu-go/pkg/telegram"
)

// RunExport exports the log file to the specified format.
func RunExport(path, format, output string) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "session_id", "tick", "variant", "layer", "category", "direction", "type", "detail"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		eventType, detail, dir := "unknown", "", ""
		switch {
		case event.Telegram != nil:
			tg := event.Telegram
			eventType = telegram.APCI(tg.APCI).String()
			dir = event.Direction.String()
			detail = telegram.Telegram{
				Source: telegram.Address(tg.Source), Dest: telegram.Address(tg.Dest),
				Group: tg.Group, APCI: telegram.APCI(tg.APCI), Payload: tg.Payload,
			}.String()
		case event.Lifecycle != nil:
			eventType = "state"
			detail = event.Lifecycle.OldState + "->" + event.Lifecycle.NewState
		case event.Commit != nil:
			eventType = "commit"
			detail = event.Commit.Region + ":" + strconv.Itoa(event.Commit.PagesWritten)
		case event.Memory != nil:
			eventType = "memory"
			detail = fmt.Sprintf("%s:0x%04x+%d", event.Memory.Space, event.Memory.Address, event.Memory.Length)
		case event.Error != nil:
			eventType = "error"
			detail = event.Error.Message
		}

		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.SessionID,
			strconv.FormatUint(uint64(event.Tick), 10),
			event.Variant,
			event.Layer.String(),
			event.Category.String(),
			dir,
			eventType,
			detail,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}
