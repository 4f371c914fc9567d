package log

import (
	"context"
	"fmt"
	"log/slog"
)

// SlogAdapter writes device events to an slog.Logger at Debug level,
// errors at Error level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("session", event.SessionID),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.Variant != "" {
		attrs = append(attrs, slog.String("variant", event.Variant))
	}
	if event.Tick != 0 {
		attrs = append(attrs, slog.Uint64("tick", uint64(event.Tick)))
	}

	level := slog.LevelDebug

	switch {
	case event.Telegram != nil:
		tg := event.Telegram
		attrs = append(attrs,
			slog.String("direction", event.Direction.String()),
			slog.String("src", fmt.Sprintf("0x%04X", tg.Source)),
			slog.String("dst", fmt.Sprintf("0x%04X", tg.Dest)),
			slog.Bool("group", tg.Group),
			slog.String("apci", fmt.Sprintf("0x%03X", tg.APCI)),
			slog.Int("payload_len", len(tg.Payload)),
		)
		if tg.Dropped {
			attrs = append(attrs, slog.String("dropped", tg.DropReason))
		}
	case event.Lifecycle != nil:
		attrs = append(attrs,
			slog.String("old_state", event.Lifecycle.OldState),
			slog.String("new_state", event.Lifecycle.NewState),
		)
		if event.Lifecycle.Notification != "" {
			attrs = append(attrs, slog.String("notification", event.Lifecycle.Notification))
		}
	case event.Commit != nil:
		attrs = append(attrs,
			slog.String("region", event.Commit.Region),
			slog.Int("pages_written", event.Commit.PagesWritten),
			slog.Int("pages_skipped", event.Commit.PagesSkipped),
			slog.String("trigger", event.Commit.Trigger),
		)
		if event.Commit.Failed {
			level = slog.LevelError
			attrs = append(attrs, slog.Int("attempts", event.Commit.Attempts))
		}
	case event.Memory != nil:
		attrs = append(attrs,
			slog.String("space", event.Memory.Space),
			slog.String("address", fmt.Sprintf("0x%04X", event.Memory.Address)),
			slog.Int("length", event.Memory.Length),
			slog.Bool("write", event.Memory.Write),
		)
	case event.Error != nil:
		level = slog.LevelError
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
			slog.Bool("fatal", event.Error.Fatal),
		)
	}

	a.logger.LogAttrs(context.Background(), level, "bcu", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
