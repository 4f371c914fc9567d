package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/selfbus/bcu-go/pkg/log"
	"github.com/selfbus/bcu-go/pkg/telegram"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Sessions          map[string]*SessionStats
	Groups            map[uint16]int
	Dropped           int
	PagesWritten      int
	FailedCommits     int
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// SessionStats holds statistics for one boot of the device.
type SessionStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Variant   string
	Commits   int
	Halted    bool
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Sessions:          make(map[string]*SessionStats),
		Groups:            make(map[uint16]int),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}

	printStats(w, stats)
	return nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	sess, ok := s.Sessions[event.SessionID]
	if !ok {
		sess = &SessionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Sessions[event.SessionID] = sess
	}
	sess.Events++
	if event.Timestamp.After(sess.LastSeen) {
		sess.LastSeen = event.Timestamp
	}
	if event.Variant != "" && sess.Variant == "" {
		sess.Variant = event.Variant
	}

	switch {
	case event.Telegram != nil:
		s.EventsByDirection[event.Direction]++
		if event.Telegram.Dropped {
			s.Dropped++
		}
		if event.Telegram.Group {
			s.Groups[event.Telegram.Dest]++
		}
	case event.Commit != nil:
		sess.Commits++
		s.PagesWritten += event.Commit.PagesWritten
		if event.Commit.Failed {
			s.FailedCommits++
		}
	case event.Error != nil:
		s.Errors++
		if event.Error.Fatal {
			sess.Halted = true
		}
	}
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== BCU Event Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerMemory, log.LayerTables, log.LayerDevice} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for c := log.CategoryTelegram; c <= log.CategoryMemory; c++ {
		if count := stats.EventsByCategory[c]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", c.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Telegrams:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	if stats.Dropped > 0 {
		fmt.Fprintf(w, "  %-12s %d\n", "DROPPED:", stats.Dropped)
	}
	if len(stats.Groups) > 0 {
		groups := make([]uint16, 0, len(stats.Groups))
		for g := range stats.Groups {
			groups = append(groups, g)
		}
		sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })
		fmt.Fprintln(w, "  Group addresses:")
		for _, g := range groups {
			fmt.Fprintf(w, "    %-10s %d\n", telegram.Address(g).Group(), stats.Groups[g])
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Flash: %d pages written", stats.PagesWritten)
	if stats.FailedCommits > 0 {
		fmt.Fprintf(w, ", %d failed commits", stats.FailedCommits)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Sessions: %d\n", len(stats.Sessions))
	if len(stats.Sessions) > 0 {
		type sessionInfo struct {
			id    string
			stats *SessionStats
		}
		sessions := make([]sessionInfo, 0, len(stats.Sessions))
		for id, ss := range stats.Sessions {
			sessions = append(sessions, sessionInfo{id, ss})
		}
		sort.Slice(sessions, func(i, j int) bool {
			return sessions[i].stats.FirstSeen.Before(sessions[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, s := range sessions {
			duration := s.stats.LastSeen.Sub(s.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenSessionID(s.id), s.stats.Events, duration)
			if s.stats.Variant != "" {
				fmt.Fprintf(w, "           Variant: %s\n", s.stats.Variant)
			}
			if s.stats.Commits > 0 {
				fmt.Fprintf(w, "           Commits: %d\n", s.stats.Commits)
			}
			if s.stats.Halted {
				fmt.Fprintln(w, "           Halted")
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
