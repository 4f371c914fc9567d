// Command bcu-log is a tool for viewing and analyzing BCU event logs.
//
// Event logs are written by bcu-sim with the -event-log flag.
//
// Usage:
//
//	bcu-log <command> [flags] <file.blog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSON or CSV format
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View all events
//	bcu-log view device.blog
//
//	# View only incoming telegrams
//	bcu-log view --category telegram --direction in device.blog
//
//	# Keep the traffic of one group address
//	bcu-log filter --group 1/0/1 -o switch.blog device.blog
//
//	# Show statistics
//	bcu-log stats device.blog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/selfbus/bcu-go/cmd/bcu-log/commands"
)

const usage = `bcu-log - BCU Event Log Analyzer

Usage:
  bcu-log <command> [flags] <file.blog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSON or CSV format
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

Use "bcu-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// logPath returns the single positional argument or exits.
func logPath(fs *flag.FlagSet) string {
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `bcu-log view - View log file in human-readable format

Usage:
  bcu-log view [flags] <file.blog>

Flags:
`)
		fs.PrintDefaults()
	}

	layer := fs.String("layer", "", "Filter by layer (memory, tables, device)")
	direction := fs.String("direction", "", "Filter telegrams by direction (in, out)")
	category := fs.String("category", "", "Filter by category (telegram, lifecycle, commit, memory, error)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := logPath(fs)

	var filter commands.ViewFilter
	if *layer != "" {
		l, err := commands.ParseLayerFlag(*layer)
		if err != nil {
			fail(err)
		}
		filter.Layer = &l
	}
	if *direction != "" {
		d, err := commands.ParseDirectionFlag(*direction)
		if err != nil {
			fail(err)
		}
		filter.Direction = &d
	}
	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			fail(err)
		}
		filter.Category = &c
	}

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `bcu-log export - Export log file to JSON or CSV format

Usage:
  bcu-log export [flags] <file.blog>

Flags:
`)
		fs.PrintDefaults()
	}

	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := logPath(fs)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `bcu-log filter - Filter log file and write to new file

Usage:
  bcu-log filter [flags] <file.blog>

Flags:
`)
		fs.PrintDefaults()
	}

	var opts commands.FilterOptions
	fs.StringVar(&opts.Output, "o", "", "Output file (required)")
	fs.StringVar(&opts.SessionID, "session", "", "Filter by boot session ID")
	fs.StringVar(&opts.Variant, "variant", "", "Filter by variant (BCU1, BCU2, MASK0701, MASK0705, SYSTEMB)")
	fs.StringVar(&opts.Group, "group", "", "Filter telegrams by group address (e.g. 1/0/1)")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (memory, tables, device)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter telegrams by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (telegram, lifecycle, commit, memory, error)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := logPath(fs)

	if opts.Output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	n, err := commands.RunFilter(path, opts)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Filtered %d events to %s\n", n, opts.Output)
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `bcu-log stats - Show statistics about the log file

Usage:
  bcu-log stats <file.blog>

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := logPath(fs)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
