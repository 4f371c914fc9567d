// Package interactive provides the interactive command-line interface
// for the simulated BCU.
package interactive

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/selfbus/bcu-go/pkg/bcu"
	"github.com/selfbus/bcu-go/pkg/board"
	"github.com/selfbus/bcu-go/pkg/image"
	"github.com/selfbus/bcu-go/pkg/inspect"
	"github.com/selfbus/bcu-go/pkg/properties"
	"github.com/selfbus/bcu-go/pkg/telegram"
)

// Simulator is the device the console drives. It allows the interactive
// layer to work without depending on the main package.
type Simulator interface {
	inspect.Link

	Device() *bcu.Device
	Board() *board.Board
	Peer() telegram.Address

	// Inject delivers a telegram and returns the replies.
	Inject(t telegram.Telegram) ([]telegram.Telegram, error)

	// Tick runs one main loop iteration and returns the telegrams sent.
	Tick() ([]telegram.Telegram, error)

	Download(path string, overBus bool) (*image.Download, error)
	Flush() error
	Restart() error
	VoltageFail() error
	Save() error
}

// Console handles interactive mode for bcu-sim.
type Console struct {
	sim       Simulator
	inspector *inspect.Inspector
	formatter *inspect.Formatter
	rl        *readline.Instance
	tick      time.Duration

	outMu sync.Mutex
	out   io.Writer
}

// New creates a console on the terminal. The main loop runs every tick
// while the console is open.
func New(sim Simulator, tick time.Duration) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "bcu> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	c := NewWithWriter(sim, rl.Stdout())
	c.rl = rl
	c.tick = tick
	return c, nil
}

// NewWithWriter creates a console without a terminal that writes to w.
// Commands are run with Execute.
func NewWithWriter(sim Simulator, w io.Writer) *Console {
	return &Console{
		sim:       sim,
		inspector: inspect.NewInspector(sim.Device()),
		formatter: inspect.NewFormatter(),
		out:       w,
	}
}

func (c *Console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) print(s string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprint(c.out, s)
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	go c.runLoop(ctx)

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			c.printf("Exiting...\n")
			cancel()
			return
		}

		if quit := c.Execute(line); quit {
			cancel()
			return
		}
	}
}

// runLoop drives the device main loop and prints what it sends.
func (c *Console) runLoop(ctx context.Context) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sent, err := c.sim.Tick()
			c.printSent(sent)
			// The observer already reported the halt.
			if err != nil && !errors.Is(err, bcu.ErrHalted) {
				c.printf("Loop error: %v\n", err)
			}
		}
	}
}

func (c *Console) printSent(sent []telegram.Telegram) {
	for _, t := range sent {
		c.printf("<- %s\n", t)
	}
}

// Execute runs one command line. It returns true when the console should
// exit.
func (c *Console) Execute(line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "status", "s":
		c.cmdStatus()

	case "objects", "obj":
		c.cmdObjects()

	case "groups", "g":
		c.cmdGroups()

	case "props", "p":
		c.cmdProps(args)

	case "read", "r":
		c.cmdRead(args)

	case "write", "w":
		c.cmdWrite(args)

	case "send":
		c.cmdSend(args)

	case "get":
		c.cmdGet(args)

	case "remote":
		c.cmdRemote(args)

	case "prog":
		c.cmdProg(args)

	case "flush":
		c.report("EEPROM committed", c.sim.Flush())

	case "restart":
		c.report("Device restarted", c.sim.Restart())

	case "voltage-fail", "vf":
		c.report("Bus voltage restored", c.sim.VoltageFail())

	case "download", "dl":
		c.cmdDownload(args)

	case "save":
		c.report("Flash saved", c.sim.Save())

	case "quit", "exit", "q":
		c.printf("Exiting...\n")
		return true

	default:
		c.printf("Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	c.print(`
BCU Simulator Commands:
  Inspection:
    status             - Show device status
    objects            - List com objects
    groups             - List the address table
    props [object]     - List interface object properties
    read <path>        - Read memory, a com object or a property
    write <path> <hex> - Write memory, a com object or a property

  Bus:
    send <group> <hex> - Send a group value write to the device
    get <group>        - Send a group value read to the device
    remote desc        - Read the device descriptor over the bus
    remote mem <addr> [n]       - Read memory over the bus
    remote prop <object> <pid>  - Read a property over the bus
    prog [on|off]      - Show or set programming mode

  Lifecycle:
    flush              - Commit the EEPROM now
    restart            - Restart the device
    voltage-fail       - Simulate a bus voltage failure
    download <file> [bus] - Download an application image
    save               - Save the flash to the state file

  General:
    help               - Show this help
    quit               - Exit

  Path Format:
    0x0117+2, eeprom/0x17+2, ram/0x60  - memory, optional byte count
    obj/3                               - com object value
    prop/device/manufacturer_id         - property value
`)
}

func (c *Console) report(ok string, err error) {
	if err != nil {
		c.printf("Error: %v\n", err)
		return
	}
	c.printf("%s\n", ok)
}

func (c *Console) cmdStatus() {
	s, err := c.inspector.Summary()
	if err != nil {
		c.printf("Error: %v\n", err)
		return
	}
	c.printf("Board: %s\n", c.sim.Board().Name)
	c.print(c.formatter.FormatSummary(s))
}

func (c *Console) cmdObjects() {
	objs, err := c.inspector.Objects()
	if err != nil {
		c.printf("Error: %v\n", err)
		return
	}
	c.print(c.formatter.FormatObjects(objs))
}

func (c *Console) cmdGroups() {
	groups, err := c.inspector.Groups()
	if err != nil {
		c.printf("Error: %v\n", err)
		return
	}
	c.print(c.formatter.FormatGroups(groups))
}

func (c *Console) cmdProps(args []string) {
	if len(args) == 0 {
		n := c.inspector.InterfaceObjects()
		if n == 0 {
			c.printf("Error: %v\n", inspect.ErrNoProperties)
			return
		}
		for obj := 0; obj < n; obj++ {
			c.showProperties(obj)
		}
		return
	}
	p, err := inspect.ParsePath("prop/" + args[0])
	if err != nil {
		c.printf("Invalid object: %v\n", err)
		return
	}
	c.showProperties(p.Object)
}

func (c *Console) showProperties(obj int) {
	props, err := c.inspector.Properties(obj)
	if err != nil {
		c.printf("Error: %v\n", err)
		return
	}
	c.print(c.formatter.FormatProperties(obj, props))
}

// cmdRead handles the read command.
func (c *Console) cmdRead(args []string) {
	if len(args) < 1 {
		c.printf("Usage: read <path>\n")
		c.printf("  Example: read eeprom/0x00+16\n")
		return
	}

	path, err := inspect.ParsePath(args[0])
	if err != nil {
		c.printf("Invalid path: %v\n", err)
		return
	}

	if path.IsPartial {
		switch path.Kind {
		case inspect.KindObject:
			c.cmdObjects()
		case inspect.KindProperty:
			if path.Object < 0 {
				c.cmdProps(nil)
			} else {
				c.showProperties(path.Object)
			}
		}
		return
	}

	data, err := c.inspector.Read(path)
	if err != nil {
		c.printf("Error: %v\n", err)
		return
	}
	if path.Kind == inspect.KindMemory {
		c.print(c.formatter.FormatHexDump(path.Offset, data))
		return
	}
	c.printf("%s = %s\n", path, inspect.FormatBytes(data))
}

// cmdWrite handles the write command.
func (c *Console) cmdWrite(args []string) {
	if len(args) < 2 {
		c.printf("Usage: write <path> <hex>\n")
		c.printf("  Example: write obj/0 01\n")
		return
	}

	path, err := inspect.ParsePath(args[0])
	if err != nil {
		c.printf("Invalid path: %v\n", err)
		return
	}
	data, err := parseHex(args[1:])
	if err != nil {
		c.printf("Invalid value: %v\n", err)
		return
	}

	back, err := c.inspector.Write(path, data)
	if err != nil {
		c.printf("Error: %v\n", err)
		return
	}
	if back != nil {
		c.printf("%s = %s\n", path, inspect.FormatBytes(back))
		return
	}
	c.printf("OK\n")
}

func (c *Console) cmdSend(args []string) {
	if len(args) < 2 {
		c.printf("Usage: send <group> <hex>\n")
		return
	}
	group, err := telegram.ParseGroup(args[0])
	if err != nil {
		c.printf("Invalid group: %v\n", err)
		return
	}
	data, err := parseHex(args[1:])
	if err != nil {
		c.printf("Invalid value: %v\n", err)
		return
	}
	c.inject(telegram.NewGroupWrite(c.sim.Peer(), group, data))
}

func (c *Console) cmdGet(args []string) {
	if len(args) != 1 {
		c.printf("Usage: get <group>\n")
		return
	}
	group, err := telegram.ParseGroup(args[0])
	if err != nil {
		c.printf("Invalid group: %v\n", err)
		return
	}
	c.inject(telegram.NewGroupRead(c.sim.Peer(), group))
}

func (c *Console) inject(t telegram.Telegram) {
	c.printf("-> %s\n", t)
	replies, err := c.sim.Inject(t)
	c.printSent(replies)
	if err != nil {
		c.printf("Error: %v\n", err)
	}
}

// cmdRemote inspects the device through bus services, the way a
// configuration tool sees it.
func (c *Console) cmdRemote(args []string) {
	if len(args) == 0 {
		c.printf("Usage: remote desc | mem <addr> [n] | prop <object> <pid>\n")
		return
	}
	own, err := c.sim.Device().OwnAddress()
	if err != nil {
		c.printf("Error: %v\n", err)
		return
	}
	r := inspect.NewRemoteInspector(c.sim, c.sim.Peer(), own)
	ctx := context.Background()

	switch args[0] {
	case "desc":
		mask, err := r.DeviceDescriptor(ctx)
		if err != nil {
			c.printf("Error: %v\n", err)
			return
		}
		c.printf("Mask version: 0x%04X\n", mask)

	case "mem":
		if len(args) < 2 {
			c.printf("Usage: remote mem <addr> [n]\n")
			return
		}
		addr, err := strconv.ParseUint(args[1], 0, 16)
		if err != nil {
			c.printf("Invalid address: %v\n", err)
			return
		}
		n := 1
		if len(args) > 2 {
			if n, err = strconv.Atoi(args[2]); err != nil || n <= 0 {
				c.printf("Invalid count: %s\n", args[2])
				return
			}
		}
		data, err := r.ReadMemory(ctx, uint16(addr), n)
		if err != nil {
			c.printf("Error: %v\n", err)
			return
		}
		c.print(c.formatter.FormatHexDump(uint32(addr), data))

	case "prop":
		if len(args) != 3 {
			c.printf("Usage: remote prop <object> <pid>\n")
			return
		}
		p, err := inspect.ParsePath("prop/" + args[1] + "/" + args[2])
		if err != nil {
			c.printf("Invalid property: %v\n", err)
			return
		}
		data, err := r.ReadProperty(ctx, p.Object, p.PID, 1, 1)
		if err != nil {
			c.printf("Error: %v\n", err)
			return
		}
		if p.PID == properties.PIDLoadStateControl && len(data) == 1 {
			c.printf("%s = %s\n", p, inspect.FormatLoadState(properties.LoadState(data[0])))
			return
		}
		c.printf("%s = %s\n", p, inspect.FormatBytes(data))

	default:
		c.printf("Unknown remote command: %s\n", args[0])
	}
}

func (c *Console) cmdProg(args []string) {
	dev := c.sim.Device()
	if len(args) == 0 {
		c.printf("Programming mode: %v\n", dev.ProgrammingMode())
		return
	}
	var on bool
	switch strings.ToLower(args[0]) {
	case "on", "1":
		on = true
	case "off", "0":
	default:
		c.printf("Usage: prog [on|off]\n")
		return
	}
	c.report(fmt.Sprintf("Programming mode: %v", on), dev.SetProgrammingMode(on))
}

func (c *Console) cmdDownload(args []string) {
	if len(args) < 1 {
		c.printf("Usage: download <file> [bus]\n")
		return
	}
	overBus := len(args) > 1 && args[1] == "bus"
	dl, err := c.sim.Download(args[0], overBus)
	if err != nil {
		c.printf("Error: %v\n", err)
		return
	}
	c.printf("Downloaded %d segments, %d bytes\n", len(dl.Segments), dl.Size())
}

// parseHex decodes hex bytes given as one or more words, e.g. "0102" or
// "01 02".
func parseHex(words []string) ([]byte, error) {
	s := strings.TrimPrefix(strings.Join(words, ""), "0x")
	if s == "" {
		return nil, errors.New("no data")
	}
	return hex.DecodeString(s)
}
