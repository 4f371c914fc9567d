package inspect

import (
	"fmt"
	"strings"

	"github.com/selfbus/bcu-go/pkg/comobj"
	"github.com/selfbus/bcu-go/pkg/properties"
	"github.com/selfbus/bcu-go/pkg/telegram"
	"github.com/selfbus/bcu-go/pkg/usermem"
)

// Formatter formats inspection output.
type Formatter struct {
	// ShowMetadata includes types, access and raw flag bytes
	ShowMetadata bool

	// ShowIDs includes numeric IDs alongside names
	ShowIDs bool

	// IndentWidth is the number of spaces per indent level
	IndentWidth int

	// BytesPerLine is the width of a hex dump
	BytesPerLine int
}

// NewFormatter creates a new Formatter with default settings.
func NewFormatter() *Formatter {
	return &Formatter{
		ShowMetadata: true,
		ShowIDs:      false,
		IndentWidth:  2,
		BytesPerLine: 16,
	}
}

// Indent returns the content with indentation.
func (f *Formatter) Indent(depth int, content string) string {
	width := f.IndentWidth
	if width == 0 {
		width = 2
	}
	indent := strings.Repeat(" ", depth*width)
	return indent + content
}

// FormatBytes formats bytes as space separated hex.
func FormatBytes(b []byte) string {
	if len(b) == 0 {
		return "(empty)"
	}
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02x", v)
	}
	return strings.Join(parts, " ")
}

// FormatHexDump formats data starting at addr as a hex dump with an ASCII
// column.
func (f *Formatter) FormatHexDump(addr uint32, data []byte) string {
	width := f.BytesPerLine
	if width <= 0 {
		width = 16
	}
	var sb strings.Builder
	for off := 0; off < len(data); off += width {
		line := data[off:min(off+width, len(data))]
		fmt.Fprintf(&sb, "%04x: %-*s |", addr+uint32(off), width*3-1, FormatBytes(line))
		for _, c := range line {
			if c < 0x20 || c > 0x7e {
				c = '.'
			}
			sb.WriteByte(c)
		}
		sb.WriteString("|\n")
	}
	return sb.String()
}

// FormatStatus formats the RAM status byte.
func FormatStatus(s byte) string {
	names := []struct {
		bit  byte
		name string
	}{
		{usermem.StatusProg, "PROG"},
		{usermem.StatusLink, "LL"},
		{usermem.StatusTransport, "TL"},
		{usermem.StatusApp, "AL"},
		{usermem.StatusSerialPEI, "PEI"},
		{usermem.StatusUserMode, "USR"},
		{usermem.StatusDownload, "DWN"},
	}
	var set []string
	for _, n := range names {
		if s&n.bit != 0 {
			set = append(set, n.name)
		}
	}
	if len(set) == 0 {
		return fmt.Sprintf("0x%02x", s)
	}
	return fmt.Sprintf("0x%02x (%s)", s, strings.Join(set, " "))
}

// FormatConfig formats a com object config byte as "CRWTU" letters.
func FormatConfig(c byte) string {
	letters := []struct {
		bit byte
		ch  byte
	}{
		{comobj.ConfComm, 'C'},
		{comobj.ConfRead, 'R'},
		{comobj.ConfWrite, 'W'},
		{comobj.ConfTrans, 'T'},
		{comobj.ConfUpdate, 'U'},
	}
	out := make([]byte, len(letters))
	for i, l := range letters {
		out[i] = '-'
		if c&l.bit != 0 {
			out[i] = l.ch
		}
	}
	return string(out)
}

// FormatFlags formats a com object RAM flag nibble.
func FormatFlags(flags byte) string {
	var state string
	switch flags & comobj.FlagTransMask {
	case comobj.FlagOK:
		state = "idle"
	case comobj.FlagError:
		state = "error"
	case comobj.FlagTransmitting:
		state = "transmitting"
	case comobj.FlagTransReq:
		state = "pending"
	}
	if flags&comobj.FlagDataReq != 0 {
		state += ",read"
	}
	if flags&comobj.FlagUpdate != 0 {
		state += ",updated"
	}
	return state
}

// FormatLoadState formats an interface object load state.
func FormatLoadState(s properties.LoadState) string {
	return strings.ToLower(s.String())
}

// FormatSummary formats the device overview.
func (f *Formatter) FormatSummary(s *DeviceSummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Device: %s (mask 0x%04X)\n", s.Variant, s.MaskVersion)
	fmt.Fprintf(&sb, "State: %s  Session: %s\n", s.State, s.SessionID)
	fmt.Fprintf(&sb, "Address: %s  Programming: %v\n", s.OwnAddress.Physical(), s.ProgMode)
	fmt.Fprintf(&sb, "Application: manufacturer 0x%04X  type 0x%04X  version %d\n", s.Manufacturer, s.DeviceType, s.Version)
	sb.WriteString("---\n")
	sb.WriteString(f.Indent(1, "status: "+FormatStatus(s.Status)) + "\n")
	sb.WriteString(f.Indent(1, fmt.Sprintf("run state: %d", s.RunState)) + "\n")
	sb.WriteString(f.Indent(1, fmt.Sprintf("eeprom modified: %v", s.EepromModified)) + "\n")
	sb.WriteString(f.Indent(1, fmt.Sprintf("telegrams: %d received, %d dropped", s.Received, s.Dropped)) + "\n")
	if s.Err != nil {
		sb.WriteString(f.Indent(1, "error: "+s.Err.Error()) + "\n")
	}
	return sb.String()
}

// FormatObjects formats a com object list as a table.
func (f *Formatter) FormatObjects(objs []ObjectInfo) string {
	if len(objs) == 0 {
		return "  (no com objects)\n"
	}
	var sb strings.Builder
	for _, o := range objs {
		group := "-"
		if o.HasGroup {
			group = o.Group.Group()
		}
		fmt.Fprintf(&sb, "  #%-3d %-6s %-8s %s = %s", o.Number, o.Desc.Type, group,
			FormatConfig(o.Desc.Config), FormatBytes(o.Value))
		if f.ShowMetadata {
			fmt.Fprintf(&sb, " (%s, prio %s)", FormatFlags(o.Flags), telegram.Priority(o.Desc.Priority()))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatGroups formats the address table.
func (f *Formatter) FormatGroups(groups []GroupInfo) string {
	if len(groups) == 0 {
		return "  (no group addresses)\n"
	}
	var sb strings.Builder
	for _, g := range groups {
		objs := make([]string, len(g.Objects))
		for i, o := range g.Objects {
			objs[i] = fmt.Sprintf("#%d", o)
		}
		if f.ShowIDs {
			fmt.Fprintf(&sb, "  [%d] ", g.Slot)
		} else {
			sb.WriteString("  ")
		}
		fmt.Fprintf(&sb, "%-8s -> %s\n", g.Address.Group(), strings.Join(objs, " "))
	}
	return sb.String()
}

// FormatProperties formats the properties of one interface object.
func (f *Formatter) FormatProperties(obj int, props []PropertyInfo) string {
	var sb strings.Builder
	sb.WriteString(GetObjectName(properties.ObjectType(obj)) + "\n")
	if len(props) == 0 {
		sb.WriteString(f.Indent(1, "(no properties)") + "\n")
		return sb.String()
	}
	for _, p := range props {
		var line string
		if f.ShowIDs {
			line = fmt.Sprintf("[%d] %s = ", p.ID, GetPropertyName(p.ID))
		} else {
			line = GetPropertyName(p.ID) + " = "
		}
		switch {
		case p.Value == nil:
			line += "?"
		case p.ID == properties.PIDLoadStateControl && len(p.Value) == 1:
			line += FormatLoadState(properties.LoadState(p.Value[0]))
		default:
			line += FormatBytes(p.Value)
		}
		if f.ShowMetadata {
			access := "read-only"
			if p.Writable {
				access = "read-write"
			}
			line += fmt.Sprintf(" (pdt 0x%02x, %d elements, %s)", byte(p.Type), p.Elements, access)
		}
		sb.WriteString(f.Indent(1, line) + "\n")
	}
	return sb.String()
}
