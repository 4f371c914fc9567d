package inspect

import (
	"errors"
	"testing"

	"github.com/selfbus/bcu-go/pkg/memory"
	"github.com/selfbus/bcu-go/pkg/properties"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Path
		wantErr error
	}{
		{
			name:  "unified address",
			input: "0x0117",
			want:  Path{Kind: KindMemory, Offset: 0x0117, Count: 1},
		},
		{
			name:  "unified address with count",
			input: "0x0117+2",
			want:  Path{Kind: KindMemory, Offset: 0x0117, Count: 2},
		},
		{
			name:  "eeprom offset",
			input: "eeprom/0x17+2",
			want:  Path{Kind: KindMemory, Space: memory.SpaceEEPROM, Offset: 0x17, Count: 2},
		},
		{
			name:  "ram offset decimal",
			input: "RAM/96",
			want:  Path{Kind: KindMemory, Space: memory.SpaceRAM, Offset: 96, Count: 1},
		},
		{
			name:  "all com objects",
			input: "obj",
			want:  Path{Kind: KindObject, IsPartial: true},
		},
		{
			name:  "one com object",
			input: "obj/3",
			want:  Path{Kind: KindObject, Object: 3},
		},
		{
			name:  "all interface objects",
			input: "prop",
			want:  Path{Kind: KindProperty, Object: -1, IsPartial: true},
		},
		{
			name:  "interface object by name",
			input: "prop/app",
			want:  Path{Kind: KindProperty, Object: int(properties.ObjectApplication), IsPartial: true},
		},
		{
			name:  "property by name",
			input: "prop/device/manufacturer_id",
			want:  Path{Kind: KindProperty, Object: int(properties.ObjectDevice), PID: properties.PIDManufacturerID},
		},
		{
			name:  "property by number",
			input: "prop/1/0x05",
			want:  Path{Kind: KindProperty, Object: 1, PID: properties.PIDLoadStateControl},
		},
		{name: "empty", input: "  ", wantErr: ErrEmptyPath},
		{name: "leading slash", input: "/obj", wantErr: ErrInvalidPath},
		{name: "trailing slash", input: "obj/", wantErr: ErrInvalidPath},
		{name: "memory without offset", input: "ram", wantErr: ErrInvalidPath},
		{name: "zero count", input: "0x10+0", wantErr: ErrInvalidNumber},
		{name: "address too large", input: "0x10000", wantErr: ErrInvalidNumber},
		{name: "object too large", input: "obj/256", wantErr: ErrInvalidNumber},
		{name: "unknown interface object", input: "prop/nosuch", wantErr: ErrInvalidPath},
		{name: "unknown property", input: "prop/device/nosuch", wantErr: ErrInvalidPath},
		{name: "too deep", input: "prop/0/1/2", wantErr: ErrInvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePath(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParsePath(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePath(%q) unexpected error: %v", tt.input, err)
			}
			tt.want.Raw = got.Raw
			if *got != tt.want {
				t.Errorf("ParsePath(%q) = %+v, want %+v", tt.input, *got, tt.want)
			}
		})
	}
}

func TestPathString(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"0x117", "0x0117"},
		{"0x117+4", "0x0117+4"},
		{"eeprom/23", "eeprom/0x0017"},
		{"highram/0+2", "highram/0x0000+2"},
		{"obj", "obj"},
		{"object/7", "obj/7"},
		{"prop", "prop"},
		{"prop/3", "prop/application"},
		{"prop/addresses/table_reference", "prop/addr_table/table_reference"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p, err := ParsePath(tt.input)
			if err != nil {
				t.Fatalf("ParsePath(%q): %v", tt.input, err)
			}
			if got := p.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
