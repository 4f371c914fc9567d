package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/selfbus/bcu-go/pkg/hal/sim"
	"github.com/selfbus/bcu-go/pkg/layout"
)

// ImageVersion is the current version of the flash image format.
const ImageVersion = 1

// MaxSessions is the number of boot sessions an image remembers.
const MaxSessions = 16

// ErrImageMismatch is returned when an image does not fit the flash or
// variant it is restored into.
var ErrImageMismatch = errors.New("flash image mismatch")

// FlashImage is a persisted physical flash.
type FlashImage struct {
	// Version is the image format version.
	Version int `cbor:"1,keyasint"`

	// SavedAt is when the image was last saved.
	SavedAt time.Time `cbor:"2,keyasint"`

	// Variant names the BCU variant that wrote the flash.
	Variant string `cbor:"3,keyasint"`

	// Board names the board descriptor, if any.
	Board string `cbor:"4,keyasint,omitempty"`

	// PageSize is the flash page size.
	PageSize int `cbor:"5,keyasint"`

	// Data is the whole flash.
	Data []byte `cbor:"6,keyasint"`

	// Sessions lists the most recent boots, oldest first.
	Sessions []Session `cbor:"7,keyasint,omitempty"`
}

// Session records one boot from the image.
type Session struct {
	ID        string    `cbor:"1,keyasint"`
	StartedAt time.Time `cbor:"2,keyasint"`
}

// Snapshot captures flash as written by variant v.
func Snapshot(flash *sim.Flash, v layout.Variant, board string) *FlashImage {
	return &FlashImage{
		Version:  ImageVersion,
		Variant:  v.String(),
		Board:    board,
		PageSize: flash.PageSize(),
		Data:     flash.Image(),
	}
}

// Restore loads the image into flash. The flash geometry and the variant
// must match.
func (img *FlashImage) Restore(flash *sim.Flash, v layout.Variant) error {
	if img.Variant != v.String() {
		return fmt.Errorf("%w: image written by %s, booting %s", ErrImageMismatch, img.Variant, v)
	}
	if img.PageSize != flash.PageSize() || len(img.Data) != flash.Size() {
		return fmt.Errorf("%w: image is %d bytes in 0x%x pages, flash is %d bytes in 0x%x pages",
			ErrImageMismatch, len(img.Data), img.PageSize, flash.Size(), flash.PageSize())
	}
	return flash.LoadImage(img.Data)
}

// AddSession appends a boot session, dropping the oldest beyond
// MaxSessions.
func (img *FlashImage) AddSession(id string, at time.Time) {
	img.Sessions = append(img.Sessions, Session{ID: id, StartedAt: at})
	if n := len(img.Sessions); n > MaxSessions {
		img.Sessions = append([]Session(nil), img.Sessions[n-MaxSessions:]...)
	}
}

// FlashStore manages persistence of a flash image to a CBOR file.
type FlashStore struct {
	mu   sync.Mutex
	path string
}

// NewFlashStore creates a new flash image store.
func NewFlashStore(path string) *FlashStore {
	return &FlashStore{path: path}
}

// Path returns the image file path.
func (s *FlashStore) Path() string { return s.path }

// Save persists the image to disk.
func (s *FlashStore) Save(img *FlashImage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	img.Version = ImageVersion
	if img.SavedAt.IsZero() {
		img.SavedAt = time.Now()
	}

	data, err := cbor.Marshal(img)
	if err != nil {
		return fmt.Errorf("encoding flash image: %w", err)
	}

	// Write then rename; readers never see a torn image.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the image from disk.
// Returns nil, nil if the file doesn't exist (erased flash).
func (s *FlashStore) Load() (*FlashImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	img := &FlashImage{}
	if err := cbor.Unmarshal(data, img); err != nil {
		return nil, fmt.Errorf("decoding flash image %s: %w", s.path, err)
	}
	if img.Version > ImageVersion {
		return nil, fmt.Errorf("flash image %s has version %d, newest known is %d", s.path, img.Version, ImageVersion)
	}

	return img, nil
}

// Clear removes the image file.
func (s *FlashStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
