package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/selfbus/bcu-go/pkg/bcu"
	"github.com/selfbus/bcu-go/pkg/hal/sim"
	"github.com/selfbus/bcu-go/pkg/layout"
)

func TestFlashStore(t *testing.T) {
	t.Run("NewFlashStore", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFlashStore(filepath.Join(dir, "flash.cbor"))
		if store == nil {
			t.Fatal("NewFlashStore() returned nil")
		}
	})

	t.Run("SaveAndLoad", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFlashStore(filepath.Join(dir, "nested", "flash.cbor"))

		img := &FlashImage{
			Variant:  "BCU2",
			Board:    "4te-bcu2",
			PageSize: 0x100,
			Data:     []byte{1, 2, 3, 0xff},
		}
		if err := store.Save(img); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if img.SavedAt.IsZero() {
			t.Error("Save() did not stamp SavedAt")
		}

		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got.Version != ImageVersion {
			t.Errorf("Version = %d, want %d", got.Version, ImageVersion)
		}
		if got.Variant != "BCU2" || got.Board != "4te-bcu2" || got.PageSize != 0x100 {
			t.Errorf("Load() = %+v", got)
		}
		if string(got.Data) != string(img.Data) {
			t.Errorf("Data = %x, want %x", got.Data, img.Data)
		}
		if _, err := os.Stat(store.Path() + ".tmp"); !os.IsNotExist(err) {
			t.Error("temporary file left behind")
		}
	})

	t.Run("LoadNonExistent", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFlashStore(filepath.Join(dir, "nonexistent.cbor"))

		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got != nil {
			t.Errorf("Load() = %v, want nil for non-existent file", got)
		}
	})

	t.Run("LoadCorrupt", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "flash.cbor")
		if err := os.WriteFile(path, []byte("not cbor"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := NewFlashStore(path).Load(); err == nil {
			t.Error("Load() of a corrupt file should fail")
		}
	})

	t.Run("SessionsRoundTrip", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFlashStore(filepath.Join(dir, "flash.cbor"))

		img := &FlashImage{Variant: "SYSTEMB", PageSize: 0x200}
		start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		for i := 0; i < MaxSessions+3; i++ {
			img.AddSession(fmt.Sprintf("session-%d", i), start.Add(time.Duration(i)*time.Minute))
		}
		if len(img.Sessions) != MaxSessions {
			t.Fatalf("len(Sessions) = %d, want %d", len(img.Sessions), MaxSessions)
		}

		if err := store.Save(img); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got.Sessions[0].ID != "session-3" {
			t.Errorf("Sessions[0].ID = %q, want session-3", got.Sessions[0].ID)
		}
		last := got.Sessions[len(got.Sessions)-1]
		if !last.StartedAt.Equal(start.Add(18 * time.Minute)) {
			t.Errorf("last StartedAt = %v", last.StartedAt)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFlashStore(filepath.Join(dir, "flash.cbor"))
		_ = store.Save(&FlashImage{Variant: "BCU1"})

		if err := store.Clear(); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() after Clear() error = %v", err)
		}
		if got != nil {
			t.Errorf("Load() after Clear() = %v, want nil", got)
		}
		if err := store.Clear(); err != nil {
			t.Errorf("second Clear() error = %v", err)
		}
	})
}

func TestRestoreMismatch(t *testing.T) {
	flash := sim.NewFlash(0x8000, 0x100)
	img := Snapshot(flash, layout.BCU2, "")

	if err := img.Restore(sim.NewFlash(0x8000, 0x100), layout.BCU1); !errors.Is(err, ErrImageMismatch) {
		t.Errorf("Restore() with another variant = %v, want ErrImageMismatch", err)
	}
	if err := img.Restore(sim.NewFlash(0x8000, 0x200), layout.BCU2); !errors.Is(err, ErrImageMismatch) {
		t.Errorf("Restore() with another page size = %v, want ErrImageMismatch", err)
	}
	if err := img.Restore(sim.NewFlash(0x4000, 0x100), layout.BCU2); !errors.Is(err, ErrImageMismatch) {
		t.Errorf("Restore() with another size = %v, want ErrImageMismatch", err)
	}
}

func TestEepromSurvivesRestart(t *testing.T) {
	store := NewFlashStore(filepath.Join(t.TempDir(), "flash.cbor"))

	// First boot: program and flush.
	flash := sim.NewFlash(sim.DefaultFlashSize, sim.DefaultPageSize)
	dev, err := bcu.New(layout.MASK0701, flash, sim.NewBus())
	if err != nil {
		t.Fatalf("bcu.New() error = %v", err)
	}
	if err := dev.SetOwnAddress(0x1203); err != nil {
		t.Fatal(err)
	}
	if err := dev.Eeprom().Write(0x40, []byte{0xca, 0xfe}); err != nil {
		t.Fatal(err)
	}
	if err := dev.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	img := Snapshot(flash, dev.Variant(), "ts-arm-mask0701")
	img.AddSession(dev.SessionID(), time.Now())
	if err := store.Save(img); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Second boot from the stored image.
	got, err := store.Load()
	if err != nil || got == nil {
		t.Fatalf("Load() = %v, %v", got, err)
	}
	flash2 := sim.NewFlash(sim.DefaultFlashSize, sim.DefaultPageSize)
	if err := got.Restore(flash2, layout.MASK0701); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	dev2, err := bcu.New(layout.MASK0701, flash2, sim.NewBus())
	if err != nil {
		t.Fatalf("bcu.New() error = %v", err)
	}
	if dev2.SessionID() == dev.SessionID() {
		t.Error("second boot reused the session ID")
	}
	own, err := dev2.OwnAddress()
	if err != nil || own != 0x1203 {
		t.Errorf("OwnAddress() = 0x%04x, %v, want 0x1203", own, err)
	}
	b, err := dev2.Eeprom().Read(0x40, 2)
	if err != nil {
		t.Fatal(err)
	}
	if b[0] != 0xca || b[1] != 0xfe {
		t.Errorf("EEPROM[0x40] = %x, want cafe", b)
	}
}
