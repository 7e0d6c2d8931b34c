// Package eeprom stores the saved rotator position the way the controller's
// EEPROM does: three 16-bit words holding the validity marker, the azimuth
// and the elevation.
package eeprom

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/w1xm/spid_controller/rotator"
)

// Size is the length of an encoded image in bytes.
const Size = 6

// ErrBlank is returned when nothing has ever been saved.
var ErrBlank = errors.New("eeprom: blank image")

// Words packs a record into its three storage words.
func Words(rec rotator.Record) [3]uint16 {
	return [3]uint16{rec.Marker, uint16(int16(rec.Azimuth)), uint16(int16(rec.Elevation))}
}

// FromWords is the inverse of Words.
func FromWords(w [3]uint16) rotator.Record {
	return rotator.Record{
		Marker:    w[0],
		Azimuth:   int(int16(w[1])),
		Elevation: int(int16(w[2])),
	}
}

// Encode returns the little-endian image of a record.
func Encode(rec rotator.Record) []byte {
	buf := make([]byte, Size)
	for i, w := range Words(rec) {
		binary.LittleEndian.PutUint16(buf[2*i:], w)
	}
	return buf
}

// Decode parses an image written by Encode.
func Decode(buf []byte) (rotator.Record, error) {
	if len(buf) < Size {
		return rotator.Record{}, fmt.Errorf("eeprom: image is %d bytes, want %d", len(buf), Size)
	}
	var w [3]uint16
	for i := range w {
		w[i] = binary.LittleEndian.Uint16(buf[2*i:])
	}
	return FromWords(w), nil
}

// File keeps the image in a file. Saves replace the file atomically.
type File struct {
	Path string
}

func (f *File) Load() (rotator.Record, error) {
	buf, err := ioutil.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return rotator.Record{}, fmt.Errorf("%s: %w", f.Path, ErrBlank)
	}
	if err != nil {
		return rotator.Record{}, err
	}
	rec, err := Decode(buf)
	if err != nil {
		return rotator.Record{}, fmt.Errorf("%s: %w", f.Path, err)
	}
	return rec, nil
}

func (f *File) Save(rec rotator.Record) error {
	tmp, err := ioutil.TempFile(filepath.Dir(f.Path), filepath.Base(f.Path)+".tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(Encode(rec)); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.Path)
}

// Memory is a volatile store for simulation and tests.
type Memory struct {
	mu    sync.Mutex
	rec   rotator.Record
	saved bool
	saves int
}

// NewMemory returns a store preloaded with rec.
func NewMemory(rec rotator.Record) *Memory {
	return &Memory{rec: rec, saved: true}
}

func (m *Memory) Load() (rotator.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.saved {
		return rotator.Record{}, ErrBlank
	}
	return m.rec, nil
}

func (m *Memory) Save(rec rotator.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = rec
	m.saved = true
	m.saves++
	return nil
}

// Saves counts successful writes.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
