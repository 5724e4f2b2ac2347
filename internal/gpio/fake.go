package gpio

import (
	"errors"
	"sync"
)

// Idle is the sample of a closed door with both beams intact and the
// button released.
var Idle = Sample{Door: false, Outer: true, Inner: true, Button: true}

// WriteRecord is one recorded output write.
type WriteRecord struct {
	Line Line
	High bool
}

// FakeBoard is a test double that returns scripted input samples and
// records output writes. Writes are safe for concurrent use so a blink
// task may drive the fake from its own goroutine.
type FakeBoard struct {
	// Samples contains scripted input samples.
	// Each call to Read() consumes the next sample.
	Samples []Sample

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error

	// WriteError, if set, will be returned by Write()
	WriteError error

	mu     sync.Mutex
	writes []WriteRecord
	levels map[Line]bool
}

// NewFakeBoard creates a FakeBoard with the given samples.
func NewFakeBoard(samples []Sample) *FakeBoard {
	return &FakeBoard{Samples: samples, levels: make(map[Line]bool)}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeBoard) Read() (Sample, error) {
	if f.ReadError != nil {
		return Sample{}, f.ReadError
	}

	if len(f.Samples) == 0 {
		return Sample{}, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return sample, nil
}

// Write records the output level.
func (f *FakeBoard) Write(line Line, high bool) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.levels == nil {
		f.levels = make(map[Line]bool)
	}
	f.writes = append(f.writes, WriteRecord{Line: line, High: high})
	f.levels[line] = high
	return nil
}

// Level returns the last written level of a line and whether it was ever written.
func (f *FakeBoard) Level(line Line) (high bool, written bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	high, written = f.levels[line]
	return high, written
}

// Writes returns a copy of all recorded writes.
func (f *FakeBoard) Writes() []WriteRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]WriteRecord(nil), f.writes...)
}

// WritesTo returns the number of writes recorded for a line.
func (f *FakeBoard) WritesTo(line Line) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, w := range f.writes {
		if w.Line == line {
			n++
		}
	}
	return n
}

// Close marks the board as closed.
func (f *FakeBoard) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the board to the beginning of samples and clears writes.
func (f *FakeBoard) Reset() {
	f.index = 0
	f.Closed = false
	f.mu.Lock()
	f.writes = nil
	f.levels = make(map[Line]bool)
	f.mu.Unlock()
}
