//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealBoard reads and drives GPIO on actual hardware using Linux GPIO character device.
type RealBoard struct {
	chip    *gpiocdev.Chip
	door    *gpiocdev.Line
	outer   *gpiocdev.Line
	inner   *gpiocdev.Line
	button  *gpiocdev.Line
	outputs map[Line]*gpiocdev.Line
}

// NewRealBoard requests all lines of the given pin map on gpiochip0.
func NewRealBoard(pins Pins) (*RealBoard, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	b := &RealBoard{chip: chip, outputs: make(map[Line]*gpiocdev.Line)}

	inputs := []struct {
		name string
		pin  int
		dst  **gpiocdev.Line
		bias gpiocdev.LineReqOption
	}{
		// The magnetic switch pulls high when the door opens.
		{"door", pins.Door, &b.door, gpiocdev.WithPullDown},
		// Barriers and button are active low.
		{"outer", pins.Outer, &b.outer, gpiocdev.WithPullUp},
		{"inner", pins.Inner, &b.inner, gpiocdev.WithPullUp},
		{"button", pins.Button, &b.button, gpiocdev.WithPullUp},
	}
	for _, in := range inputs {
		l, err := chip.RequestLine(in.pin, gpiocdev.AsInput, in.bias)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", in.name, in.pin, err)
		}
		*in.dst = l
	}

	// LEDs are active low; start with all of them off.
	outputs := []struct {
		line Line
		pin  int
	}{
		{LineOpenLED, pins.OpenLED},
		{LineClosedLED, pins.ClosedLED},
		{LineLinkLED, pins.LinkLED},
	}
	for _, out := range outputs {
		l, err := chip.RequestLine(out.pin, gpiocdev.AsOutput(1))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", out.line, out.pin, err)
		}
		b.outputs[out.line] = l
	}

	return b, nil
}

// Read returns the raw levels of all input lines.
func (b *RealBoard) Read() (Sample, error) {
	var s Sample
	reads := []struct {
		name string
		line *gpiocdev.Line
		dst  *bool
	}{
		{"door", b.door, &s.Door},
		{"outer", b.outer, &s.Outer},
		{"inner", b.inner, &s.Inner},
		{"button", b.button, &s.Button},
	}
	for _, r := range reads {
		v, err := r.line.Value()
		if err != nil {
			return Sample{}, fmt.Errorf("read %s pin: %w", r.name, err)
		}
		*r.dst = v != 0
	}
	return s, nil
}

// Write sets the raw level of an output line.
func (b *RealBoard) Write(line Line, high bool) error {
	l, ok := b.outputs[line]
	if !ok {
		return fmt.Errorf("write %s: line not requested", line)
	}
	v := 0
	if high {
		v = 1
	}
	if err := l.SetValue(v); err != nil {
		return fmt.Errorf("write %s: %w", line, err)
	}
	return nil
}

// Close releases GPIO resources.
// Outputs are reconfigured to inputs with pull-down (matching Pi boot defaults)
// before closing so the LEDs do not hold the lines during shutdown/reboot.
func (b *RealBoard) Close() error {
	var errs []error

	for line, l := range b.outputs {
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s: %w", line, err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", line, err))
		}
	}
	for _, l := range []*gpiocdev.Line{b.door, b.outer, b.inner, b.button} {
		if l == nil {
			continue
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close input: %w", err))
		}
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
