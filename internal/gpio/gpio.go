// Package gpio provides GPIO line access with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Sample is one reading of all input lines, as raw levels (true = high).
type Sample struct {
	Door   bool // magnetic switch, high = door open
	Outer  bool // outer light barrier, low = beam broken
	Inner  bool // inner light barrier, low = beam broken
	Button bool // connection button, low = pressed
}

// DoorOpen reports whether the magnetic switch reads open.
func (s Sample) DoorOpen() bool {
	return s.Door
}

// ButtonDown reports whether the connection button is held.
func (s Sample) ButtonDown() bool {
	return !s.Button
}

// Line identifies an output line.
type Line int

const (
	LineOpenLED   Line = iota // door opened / entrance allowed indicator
	LineClosedLED             // door closed / entrance denied indicator
	LineLinkLED               // connection status indicator
)

func (l Line) String() string {
	switch l {
	case LineOpenLED:
		return "open-led"
	case LineClosedLED:
		return "closed-led"
	case LineLinkLED:
		return "link-led"
	}
	return "unknown"
}

// Reader reads GPIO input states.
type Reader interface {
	// Read returns the raw levels of all input lines.
	Read() (Sample, error)

	// Close releases GPIO resources.
	Close() error
}

// Writer drives output lines.
type Writer interface {
	// Write sets the raw level of an output line.
	Write(line Line, high bool) error
}

// Board is a Reader that can also drive outputs.
type Board interface {
	Reader
	Writer
}

// Pins maps the board's lines to BCM offsets.
type Pins struct {
	Door      int `yaml:"door"`
	Outer     int `yaml:"outer"`
	Inner     int `yaml:"inner"`
	Button    int `yaml:"button"`
	OpenLED   int `yaml:"open_led"`
	ClosedLED int `yaml:"closed_led"`
	LinkLED   int `yaml:"link_led"`
}

// Pin definitions (BCM numbering)
const (
	DefaultPinDoor      = 18
	DefaultPinOuter     = 17
	DefaultPinInner     = 16
	DefaultPinButton    = 4
	DefaultPinOpenLED   = 19
	DefaultPinClosedLED = 22
	DefaultPinLinkLED   = 5
)

// DefaultPins returns the wiring of the reference board.
func DefaultPins() Pins {
	return Pins{
		Door:      DefaultPinDoor,
		Outer:     DefaultPinOuter,
		Inner:     DefaultPinInner,
		Button:    DefaultPinButton,
		OpenLED:   DefaultPinOpenLED,
		ClosedLED: DefaultPinClosedLED,
		LinkLED:   DefaultPinLinkLED,
	}
}
