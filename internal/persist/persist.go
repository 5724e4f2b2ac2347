// Package persist stores the controller settings that must survive a
// restart: WiFi credentials, room capacity and the telemetry server URL.
//
// Every setting lives in a fixed-size field. The logical layout is
//
//	wifi_ssid (256) | wifi_pass (256) | room_cap (1) | server_url (256)
//
// and erasing a field fills it with zeros. Text fields are read up to the
// first zero byte.
package persist

import (
	"bytes"
	"errors"
	"fmt"
)

// Key names one setting.
type Key string

const (
	KeyWiFiSSID  Key = "wifi_ssid"
	KeyWiFiPass  Key = "wifi_pass"
	KeyRoomCap   Key = "room_cap"
	KeyServerURL Key = "server_url"
)

// Field sizes in bytes.
const (
	SSIDSize      = 256
	PassSize      = 256
	RoomCapSize   = 1
	ServerURLSize = 256
)

// ImageSize is the size of the full settings image.
const ImageSize = SSIDSize + PassSize + RoomCapSize + ServerURLSize

var (
	// ErrTooLong is returned when a value does not fit its field.
	ErrTooLong = errors.New("value too long")
	// ErrUnknownKey is returned for keys outside the layout.
	ErrUnknownKey = errors.New("unknown key")
)

// Store is a fixed-layout key/value settings store.
type Store interface {
	// Load returns the value of key. A blank field loads as its zero value:
	// an empty slice for text fields, a single zero byte for room_cap.
	Load(key Key) ([]byte, error)
	// Store writes value into the field of key and commits it.
	Store(key Key, value []byte) error
	// StoreAll writes every value in one commit. Either all of them are
	// stored or none is.
	StoreAll(values map[Key][]byte) error
	// Erase zero-fills the given fields, or every field when none are given.
	Erase(keys ...Key) error
	Close() error
}

type field struct {
	key    Key
	offset int
	size   int
	text   bool
}

var layout = []field{
	{KeyWiFiSSID, 0, SSIDSize, true},
	{KeyWiFiPass, SSIDSize, PassSize, true},
	{KeyRoomCap, SSIDSize + PassSize, RoomCapSize, false},
	{KeyServerURL, SSIDSize + PassSize + RoomCapSize, ServerURLSize, true},
}

func lookup(key Key) (field, error) {
	for _, f := range layout {
		if f.key == key {
			return f, nil
		}
	}
	return field{}, fmt.Errorf("%w: %q", ErrUnknownKey, key)
}

// check validates value against the field of key.
func check(key Key, value []byte) (field, error) {
	f, err := lookup(key)
	if err != nil {
		return f, err
	}
	if len(value) > f.size {
		return f, fmt.Errorf("%s: %d bytes exceeds %d: %w", key, len(value), f.size, ErrTooLong)
	}
	return f, nil
}

// decode turns raw field bytes into the value Load returns.
func (f field) decode(raw []byte) []byte {
	if !f.text {
		out := make([]byte, f.size)
		copy(out, raw)
		return out
	}
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return append([]byte(nil), raw...)
}

// Open opens a store by driver name: "image" for a file-backed settings
// image, "sqlite" for a SQLite database.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", "image":
		return NewImageStore(path)
	case "sqlite":
		return NewSQLiteStore(path)
	}
	return nil, fmt.Errorf("unknown store driver %q", driver)
}
