package persist

import "fmt"

// Settings is the decoded content of a Store.
type Settings struct {
	SSID      string
	Pass      string
	RoomCap   int // 0 when never stored
	ServerURL string
}

// LoadSettings reads every setting from s.
func LoadSettings(s Store) (Settings, error) {
	var out Settings
	for _, item := range []struct {
		key Key
		dst *string
	}{
		{KeyWiFiSSID, &out.SSID},
		{KeyWiFiPass, &out.Pass},
		{KeyServerURL, &out.ServerURL},
	} {
		v, err := s.Load(item.key)
		if err != nil {
			return Settings{}, err
		}
		*item.dst = string(v)
	}

	c, err := s.Load(KeyRoomCap)
	if err != nil {
		return Settings{}, err
	}
	if len(c) > 0 {
		out.RoomCap = int(c[0])
	}
	return out, nil
}

// SaveWiFi stores the WiFi credentials in a single commit, so a failed
// write never pairs a new SSID with an old password.
func SaveWiFi(s Store, ssid, pass string) error {
	return s.StoreAll(map[Key][]byte{
		KeyWiFiSSID: []byte(ssid),
		KeyWiFiPass: []byte(pass),
	})
}

// EraseWiFi zero-fills the WiFi credentials.
func EraseWiFi(s Store) error {
	return s.Erase(KeyWiFiSSID, KeyWiFiPass)
}

// SaveRoomCap stores the room capacity as a single byte.
func SaveRoomCap(s Store, n int) error {
	if n < 0 || n > 255 {
		return fmt.Errorf("room capacity %d does not fit one byte: %w", n, ErrTooLong)
	}
	return s.Store(KeyRoomCap, []byte{byte(n)})
}

// SaveServerURL stores the telemetry server URL.
func SaveServerURL(s Store, url string) error {
	return s.Store(KeyServerURL, []byte(url))
}

// FactoryReset erases the WiFi credentials and stores capacity. The server
// URL is kept.
func FactoryReset(s Store, capacity int) error {
	if err := EraseWiFi(s); err != nil {
		return err
	}
	return SaveRoomCap(s, capacity)
}
