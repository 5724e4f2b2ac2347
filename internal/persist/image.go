package persist

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// ImageStore keeps the settings as one zero-filled binary image on disk,
// laid out like the controller's non-volatile memory. Every Store or Erase
// rewrites the image through a temporary file and a rename.
type ImageStore struct {
	path string

	mu  sync.Mutex
	img []byte
}

// NewImageStore opens the image at path. A missing file is treated as a
// blank image and is created on the first commit.
func NewImageStore(path string) (*ImageStore, error) {
	img := make([]byte, ImageSize)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read image: %w", err)
	default:
		copy(img, data)
	}
	return &ImageStore{path: path, img: img}, nil
}

// Load returns the value of key.
func (s *ImageStore) Load(key Key) ([]byte, error) {
	f, err := lookup(key)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return f.decode(s.img[f.offset : f.offset+f.size]), nil
}

// Store writes value into its field, zero-filling the remainder.
func (s *ImageStore) Store(key Key, value []byte) error {
	if err := s.StoreAll(map[Key][]byte{key: value}); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

// StoreAll rewrites the image once with every value in place.
func (s *ImageStore) StoreAll(values map[Key][]byte) error {
	fields := make(map[Key]field, len(values))
	for k, v := range values {
		f, err := check(k, v)
		if err != nil {
			return err
		}
		fields[k] = f
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := append([]byte(nil), s.img...)
	for k, f := range fields {
		clear(next[f.offset : f.offset+f.size])
		copy(next[f.offset:], values[k])
	}
	return s.commit(next)
}

// Erase zero-fills the given fields, or the whole image.
func (s *ImageStore) Erase(keys ...Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := append([]byte(nil), s.img...)
	if len(keys) == 0 {
		clear(next)
	}
	for _, k := range keys {
		f, err := lookup(k)
		if err != nil {
			return err
		}
		clear(next[f.offset : f.offset+f.size])
	}
	if err := s.commit(next); err != nil {
		return fmt.Errorf("erase: %w", err)
	}
	return nil
}

// Close does nothing; every change is already on disk.
func (s *ImageStore) Close() error {
	return nil
}

// commit writes img to disk and adopts it only once the write succeeded.
func (s *ImageStore) commit(img []byte) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(img); err != nil {
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
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return err
	}
	s.img = img
	return nil
}
