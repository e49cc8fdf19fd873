package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// FileSecretStore keeps each key in its own 0600 file inside a 0700
// directory. It stands in for the OS keystore on desktops and in tests.
type FileSecretStore struct{ dir string }

func NewFileSecretStore(dir string) *FileSecretStore {
	_ = os.MkdirAll(dir, 0700)
	return &FileSecretStore{dir: dir}
}

func (f *FileSecretStore) Get(_ context.Context, key string) ([]byte, error) {
	b, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return b, err
}

func (f *FileSecretStore) Put(_ context.Context, key string, data []byte) error {
	return os.WriteFile(f.path(key), data, 0600)
}

func (f *FileSecretStore) Delete(_ context.Context, key string) error {
	err := os.Remove(f.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *FileSecretStore) path(key string) string {
	return filepath.Join(f.dir, strings.ReplaceAll(key, "/", ".")+".bin")
}
