package identity

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// IdentityFile is the persisted form of the node identity
type IdentityFile struct {
	Key         string `yaml:"key"`
	Fingerprint string `yaml:"fingerprint"`
	ID          string `yaml:"id"`
	Index       uint64 `yaml:"index"`
	Block       string `yaml:"block"`
}

type FileStore struct {
	path string

	mu sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (fs *FileStore) Path() string {
	return fs.path
}

// Read returns nil, nil when no identity has been written yet
func (fs *FileStore) Read() (*IdentityFile, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	d, err := ioutil.ReadFile(fs.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "opening identity file for read")
	}

	f := &IdentityFile{}
	if err := yaml.Unmarshal(d, f); err != nil {
		return nil, errors.Wrap(err, "unmarshalling identity data")
	}

	return f, nil
}

func (fs *FileStore) Write(f *IdentityFile) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	d, err := yaml.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "marshalling identity data")
	}

	if err := os.MkdirAll(filepath.Dir(fs.path), 0700); err != nil {
		return errors.Wrap(err, "creating identity directory")
	}

	tmp := fs.path + ".tmp"
	if err := ioutil.WriteFile(tmp, d, 0600); err != nil {
		return errors.Wrap(err, "writing identity file")
	}

	if err := os.Rename(tmp, fs.path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "replacing identity file")
	}

	return nil
}
