package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/ghyeongl/warehouse/logging"
)

const fileExt = ".json"

// envelope is the on-disk form of one entry.
type envelope struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
	CreatedAt time.Time `json:"createdAt"`
}

// File stores one JSON envelope per key in a directory. Writes go to a
// temporary file that is renamed into place.
type File struct {
	fs  afero.Fs
	dir string
}

// NewFile returns a file store rooted at dir on fsys.
func NewFile(fsys afero.Fs, dir string) (*File, error) {
	if err := fsys.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("mkdir cache dir: %w", err)
	}
	return &File{fs: fsys, dir: dir}, nil
}

// NewFileOS returns a file store on the host filesystem.
func NewFileOS(dir string) (*File, error) {
	return NewFile(afero.NewOsFs(), dir)
}

// filenames are hex so any key is a safe name
func (f *File) path(key string) string {
	return filepath.Join(f.dir, hex.EncodeToString([]byte(key))+fileExt)
}

func (f *File) Get(_ context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	env, err := f.read(f.path(key))
	if err != nil || env == nil {
		return nil, false, err
	}
	if expired(nowFunc(), env.ExpiresAt) {
		f.remove(f.path(key))
		return nil, false, nil
	}
	return env.Value, true, nil
}

// read returns (nil, nil) when the file does not exist.
func (f *File) read(p string) (*envelope, error) {
	data, err := afero.ReadFile(f.fs, p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache entry: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logging.Sub("cache").Warn("dropping unreadable cache entry", "path", p, "err", err)
		f.remove(p)
		return nil, nil
	}
	return &env, nil
}

func (f *File) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	now := nowFunc()
	data, err := json.Marshal(envelope{Value: value, ExpiresAt: expiry(now, ttl), CreatedAt: now})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	dst := f.path(key)
	tmp := dst + ".tmp"
	if err := afero.WriteFile(f.fs, tmp, data, 0640); err != nil {
		f.remove(tmp)
		return fmt.Errorf("write tmp: %w", err)
	}
	if err := f.fs.Rename(tmp, dst); err != nil {
		f.remove(tmp)
		return fmt.Errorf("rename tmp to entry: %w", err)
	}
	return nil
}

func (f *File) Delete(_ context.Context, key string) error {
	err := f.fs.Remove(f.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

func (f *File) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := f.Get(ctx, key)
	return ok, err
}

func (f *File) Keys(_ context.Context, pattern string) ([]string, error) {
	entries, err := afero.ReadDir(f.fs, f.dir)
	if err != nil {
		return nil, fmt.Errorf("list cache dir: %w", err)
	}
	now := nowFunc()
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		raw, err := hex.DecodeString(strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue
		}
		key := string(raw)
		if !Match(pattern, key) {
			continue
		}
		env, err := f.read(filepath.Join(f.dir, name))
		if err != nil {
			return nil, err
		}
		if env == nil {
			continue
		}
		if expired(now, env.ExpiresAt) {
			f.remove(filepath.Join(f.dir, name))
			continue
		}
		out = append(out, key)
	}
	return out, nil
}

func (f *File) Close() error { return nil }

func (f *File) remove(p string) {
	f.fs.Remove(p) //nolint:errcheck
}
