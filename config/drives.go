package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	gosync "sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/ghyeongl/warehouse/drive"
)

var (
	ErrInvalidURL     = errors.New("invalid google drive url")
	ErrDuplicateDrive = errors.New("drive folder already added")
	ErrDriveNotFound  = errors.New("drive not found")
)

// Drive is one configured root folder.
type Drive struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	URL      string `yaml:"url" json:"url"`
	FolderID string `yaml:"folderId,omitempty" json:"folderId"`
	Enabled  bool   `yaml:"enabled" json:"enabled"`
}

func (d Drive) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.ID, validation.Required),
		validation.Field(&d.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&d.URL, validation.Required),
		validation.Field(&d.FolderID, validation.Required, validation.By(validFolderID)),
	)
}

func validFolderID(value any) error {
	id, _ := value.(string)
	if !drive.ValidateID(id) {
		return errors.New("must be 10-100 letters, digits, '-' or '_'")
	}
	return nil
}

// Settings are the scheduling knobs stored with the drive list.
type Settings struct {
	AutoSync            bool `yaml:"autoSync" json:"autoSync"`
	SyncIntervalMinutes int  `yaml:"syncIntervalMinutes" json:"syncIntervalMinutes"`
}

// DefaultSettings apply to a missing drives file.
var DefaultSettings = Settings{AutoSync: true, SyncIntervalMinutes: 5}

// DrivesFile is the on-disk document.
type DrivesFile struct {
	Drives   []Drive  `yaml:"drives" json:"drives"`
	Settings Settings `yaml:"settings" json:"settings"`
}

// DriveUpdate holds optional field changes for Update.
type DriveUpdate struct {
	Name    *string `json:"name,omitempty"`
	URL     *string `json:"url,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// Drives reads and writes the drives file. Every mutation is a full
// read-modify-write under one mutex.
type Drives struct {
	mu   gosync.Mutex
	path string
}

// NewDrives manages the drives file at path. The file need not exist.
func NewDrives(path string) *Drives {
	return &Drives{path: path}
}

// Path returns the drives file location.
func (d *Drives) Path() string { return d.path }

// Read returns the current document. A missing file reads as defaults.
// Drives saved without a folder id get one derived from the URL.
func (d *Drives) Read() (*DrivesFile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.read()
}

func (d *Drives) read() (*DrivesFile, error) {
	f := &DrivesFile{Drives: []Drive{}, Settings: DefaultSettings}
	data, err := os.ReadFile(d.path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read drives: %w", err)
	}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("decode drives %s: %w", d.path, err)
	}
	if f.Drives == nil {
		f.Drives = []Drive{}
	}
	if f.Settings.SyncIntervalMinutes <= 0 {
		f.Settings.SyncIntervalMinutes = DefaultSettings.SyncIntervalMinutes
	}
	for i := range f.Drives {
		if f.Drives[i].FolderID == "" {
			f.Drives[i].FolderID, _ = drive.ParseURL(f.Drives[i].URL)
		}
	}
	return f, nil
}

func (d *Drives) write(f *DrivesFile) error {
	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return fmt.Errorf("create drives dir: %w", err)
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode drives: %w", err)
	}
	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write drives: %w", err)
	}
	if err := os.Rename(tmp, d.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename drives: %w", err)
	}
	return nil
}

func (d *Drives) update(fn func(f *DrivesFile) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, err := d.read()
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		return err
	}
	return d.write(f)
}

// Add appends a drive. The folder id comes from the URL and must not be
// configured yet; an empty ID gets a fresh one.
func (d *Drives) Add(in Drive) (Drive, error) {
	folderID, err := drive.ParseURL(in.URL)
	if err != nil {
		return Drive{}, fmt.Errorf("add drive %q: %w", in.URL, ErrInvalidURL)
	}
	in.FolderID = folderID
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if err := in.Validate(); err != nil {
		return Drive{}, fmt.Errorf("add drive: %w", err)
	}

	err = d.update(func(f *DrivesFile) error {
		if lo.ContainsBy(f.Drives, func(x Drive) bool { return x.FolderID == folderID }) {
			return fmt.Errorf("add drive %s: %w", folderID, ErrDuplicateDrive)
		}
		if lo.ContainsBy(f.Drives, func(x Drive) bool { return x.ID == in.ID }) {
			return fmt.Errorf("add drive: id %q in use: %w", in.ID, ErrDuplicateDrive)
		}
		f.Drives = append(f.Drives, in)
		return nil
	})
	if err != nil {
		return Drive{}, err
	}
	return in, nil
}

// Remove deletes the drive with id.
func (d *Drives) Remove(id string) error {
	return d.update(func(f *DrivesFile) error {
		kept := lo.Reject(f.Drives, func(x Drive, _ int) bool { return x.ID == id })
		if len(kept) == len(f.Drives) {
			return fmt.Errorf("remove drive %s: %w", id, ErrDriveNotFound)
		}
		f.Drives = kept
		return nil
	})
}

// Update applies u to the drive with id and returns the result. A new
// URL re-derives the folder id.
func (d *Drives) Update(id string, u DriveUpdate) (*Drive, error) {
	var out Drive
	err := d.update(func(f *DrivesFile) error {
		_, i, ok := lo.FindIndexOf(f.Drives, func(x Drive) bool { return x.ID == id })
		if !ok {
			return fmt.Errorf("update drive %s: %w", id, ErrDriveNotFound)
		}
		next := f.Drives[i]
		if u.Name != nil {
			next.Name = *u.Name
		}
		if u.Enabled != nil {
			next.Enabled = *u.Enabled
		}
		if u.URL != nil && *u.URL != next.URL {
			folderID, err := drive.ParseURL(*u.URL)
			if err != nil {
				return fmt.Errorf("update drive %s: %w", id, ErrInvalidURL)
			}
			next.URL = *u.URL
			next.FolderID = folderID
		}
		if err := next.Validate(); err != nil {
			return fmt.Errorf("update drive %s: %w", id, err)
		}
		f.Drives[i] = next
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SetEnabled toggles one drive.
func (d *Drives) SetEnabled(id string, enabled bool) error {
	_, err := d.Update(id, DriveUpdate{Enabled: &enabled})
	return err
}

// UpdateSettings replaces the settings, keeping the interval when s
// leaves it at zero.
func (d *Drives) UpdateSettings(s Settings) (Settings, error) {
	var out Settings
	err := d.update(func(f *DrivesFile) error {
		if s.SyncIntervalMinutes <= 0 {
			s.SyncIntervalMinutes = f.Settings.SyncIntervalMinutes
		}
		f.Settings = s
		out = s
		return nil
	})
	return out, err
}

// Enabled returns enabled drives that resolved to a folder id.
func (d *Drives) Enabled() ([]Drive, error) {
	f, err := d.Read()
	if err != nil {
		return nil, err
	}
	return lo.Filter(f.Drives, func(x Drive, _ int) bool {
		return x.Enabled && x.FolderID != ""
	}), nil
}

// Name returns the configured name for folderID, or "" when no drive
// points at it.
func (d *Drives) Name(folderID string) string {
	f, err := d.Read()
	if err != nil {
		return ""
	}
	x, ok := lo.Find(f.Drives, func(x Drive) bool { return x.FolderID == folderID })
	if !ok {
		return ""
	}
	return x.Name
}
