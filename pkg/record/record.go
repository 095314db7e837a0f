// Package record persists the per-container metadata lxt owns: the
// container's name, its base image and the port-forward rules installed for
// it on the host firewall.
package record

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSubpath is where a record lives relative to its container directory.
const DefaultSubpath = ".conf/ct.yml"

// ErrNotFound is returned by Load when the container directory has no record.
var ErrNotFound = errors.New("container record not found")

// Record is the persisted identity of one container.
type Record struct {
	Name         string   `yaml:"name"`
	Image        string   `yaml:"image"`
	Portforwards []string `yaml:"portforward"`

	// Path is the container directory owning this record. Not persisted.
	Path string `yaml:"-"`
}

// New returns a record for the container directory at path. An empty name
// defaults to the last path segment.
func New(path, name, image string) *Record {
	if name == "" {
		name = filepath.Base(filepath.Clean(path))
	}
	return &Record{
		Name:         name,
		Image:        image,
		Portforwards: []string{},
		Path:         path,
	}
}

func (r *Record) HasPortforward(spec string) bool {
	for _, pf := range r.Portforwards {
		if pf == spec {
			return true
		}
	}
	return false
}

func (r *Record) AddPortforward(spec string) {
	r.Portforwards = append(r.Portforwards, spec)
}

// RemovePortforward drops the first entry equal to spec and reports whether
// one was found.
func (r *Record) RemovePortforward(spec string) bool {
	for i, pf := range r.Portforwards {
		if pf == spec {
			r.Portforwards = append(r.Portforwards[:i], r.Portforwards[i+1:]...)
			return true
		}
	}
	return false
}

// PortforwardsSnapshot returns a copy of the rule list, safe to iterate while
// the record is being mutated.
func (r *Record) PortforwardsSnapshot() []string {
	return append([]string(nil), r.Portforwards...)
}

// Store reads and writes records under a fixed subpath of each container
// directory.
type Store struct {
	Subpath string
}

func NewStore(subpath string) *Store {
	if subpath == "" {
		subpath = DefaultSubpath
	}
	return &Store{Subpath: subpath}
}

// File returns the record file for the container directory at path.
func (s *Store) File(path string) string {
	return filepath.Join(path, s.Subpath)
}

func (s *Store) Exists(path string) bool {
	_, err := os.Stat(s.File(path))
	return err == nil
}

func (s *Store) Load(path string) (*Record, error) {
	data, err := os.ReadFile(s.File(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read container record: %w", err)
	}

	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse container record %s: %w", s.File(path), err)
	}
	if rec.Portforwards == nil {
		rec.Portforwards = []string{}
	}
	rec.Path = path
	return &rec, nil
}

// Save writes rec atomically: a temp file in the same directory is renamed
// over the record.
func (s *Store) Save(rec *Record) error {
	file := s.File(rec.Path)
	dir := filepath.Dir(file)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}

	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode container record: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ct-*.yml")
	if err != nil {
		return fmt.Errorf("failed to save container record: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to save container record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to save container record: %w", err)
	}
	if err := os.Rename(tmpName, file); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to save container record: %w", err)
	}
	return nil
}

// Destroy removes the record of rec's container. A record that is already
// gone is not an error.
func (s *Store) Destroy(rec *Record) error {
	if err := os.Remove(s.File(rec.Path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to destroy container record: %w", err)
	}
	return nil
}
