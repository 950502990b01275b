// Package programs stores motion programs in a single flat directory.
package programs

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrFile is wrapped by every error returned from Dir.
	ErrFile = errors.New("program file error")

	// ErrInvalidName is returned for names that are empty or carry a path.
	ErrInvalidName = errors.New("invalid name")
)

// Dir is a directory of motion programs addressed by file name only.
type Dir struct {
	path string
}

func NewDir(path string) *Dir { return &Dir{path: path} }

func (d *Dir) Path() string { return d.path }

// safeName resolves name inside the directory. Names that are empty or
// carry a path are rejected.
func (d *Dir) safeName(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %w %q", ErrFile, ErrInvalidName, name)
	}
	return filepath.Join(d.path, name), nil
}

// List returns the sorted names of all regular files. A directory that
// cannot be read yields nil.
func (d *Dir) List() []string {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		log.Printf("ERROR: list '%s': %+v", d.path, err)
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

// Read returns the content of the named program.
func (d *Dir) Read(name string) (string, error) {
	fullName, err := d.safeName(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(fullName)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", ErrFile, name, err)
	}
	return string(data), nil
}

// Lines returns the named program split into lines, without line endings.
func (d *Dir) Lines(name string) ([]string, error) {
	data, err := d.Read(name)
	if err != nil {
		return nil, err
	}
	return SplitLines(data), nil
}

// Write creates or replaces the named program.
func (d *Dir) Write(name string, data []byte) error {
	fullName, err := d.safeName(name)
	if err != nil {
		return err
	}
	err = os.MkdirAll(d.path, 0755)
	if err == nil {
		err = os.WriteFile(fullName, data, 0644)
	}
	if err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrFile, name, err)
	}
	return nil
}

// Remove deletes the named program.
func (d *Dir) Remove(name string) error {
	fullName, err := d.safeName(name)
	if err != nil {
		return err
	}
	if err = os.Remove(fullName); err != nil {
		return fmt.Errorf("%w: remove %s: %w", ErrFile, name, err)
	}
	return nil
}

// SplitLines splits program text into lines. A trailing newline does not
// produce an empty last line.
func SplitLines(data string) []string {
	data = strings.ReplaceAll(data, "\r\n", "\n")
	data = strings.TrimSuffix(data, "\n")
	if data == "" {
		return nil
	}
	return strings.Split(data, "\n")
}
