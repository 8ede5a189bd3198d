package params

import (
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// File is a set of named entries.
type File map[string]Entry

// Read decodes a YAML document mapping names to entries.
func Read(r io.Reader) (File, error) {
	var f File
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return File{}, nil
		}
		return nil, errors.Wrap(err, "decode parameter file")
	}
	return f, nil
}

// LoadFile reads the parameter file at path.
func LoadFile(path string) (File, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open parameter file")
	}
	defer fd.Close()
	return Read(fd)
}

// Write encodes f as YAML.
func (f File) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]Entry(f)); err != nil {
		return errors.Wrap(err, "encode parameter file")
	}
	return enc.Close()
}

// Names returns the entry names in order.
func (f File) Names() []string {
	names := make([]string, 0, len(f))
	for n := range f {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the entry called name.
func (f File) Lookup(name string) (Entry, error) {
	e, ok := f[name]
	if !ok {
		return Entry{}, errors.Errorf("no parameter set %q", name)
	}
	return e, nil
}
