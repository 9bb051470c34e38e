package template

import (
	"path"
	"strings"
)

// Loader resolves a template name relative to the directory of the template
// asking for it and returns the resolved path and its text. A name that
// cannot be found is reported as a *MissingError.
type Loader interface {
	Load(name, dir string) (file, source string, err error)
}

// Resolve joins names starting with "./" or "../" to dir. Other names are
// relative to the template root.
func Resolve(name, dir string) string {
	if strings.HasPrefix(name, "./") || strings.HasPrefix(name, "../") {
		return path.Join(dir, name)
	}
	return path.Clean(name)
}

// MemoryLoader serves templates from a map keyed by path.
type MemoryLoader map[string]string

func (m MemoryLoader) Load(name, dir string) (string, string, error) {
	file := Resolve(name, dir)
	if s, ok := m[file]; ok {
		return file, s, nil
	}
	return "", "", &MissingError{Path: file}
}
