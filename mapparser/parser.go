package mapparser

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"daqcore/regcatalog"
)

// jsonExtension is the dialect-selecting suffix for the JSON map-file
// format, per spec.md §4.C. Anything else falls back to the traditional
// line-oriented dialect (§4.A/§4.B).
const jsonExtension = ".jmap"

// ParseFile reads path and parses it with the dialect selected by its
// extension.
func ParseFile(path string) (*regcatalog.Catalogue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := filepath.Base(path)
	if strings.EqualFold(filepath.Ext(path), jsonExtension) {
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, err
		}
		return ParseJSON(data, name)
	}
	return ParseTraditional(f, name)
}

// Parse dispatches on name's extension, reading the map file's contents
// from r. Useful when the source isn't a plain file (embedded asset,
// in-memory buffer).
func Parse(r io.Reader, name string) (*regcatalog.Catalogue, error) {
	if strings.EqualFold(filepath.Ext(name), jsonExtension) {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		return ParseJSON(data, name)
	}
	return ParseTraditional(r, name)
}
