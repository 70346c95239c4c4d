package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var errUnknownFormat = errors.New("request file must be .toml, .yaml, .yml or .json")

// decodeRequestFile decodes path into dst by file extension. Fields absent
// from the file keep the values already in dst; unknown fields are rejected.
func decodeRequestFile(path string, dst any) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".toml", ".yaml", ".yml", ".json":
	default:
		return fmt.Errorf("%w: %s", errUnknownFormat, path)
	}

	f, err := os.Open(path) // #nosec G304 - path is supplied by the operator
	if err != nil {
		return fmt.Errorf("open request file: %w", err)
	}
	defer f.Close()

	switch ext {
	case ".toml":
		err = toml.NewDecoder(f).DisallowUnknownFields().Decode(dst)
	case ".json":
		dec := json.NewDecoder(f)
		dec.DisallowUnknownFields()
		err = dec.Decode(dst)
	default:
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		err = dec.Decode(dst)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
