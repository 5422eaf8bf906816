package ratefeed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/patabima/pricing-engine/internal/ratetable"
)

// FileSource reads a feed from a YAML (.yaml, .yml) or JSON (.json) file.
// The file is re-read on every Load so reloads pick up edits.
type FileSource struct {
	Path string
}

// NewFileSource creates a file-backed source.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (s *FileSource) Load(ctx context.Context) (*ratetable.Feed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read feed file: %w", err)
	}
	feed, err := Decode(data, filepath.Ext(s.Path))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.Path, err)
	}
	return feed, nil
}

// Decode parses feed bytes. ext selects the format; anything other than
// ".json" is treated as YAML, which is a superset of JSON anyway.
func Decode(data []byte, ext string) (*ratetable.Feed, error) {
	var feed ratetable.Feed
	if strings.EqualFold(ext, ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&feed); err != nil {
			return nil, err
		}
		return &feed, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&feed); err != nil {
		return nil, err
	}
	return &feed, nil
}
