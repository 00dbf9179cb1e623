package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jonathan/career-fit/internal/ingestion"
	"github.com/jonathan/career-fit/internal/schemas"
	"github.com/jonathan/career-fit/internal/types"
)

// LoadItems reads job descriptions from path. A .json file holds an array of items; a
// directory contributes every .json file plus one item per .txt, .md or .html file, with
// the file name (without extension) as the id.
func LoadItems(path string) ([]types.JDItem, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !info.IsDir() {
		return loadFile(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var items []types.JDItem
	for _, name := range names {
		switch strings.ToLower(filepath.Ext(name)) {
		case ".json", ".txt", ".md", ".text", ".html", ".htm":
		default:
			continue
		}
		loaded, err := loadFile(filepath.Join(path, name))
		if err != nil {
			return nil, err
		}
		items = append(items, loaded...)
	}
	return items, nil
}

func loadFile(path string) ([]types.JDItem, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".json" {
		text, err := ingestion.ReadJobDescriptionFile(path)
		if err != nil {
			return nil, err
		}
		id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		return []types.JDItem{{ID: id, Title: id, Text: text}}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := schemas.Validate(schemas.JDItems, data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var items []types.JDItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return items, nil
}
