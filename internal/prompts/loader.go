// Package prompts holds the oracle prompt templates. Each embedded JSON file maps a prompt
// key to a template with {{.Name}} placeholders.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

//go:embed *.json
var files embed.FS

var placeholderPattern = regexp.MustCompile(`\{\{\.([A-Za-z][A-Za-z0-9_]*)\}\}`)

type parsedFile struct {
	prompts map[string]string
	err     error
}

var (
	mu     sync.Mutex
	parsed = make(map[string]*parsedFile)
)

// load parses a prompt file once; later calls return the same result, including a parse error.
func load(filename string) (map[string]string, error) {
	mu.Lock()
	defer mu.Unlock()
	if f, ok := parsed[filename]; ok {
		return f.prompts, f.err
	}

	f := &parsedFile{}
	data, err := files.ReadFile(filename)
	switch {
	case err != nil:
		f.err = fmt.Errorf("failed to read prompt file %s: %w", filename, err)
	default:
		if err := json.Unmarshal(data, &f.prompts); err != nil {
			f.err = fmt.Errorf("failed to parse prompt file %s: %w", filename, err)
		}
	}
	parsed[filename] = f
	return f.prompts, f.err
}

// Get returns the raw template stored under key in filename (e.g. "classify.json").
func Get(filename, key string) (string, error) {
	prompts, err := load(filename)
	if err != nil {
		return "", err
	}
	template, ok := prompts[key]
	if !ok {
		return "", fmt.Errorf("prompt key %q not found in %s", key, filename)
	}
	return template, nil
}

// Placeholders returns the distinct placeholder names of a template, sorted.
func Placeholders(template string) []string {
	seen := map[string]bool{}
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	sort.Strings(names)
	return names
}

// Render fills a template from data in a single pass, so values that themselves contain
// "{{.X}}" are inserted literally. It fails if any placeholder has no value.
func Render(filename, key string, data map[string]string) (string, error) {
	template, err := Get(filename, key)
	if err != nil {
		return "", err
	}

	var missing []string
	for _, name := range Placeholders(template) {
		if _, ok := data[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("prompt %s/%s: missing values for %s", filename, key, strings.Join(missing, ", "))
	}

	result := placeholderPattern.ReplaceAllStringFunc(template, func(ph string) string {
		return data[placeholderPattern.FindStringSubmatch(ph)[1]]
	})
	return result, nil
}
