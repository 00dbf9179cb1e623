// Package ingestion reads and normalizes resume and job description text before chunking.
package ingestion

import (
	"regexp"
	"strings"
)

var (
	tabRunPattern     = regexp.MustCompile(`[ ]*\t[\t ]*`)
	spaceRunPattern   = regexp.MustCompile(`[ \f\v\x{00A0}]{2,}`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	blankRunPattern   = regexp.MustCompile(`\n\n\n+`)
)

// PreprocessResume normalizes resume text extracted from documents.
// Tab-separated columns become " | " separators, runs of spaces collapse, every line is
// stripped and blank lines are limited to one in a row.
func PreprocessResume(content string) string {
	if content == "" {
		return ""
	}

	content = normalizeLineEndings(content)

	lines := strings.Split(content, "\n")
	cleaned := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = tabRunPattern.ReplaceAllString(line, " | ")
		line = spaceRunPattern.ReplaceAllString(line, " ")
		line = strings.TrimSpace(line)
		line = strings.Trim(line, "|")
		line = strings.TrimSpace(line)

		if line == "" {
			if blank || len(cleaned) == 0 {
				continue
			}
			blank = true
			cleaned = append(cleaned, "")
			continue
		}
		blank = false
		cleaned = append(cleaned, line)
	}

	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}

// CleanText cleans and normalizes job description text while preserving structure
func CleanText(content string) string {
	if content == "" {
		return ""
	}

	content = normalizeLineEndings(content)

	lines := strings.Split(content, "\n")
	cleanedLines := make([]string, 0, len(lines))
	for _, line := range lines {
		cleanedLines = append(cleanedLines, cleanLine(line))
	}

	result := strings.Join(cleanedLines, "\n")
	result = blankRunPattern.ReplaceAllString(result, "\n\n")
	return strings.TrimSpace(result)
}

func normalizeLineEndings(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	return strings.ReplaceAll(content, "\r", "\n")
}

// cleanLine cleans a single line while preserving headings, bullets and indentation
func cleanLine(line string) string {
	line = strings.TrimRight(line, " \t")
	if strings.TrimSpace(line) == "" {
		return ""
	}

	trimmed := strings.TrimLeft(line, " \t")
	if strings.HasPrefix(trimmed, "#") {
		return trimmed
	}

	indent := len(line) - len(trimmed)
	if isBulletLine(trimmed) {
		return strings.Repeat(" ", indent) + trimmed
	}

	content := whitespacePattern.ReplaceAllString(strings.TrimSpace(line), " ")
	return strings.Repeat(" ", indent) + content
}

// isBulletLine checks if a line is a bullet list item
func isBulletLine(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	return strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") ||
		strings.HasPrefix(trimmed, "• ") || strings.HasPrefix(trimmed, "· ")
}
