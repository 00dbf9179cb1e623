package ingestion

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// maxSourceBytes bounds a single uploaded text source
const maxSourceBytes = 4 << 20

// ParseResume validates and preprocesses raw resume text.
func ParseResume(raw string) (string, error) {
	if err := checkText(raw); err != nil {
		return "", err
	}
	text := PreprocessResume(raw)
	if text == "" {
		return "", &ParseError{Message: "source contains no text"}
	}
	return text, nil
}

// ParseJobDescription validates and cleans raw job description text.
func ParseJobDescription(raw string) (string, error) {
	if err := checkText(raw); err != nil {
		return "", err
	}
	text := CleanText(raw)
	if text == "" {
		return "", &ParseError{Message: "job description contains no text"}
	}
	return text, nil
}

// ReadResumeFile reads a plain text or markdown resume export.
func ReadResumeFile(path string) (string, error) {
	raw, err := readSource(path, ".txt", ".md", ".text")
	if err != nil {
		return "", err
	}
	text, err := ParseResume(raw)
	if err != nil {
		return "", withPath(err, path)
	}
	return text, nil
}

// ReadJobDescriptionFile reads a job description saved as text, markdown or HTML.
func ReadJobDescriptionFile(path string) (string, error) {
	raw, err := readSource(path, ".txt", ".md", ".text", ".html", ".htm")
	if err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".html" || ext == ".htm" {
		raw, err = ExtractHTMLText(raw)
		if err != nil {
			return "", withPath(err, path)
		}
	}

	text, err := ParseJobDescription(raw)
	if err != nil {
		return "", withPath(err, path)
	}
	return text, nil
}

func readSource(path string, allowed ...string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	supported := false
	for _, a := range allowed {
		if ext == a {
			supported = true
			break
		}
	}
	if !supported {
		return "", &ParseError{Path: path, Message: fmt.Sprintf("unsupported file type %q", ext)}
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &ParseError{Path: path, Message: "file not found", Cause: err}
		}
		return "", &ParseError{Path: path, Message: "failed to stat file", Cause: err}
	}
	if info.Size() > maxSourceBytes {
		return "", &ParseError{Path: path, Message: fmt.Sprintf("file exceeds %d bytes", maxSourceBytes)}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", &ParseError{Path: path, Message: "failed to read file", Cause: err}
	}
	return string(content), nil
}

func checkText(raw string) error {
	if len(raw) > maxSourceBytes {
		return &ParseError{Message: fmt.Sprintf("text exceeds %d bytes", maxSourceBytes)}
	}
	if !utf8.ValidString(raw) {
		return &ParseError{Message: "text is not valid UTF-8"}
	}
	if strings.ContainsRune(raw, 0) {
		return &ParseError{Message: "text contains NUL bytes (binary file?)"}
	}
	return nil
}

func withPath(err error, path string) error {
	if pe, ok := err.(*ParseError); ok && pe.Path == "" {
		copied := *pe
		copied.Path = path
		return &copied
	}
	return err
}
