package errors

import (
	"strings"
	"unicode"
)

// ValidateNodeName validates a node name from a channel definition.
// Node names become part of log lines and output metadata, so they must be
// printable and free of path separators.
func ValidateNodeName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidChannel, "node name cannot be empty")
	}
	if len(name) > 128 {
		return New(ErrCodeInvalidChannel, "node name too long (max 128 characters)")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidChannel, "node name contains invalid control characters")
		}
	}
	if strings.ContainsAny(name, "/\\") {
		return New(ErrCodeInvalidChannel, "node name cannot contain path separators")
	}
	return nil
}

// ValidateSensorName validates a sensor name used in output filenames.
// Sensor names are embedded in every image filename, so they must be simple
// basename-safe tokens.
func ValidateSensorName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "sensor name cannot be empty")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "sensor name contains invalid control characters")
		}
	}
	if strings.ContainsAny(name, "/\\*?#") {
		return New(ErrCodeInvalidInput, "sensor name cannot contain path or pattern characters")
	}
	return nil
}

// ValidateOutputDir validates an output directory path.
// It prevents traversal sequences and null bytes; relative paths are allowed
// because the CLI resolves them against the working directory.
func ValidateOutputDir(path string) error {
	if path == "" {
		return New(ErrCodeInvalidInput, "output directory cannot be empty")
	}
	if len(path) > 500 {
		return New(ErrCodeInvalidInput, "output directory path too long (max 500 characters)")
	}
	if strings.Contains(path, "\x00") {
		return New(ErrCodeInvalidInput, "output directory contains null byte")
	}
	if strings.Contains(path, "..") {
		return New(ErrCodeInvalidInput, "output directory cannot contain traversal sequences")
	}
	return nil
}
