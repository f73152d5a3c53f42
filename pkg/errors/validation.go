package errors

import (
	"math"
	"regexp"
	"strings"
	"unicode"
)

// ValidatePixelScale checks that a pixel scale can divide raw coordinates.
// The scale must be a finite, strictly positive number.
func ValidatePixelScale(scale float64) error {
	if math.IsNaN(scale) || math.IsInf(scale, 0) {
		return New(ErrCodeInvalidInput, "pixel scale must be finite, got %v", scale)
	}
	if scale <= 0 {
		return New(ErrCodeInvalidInput, "pixel scale must be positive, got %v", scale)
	}
	return nil
}

// arrayPathRegex matches array names inside a store: slash separated
// segments of letters, digits, dots, dashes and underscores.
var arrayPathRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]+(/[A-Za-z0-9_.-]+)*$`)

// ValidateArrayPath validates the name of an array inside a store.
// It rejects names that could escape the store root.
//
// Validation rules:
//   - Name cannot be empty
//   - No leading or trailing slash
//   - No path traversal segments (..)
//   - Only letters, digits, '.', '-', '_' and '/' separators
func ValidateArrayPath(name string) error {
	if name == "" {
		return New(ErrCodeInvalidPath, "array path cannot be empty")
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." || seg == "." {
			return New(ErrCodeInvalidPath, "array path cannot contain %q segments", seg)
		}
	}
	if !arrayPathRegex.MatchString(name) {
		return New(ErrCodeInvalidPath, "invalid array path: %q", name)
	}
	return nil
}

// ValidateOutputPath validates a file path the CLI is asked to write.
// Empty means stdout and is accepted.
func ValidateOutputPath(path string) error {
	if path == "" {
		return nil
	}

	const maxPathLength = 4096
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if strings.HasSuffix(path, "/") {
		return New(ErrCodeInvalidPath, "output path must name a file, not a directory")
	}

	return nil
}

// allowedSchemes lists the URL schemes accepted for backend connections.
var allowedSchemes = []string{"http://", "https://", "redis://", "rediss://", "mongodb://", "mongodb+srv://"}

// ValidateURL validates a backend URL string for safety.
// It ensures the URL uses a scheme the application knows how to dial.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	for _, scheme := range allowedSchemes {
		if strings.HasPrefix(rawURL, scheme) {
			return nil
		}
	}
	return New(ErrCodeInvalidInput, "URL must use one of the schemes: http, https, redis, rediss, mongodb, mongodb+srv")
}
