package errors

import (
	"math"
	"testing"
)

func TestValidatePixelScale(t *testing.T) {
	tests := []struct {
		name    string
		input   float64
		wantErr bool
	}{
		{"xenium default", 0.2125, false},
		{"one", 1, false},
		{"large", 1e6, false},

		{"zero", 0, true},
		{"negative", -0.5, true},
		{"nan", math.NaN(), true},
		{"+inf", math.Inf(1), true},
		{"-inf", math.Inf(-1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePixelScale(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePixelScale(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidInput) {
				t.Errorf("ValidatePixelScale(%v) code = %v, want %v", tt.input, GetCode(err), ErrCodeInvalidInput)
			}
		})
	}
}

func TestValidateArrayPath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"root array", "cell_id", false},
		{"nested", "polygon_sets/0/vertices", false},
		{"dotted", "masks.v2/0", false},

		{"empty", "", true},
		{"leading slash", "/cell_id", true},
		{"trailing slash", "cell_id/", true},
		{"traversal", "polygon_sets/../secret", true},
		{"dot segment", "polygon_sets/./0", true},
		{"double slash", "polygon_sets//0", true},
		{"backslash", "polygon_sets\\0", true},
		{"space", "cell id", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateArrayPath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateArrayPath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateOutputPath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"stdout", "", false},
		{"relative", "exported_cells.geojson", false},
		{"absolute", "/tmp/out/cells.geojson", false},

		{"directory", "out/", true},
		{"null byte", "cells\x00.geojson", true},
		{"newline", "cells\n.geojson", true},
		{"too long", string(make([]byte, 5000)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutputPath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateOutputPath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"https", "https://example.com/path", false},
		{"http", "http://example.com/path", false},
		{"redis", "redis://localhost:6379/0", false},
		{"rediss", "rediss://cache.internal:6380", false},
		{"mongodb", "mongodb://localhost:27017", false},
		{"mongodb srv", "mongodb+srv://cluster.example.net", false},

		{"empty", "", true},
		{"ftp", "ftp://example.com", true},
		{"file", "file:///etc/passwd", true},
		{"javascript", "javascript:alert(1)", true},
		{"no scheme", "example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
