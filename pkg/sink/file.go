package sink

import (
	"context"
	"io"

	"github.com/gabrielascui/xenium-to-qupath/pkg/cells"
	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
	xio "github.com/gabrielascui/xenium-to-qupath/pkg/io"
	"github.com/gabrielascui/xenium-to-qupath/pkg/pipeline"
)

// FileSink writes the collection to a file. The file appears complete or
// not at all.
type FileSink struct {
	Path   string
	Format string // pipeline.FormatGeoJSON or pipeline.FormatNDJSON
	Indent int    // GeoJSON indentation; negative is compact

	// Data, when set, is the already encoded document and is written as is.
	Data []byte
}

// NewFileSink checks path and format.
func NewFileSink(path, format string, indent int) (*FileSink, error) {
	if path == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidPath, "output path is empty")
	}
	if err := apperrors.ValidateOutputPath(path); err != nil {
		return nil, err
	}
	if format == "" {
		format = pipeline.FormatGeoJSON
	}
	if err := pipeline.ValidateFormat(format); err != nil {
		return nil, err
	}
	return &FileSink{Path: path, Format: format, Indent: indent}, nil
}

// Name returns "file".
func (s *FileSink) Name() string { return "file" }

// Publish encodes c and writes it to s.Path.
func (s *FileSink) Publish(ctx context.Context, c *cells.Collection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := s.Encode(c)
	if err != nil {
		return err
	}
	return xio.WriteFile(s.Path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// Encode returns s.Data, or c rendered in s.Format when Data is unset.
func (s *FileSink) Encode(c *cells.Collection) ([]byte, error) {
	if s.Data != nil {
		return s.Data, nil
	}
	return pipeline.EncodeFormat(c, s.Format, s.Indent)
}

// Close does nothing.
func (s *FileSink) Close(context.Context) error { return nil }

var _ Sink = (*FileSink)(nil)
