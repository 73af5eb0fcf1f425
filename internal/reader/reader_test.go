package reader

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRead_PlainBodyUnderLimit(t *testing.T) {
	data, err := Read(strings.NewReader("hello world"), "", 1024)
	assert.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestRead_ExceedsMaxBytes(t *testing.T) {
	body := strings.NewReader(strings.Repeat("x", 5000))
	_, err := Read(body, "", 1024)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestRead_GzipDecompression(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = gz.Write([]byte("decompressed payload"))
	_ = gz.Close()

	data, err := Read(&buf, "gzip", 1024)
	assert.NoError(t, err)
	assert.Equal(t, "decompressed payload", string(data))
}

func TestRead_GzipDecompressedSizeCountsAgainstLimit(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = gz.Write([]byte(strings.Repeat("y", 10000)))
	_ = gz.Close()

	_, err := Read(&buf, "gzip", 100)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestRead_PrematureEOFPropagates(t *testing.T) {
	_, err := Read(failingReader{}, "", 1024)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrTooLarge))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}
