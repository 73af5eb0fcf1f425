// Package reader streams an HTTP response body into bytes while enforcing a
// hard size cap and transparently decompressing gzip/deflate content.
package reader

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"errors"
	"io"
	"strings"

	"github.com/bdurand/async-http-pool/pkg/pool"
)

// ErrTooLarge is returned once decompressed bytes read would exceed the
// configured limit. The caller maps this to domain.ResponseTooLargeError.
var ErrTooLarge = errors.New("reader: response exceeded max bytes")

// bufferPool recycles the scratch buffers every response body is streamed
// into, since Read runs on every request the reactor dispatches.
var bufferPool = pool.NewLitePool(func() *bytes.Buffer { return new(bytes.Buffer) })

// Read consumes body (already decoded by the transport's connection framing,
// i.e. content-length/chunked handling is done), decompressing it according
// to contentEncoding, and returns up to maxBytes of decompressed content.
// Exceeding maxBytes aborts with ErrTooLarge; a premature EOF mid-stream is
// returned unwrapped so the caller can classify it as transport I/O failure.
func Read(body io.Reader, contentEncoding string, maxBytes int64) ([]byte, error) {
	decoded, closer, err := decompress(body, contentEncoding)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		defer closer.Close()
	}

	buf := bufferPool.Get()
	defer bufferPool.Put(buf)

	limited := io.LimitReader(decoded, maxBytes+1)
	if _, err := io.Copy(buf, limited); err != nil {
		return nil, err
	}

	if int64(buf.Len()) > maxBytes {
		return nil, ErrTooLarge
	}

	data := make([]byte, buf.Len())
	copy(data, buf.Bytes())
	return data, nil
}

func decompress(body io.Reader, contentEncoding string) (io.Reader, io.Closer, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "gzip":
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, nil, err
		}
		return gz, gz, nil
	case "deflate":
		fl := flate.NewReader(body)
		return fl, fl, nil
	default:
		return body, nil, nil
	}
}
