package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bdurand/async-http-pool/internal/domain"
)

func TestResponse_RoundTrip(t *testing.T) {
	headers := domain.NewHttpHeaders()
	headers.Set("Content-Type", "application/json")

	original := domain.NewResponse(
		200,
		headers,
		[]byte(`{"ok":true}`),
		domain.MethodPost,
		"https://example.com/api/widgets",
		map[string]any{"request_id": "abc-123", "retries": float64(2)},
	)

	data, err := EncodeResponse(original)
	assert.NoError(t, err)

	decoded, err := DecodeResponse(data)
	assert.NoError(t, err)

	assert.Equal(t, original.Status, decoded.Status)
	assert.Equal(t, original.Method, decoded.Method)
	assert.Equal(t, original.URL, decoded.URL)
	assert.Equal(t, original.Body, decoded.Body)
	assert.Equal(t, original.Headers, decoded.Headers)
	assert.Equal(t, original.CallbackArgs, decoded.CallbackArgs)
}

func TestResponse_RoundTrip_EmptyBody(t *testing.T) {
	original := domain.NewResponse(204, domain.NewHttpHeaders(), nil, domain.MethodDelete, "https://example.com/x", nil)

	data, err := EncodeResponse(original)
	assert.NoError(t, err)

	decoded, err := DecodeResponse(data)
	assert.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestError_RoundTrip_RequestError(t *testing.T) {
	req, _ := domain.NewRequest(domain.MethodGet, "https://example.com/slow")
	original := domain.NewRequestError(domain.RequestErrorTimeout, req, map[string]any{"job": "x"}, nil)

	data, err := EncodeError(original)
	assert.NoError(t, err)

	decoded, err := DecodeError(data)
	assert.NoError(t, err)

	var reqErr *domain.RequestError
	assert.ErrorAs(t, decoded, &reqErr)
	assert.Equal(t, domain.RequestErrorTimeout, reqErr.Kind)
	assert.Equal(t, "GET", reqErr.Method)
	assert.Equal(t, "https://example.com/slow", reqErr.URL)
}

func TestError_RoundTrip_RedirectError(t *testing.T) {
	req, _ := domain.NewRequest(domain.MethodGet, "https://example.com/a")
	original := domain.NewTooManyRedirectsError(req, nil, "https://example.com/z")

	data, err := EncodeError(original)
	assert.NoError(t, err)

	decoded, err := DecodeError(data)
	assert.NoError(t, err)

	var redirErr *domain.RedirectError
	assert.ErrorAs(t, decoded, &redirErr)
	assert.Equal(t, domain.RedirectTooMany, redirErr.Kind)
	assert.Equal(t, "https://example.com/z", redirErr.FinalURL)
}

func TestError_RoundTrip_MaxCapacityError(t *testing.T) {
	original := domain.NewMaxCapacityError(5, 10)

	data, err := EncodeError(original)
	assert.NoError(t, err)

	decoded, err := DecodeError(data)
	assert.NoError(t, err)

	var capErr *domain.MaxCapacityError
	assert.ErrorAs(t, decoded, &capErr)
	assert.Equal(t, 5, capErr.QueueSize)
	assert.Equal(t, 10, capErr.InFlight)
}
