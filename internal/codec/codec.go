// Package codec serializes domain.Response and the engine's error taxonomy
// to and from their JSON-compatible form using jsoniter, configured for
// stdlib-compatible output so a Response round-trips with identical fields.
package codec

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/bdurand/async-http-pool/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EncodeResponse serializes a Response to its JSON-compatible byte form.
func EncodeResponse(resp domain.Response) ([]byte, error) {
	return json.Marshal(resp)
}

// DecodeResponse reverses EncodeResponse. Testable property 6 requires this
// to reproduce every field of the original Response exactly.
func DecodeResponse(data []byte) (domain.Response, error) {
	var resp domain.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return domain.Response{}, fmt.Errorf("codec: decode response: %w", err)
	}
	return resp, nil
}

// errorEnvelope is the wire form every engine error taxonomy member shares:
// a discriminant plus the raw JSON of the concrete error, so a consumer in
// another process can tell a RedirectError from a ResponseTooLargeError
// without reflection on the Go side.
type errorEnvelope struct {
	Kind string          `json:"kind"`
	Data jsoniter.RawMessage `json:"data"`
}

// EncodeError serializes any engine error to its JSON-compatible envelope.
// Errors outside the known taxonomy are encoded as a plain message under
// kind "unknown" rather than failing.
func EncodeError(err error) ([]byte, error) {
	kind, payload := classify(err)

	data, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return nil, fmt.Errorf("codec: encode error: %w", marshalErr)
	}

	return json.Marshal(errorEnvelope{Kind: kind, Data: data})
}

func classify(err error) (string, any) {
	switch e := err.(type) {
	case *domain.RequestError:
		return "request_error", e
	case *domain.ClientError:
		return "client_error", e
	case *domain.ServerError:
		return "server_error", e
	case *domain.RedirectError:
		return "redirect_error", e
	case *domain.ResponseTooLargeError:
		return "response_too_large", e
	case *domain.NotRunningError:
		return "not_running", e
	case *domain.MaxCapacityError:
		return "max_capacity", e
	default:
		return "unknown", map[string]string{"message": err.Error()}
	}
}

// DecodeError reverses EncodeError, reconstructing the concrete error type
// named by its envelope's kind.
func DecodeError(data []byte) (error, error) {
	var envelope errorEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("codec: decode error envelope: %w", err)
	}

	var target any
	switch envelope.Kind {
	case "request_error":
		target = &domain.RequestError{}
	case "client_error":
		target = &domain.ClientError{}
	case "server_error":
		target = &domain.ServerError{}
	case "redirect_error":
		target = &domain.RedirectError{}
	case "response_too_large":
		target = &domain.ResponseTooLargeError{}
	case "not_running":
		target = &domain.NotRunningError{}
	case "max_capacity":
		target = &domain.MaxCapacityError{}
	default:
		var msg struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Data, &msg); err != nil {
			return nil, fmt.Errorf("codec: decode unknown error: %w", err)
		}
		return fmt.Errorf("%s", msg.Message), nil
	}

	if err := json.Unmarshal(envelope.Data, target); err != nil {
		return nil, fmt.Errorf("codec: decode %s: %w", envelope.Kind, err)
	}

	return target.(error), nil
}
