package domain

// PayloadLocation distinguishes where a Payload's bytes currently live.
type PayloadLocation string

const (
	PayloadInline PayloadLocation = "inline"
	PayloadStored PayloadLocation = "stored"
)

// Payload is either the raw bytes of a request/response body, or a pointer
// to where ExternalStorage put them after they crossed the offload
// threshold. Exactly one of the two forms is populated, selected by Location.
type Payload struct {
	Location    PayloadLocation
	Bytes       []byte
	StoreID     string
	Key         string
	Size        int64
	ContentType string
}

// NewInlinePayload wraps body as a payload that was never offloaded.
func NewInlinePayload(body []byte) Payload {
	return Payload{
		Location: PayloadInline,
		Bytes:    body,
		Size:     int64(len(body)),
	}
}

// NewStoredPayload describes a payload that ExternalStorage has persisted
// under storeID/key, with its original size and content-type preserved so a
// materializing caller can reconstruct headers without re-reading the bytes.
func NewStoredPayload(storeID, key string, size int64, contentType string) Payload {
	return Payload{
		Location:    PayloadStored,
		StoreID:     storeID,
		Key:         key,
		Size:        size,
		ContentType: contentType,
	}
}

func (p Payload) IsInline() bool { return p.Location == PayloadInline }
func (p Payload) IsStored() bool { return p.Location == PayloadStored }
