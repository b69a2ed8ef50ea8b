package stripesync

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is the decoded webhook envelope. Object holds the raw resource
// payload from data.object; mergers decode it per resource kind.
type Event struct {
	ID      string
	Type    string
	Created time.Time
	Object  json.RawMessage
}

type rawEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    *struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// DecodeEvent parses a raw webhook body into an Event. The body must already
// have passed signature verification; DecodeEvent only checks shape.
// Returns ErrMalformedEvent when required envelope fields are absent.
func DecodeEvent(body []byte) (*Event, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if raw.ID == "" {
		return nil, fmt.Errorf("%w: missing event id", ErrMalformedEvent)
	}
	if raw.Type == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrMalformedEvent)
	}
	if raw.Created == 0 {
		return nil, fmt.Errorf("%w: missing created timestamp", ErrMalformedEvent)
	}
	if raw.Data == nil || len(raw.Data.Object) == 0 {
		return nil, fmt.Errorf("%w: missing data.object", ErrMalformedEvent)
	}

	return &Event{
		ID:      raw.ID,
		Type:    raw.Type,
		Created: time.Unix(raw.Created, 0).UTC(),
		Object:  raw.Data.Object,
	}, nil
}
