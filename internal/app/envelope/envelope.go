package envelope

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"xray/internal/app/errors"
	"xray/internal/app/record"
)

// Envelope is the raw ingress event emitted by a producer. The payload is
// base64-encoded text; trace is an arbitrary structured value or a string
// that may itself contain JSON.
type Envelope struct {
	Level   string          `json:"level"`
	Project string          `json:"project"`
	Payload string          `json:"payload"`
	Trace   json.RawMessage `json:"trace,omitempty"`
}

// Decoder converts raw ingress envelopes into log records
type Decoder interface {
	Decode(raw []byte) (record.Record, error)
}

// decoder implements the Decoder interface
type decoder struct {
	now func() time.Time
}

// NewDecoder creates a new envelope decoder
func NewDecoder() Decoder {
	return &decoder{now: time.Now}
}

// Decode parses a raw envelope and produces a log record with a fresh id
// and the current ingestion timestamp. Decoding is pure: it has no side
// effects on any store.
func (d *decoder) Decode(raw []byte) (record.Record, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return record.Record{}, fmt.Errorf("%w: %w", errors.ErrMalformedEnvelope, err)
	}

	if env.Project == "" {
		return record.Record{}, fmt.Errorf("%w: missing project", errors.ErrMalformedEnvelope)
	}

	level, err := record.ParseLevel(env.Level)
	if err != nil {
		return record.Record{}, err
	}

	return record.Record{
		ID:        uuid.NewString(),
		Timestamp: d.now().UTC(),
		Level:     level,
		Project:   env.Project,
		Message:   decodePayload(env.Payload),
		Trace:     normalizeTrace(env.Trace),
	}, nil
}

// decodePayload decodes the base64 payload into the display message. A
// payload that is not valid base64 is passed through verbatim rather than
// dropped or corrupted.
func decodePayload(payload string) string {
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return payload
	}

	return string(decoded)
}

// normalizeTrace keeps structured traces as-is. A string trace that itself
// contains JSON is unwrapped so consumers always see the structured form.
func normalizeTrace(trace json.RawMessage) json.RawMessage {
	if len(trace) == 0 || string(trace) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(trace, &s); err != nil {
		return trace
	}

	if s == "" {
		return nil
	}

	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}

	return trace
}
