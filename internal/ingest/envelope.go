// Package ingest turns upload events into document revisions: it resolves
// the inbound payload shape once, normalizes every record to the canonical
// document fields, and applies each record exactly once under its
// idempotency key.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrMalformedEnvelope means a message body could not be read as an upload
// event at all.
var ErrMalformedEnvelope = errors.New("malformed upload envelope")

// Kind distinguishes batch envelopes from single-record events.
type Kind string

const (
	KindBatch  Kind = "batch"
	KindSingle Kind = "single"
)

// Envelope is an inbound upload event resolved to its batch form. A single
// record event becomes a one-record envelope whose header is the record
// itself.
type Envelope struct {
	Kind           Kind
	JobID          string
	BatchID        string
	SchemaVersion  string
	SourceFile     string
	Source         string
	IdempotencyKey string
	Records        []RawRecord
	Upstream       []RecordError
}

// RawRecord is one record as received, before normalization.
type RawRecord struct {
	RowNum int
	Fields map[string]any
	Raw    json.RawMessage
}

// ParseEnvelope decodes data and resolves whether it is a batch (a "records"
// list) or a single record. Numbers are kept as json.Number.
func ParseEnvelope(data []byte) (Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var body map[string]any
	if err := dec.Decode(&body); err != nil || body == nil {
		return Envelope{}, fmt.Errorf("%w: body must be a JSON object", ErrMalformedEnvelope)
	}

	env := Envelope{
		JobID:          text(body["job_id"]),
		BatchID:        text(body["batch_id"]),
		SchemaVersion:  text(body["schema_version"]),
		SourceFile:     text(body["source_file"]),
		Source:         text(body["source"]),
		IdempotencyKey: text(body["idempotency_key"]),
	}

	records, isBatch := body["records"].([]any)
	if !isBatch {
		if _, present := body["records"]; present {
			return Envelope{}, fmt.Errorf("%w: records must be a list", ErrMalformedEnvelope)
		}
		env.Kind = KindSingle
		env.Records = []RawRecord{{RowNum: 1, Fields: body, Raw: data}}
		return env, nil
	}

	env.Kind = KindBatch
	for i, item := range records {
		row := i + 1
		raw, _ := json.Marshal(item)

		fields, ok := item.(map[string]any)
		if !ok {
			env.Upstream = append(env.Upstream, RecordError{RowNum: row, Reason: "record must be an object", Raw: raw})
			continue
		}
		if n, ok := integer(fields["row_num"]); ok && n > 0 {
			row = n
		}
		env.Records = append(env.Records, RawRecord{RowNum: row, Fields: fields, Raw: raw})
	}

	if list, ok := body["validation_errors"].([]any); ok {
		for _, item := range list {
			env.Upstream = append(env.Upstream, upstreamError(item))
		}
	}
	return env, nil
}

// upstreamError reads a validation error reported by the producer. Both
// error/message and raw/raw_data spellings are accepted.
func upstreamError(item any) RecordError {
	fields, _ := item.(map[string]any)

	rowNum, _ := integer(fields["row_num"])
	reason := text(fields["error"])
	if reason == "" {
		reason = text(fields["message"])
	}
	if reason == "" {
		reason = "rejected by producer"
	}

	raw := fields["raw"]
	if raw == nil {
		raw = fields["raw_data"]
	}
	b, _ := json.Marshal(raw)

	return RecordError{RowNum: rowNum, Reason: reason, Raw: b}
}

// text returns v as a string when it is a string or a number.
func text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func integer(v any) (int, bool) {
	switch t := v.(type) {
	case json.Number:
		n, err := t.Int64()
		return int(n), err == nil
	case float64:
		return int(t), t == float64(int(t))
	case string:
		n, err := strconv.Atoi(t)
		return n, err == nil
	default:
		return 0, false
	}
}
