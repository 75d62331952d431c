package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/JaimeStill/docflow/internal/documents"
	"github.com/JaimeStill/docflow/internal/idempotency"
	"github.com/google/uuid"
)

// Shape is the field layout of one record.
type Shape string

const (
	// ShapeNested groups fields under asset, ownership and descriptive
	// (or metadata) objects.
	ShapeNested Shape = "nested"
	// ShapeFlattened uses the storage producer's field names.
	ShapeFlattened Shape = "flattened"
	// ShapeCanonical already uses document field names.
	ShapeCanonical Shape = "canonical"
)

// Transaction is the effect a record asks for.
type Transaction string

const (
	TransactionNew    Transaction = "new"
	TransactionUpdate Transaction = "update"
	TransactionDelete Transaction = "delete"
)

// DefaultBucket is assumed when a flattened record names no bucket.
const DefaultBucket = "documents"

var (
	groups         = []string{"asset", "ownership", "descriptive", "metadata"}
	producerFields = []string{"object_key", "size_bytes", "content_type", "uploader_id", "upload_timestamp", "bucket"}
	envelopeFields = []string{
		"idempotency_key", "record_id", "row_num", "source", "transaction_type", "transaction",
		"job_id", "batch_id", "schema_version", "source_file", "validation_errors",
	}
)

// Record is one normalized record ready to apply.
type Record struct {
	RowNum      int
	Key         string
	Shape       Shape
	Transaction Transaction
	DocumentID  *uuid.UUID
	NaturalKey  *documents.NaturalKey
	Input       documents.Input
	Raw         json.RawMessage
}

// RecordError reports a record that was not applied. Key is stable across
// redeliveries of the same message.
type RecordError struct {
	Key    string          `json:"-"`
	RowNum int             `json:"row_num"`
	Reason string          `json:"error"`
	Raw    json.RawMessage `json:"raw"`
}

// Batch is the normalizer output: records in input order and the records
// that failed normalization, including those the producer already rejected.
type Batch struct {
	Kind       Kind
	JobID      string
	BatchID    string
	SourceFile string
	Records    []Record
	Errors     []RecordError
}

// Transform resolves data to canonical records. A record failing validation
// lands in Errors without affecting its siblings; only an unreadable
// envelope fails the whole call.
func Transform(data []byte) (Batch, error) {
	env, err := ParseEnvelope(data)
	if err != nil {
		return Batch{}, err
	}

	batch := Batch{
		Kind:       env.Kind,
		JobID:      env.JobID,
		BatchID:    env.BatchID,
		SourceFile: env.SourceFile,
		Errors:     slices.Clone(env.Upstream),
	}

	for _, raw := range env.Records {
		rec, err := normalize(env, raw)
		if err != nil {
			batch.Errors = append(batch.Errors, RecordError{RowNum: raw.RowNum, Reason: err.Error(), Raw: raw.Raw})
			continue
		}
		batch.Records = append(batch.Records, rec)
	}
	for i := range batch.Errors {
		batch.Errors[i].Key = errorKey(env, batch.Errors[i])
	}

	slices.SortStableFunc(batch.Errors, func(a, b RecordError) int { return a.RowNum - b.RowNum })
	return batch, nil
}

func normalize(env Envelope, raw RawRecord) (Record, error) {
	shape := detectShape(raw.Fields)
	fields := canonicalize(shape, raw.Fields)

	tx, err := transaction(raw.Fields)
	if err != nil {
		return Record{}, err
	}

	key, err := recordKey(env, raw.Fields)
	if err != nil {
		return Record{}, err
	}

	if tx == TransactionNew && shape != ShapeCanonical && fields["version"] == nil {
		fields["version"] = json.Number("1")
	}
	for _, f := range envelopeFields {
		delete(fields, f)
	}

	in, err := documents.ParseInput(fields)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		RowNum:      raw.RowNum,
		Key:         key,
		Shape:       shape,
		Transaction: tx,
		DocumentID:  in.DocumentID,
		Input:       in,
		Raw:         raw.Raw,
	}
	if nk, ok := in.NaturalKey(); ok {
		rec.NaturalKey = &nk
	}

	switch tx {
	case TransactionNew:
		if missing := required(&in.Fields); len(missing) > 0 {
			return Record{}, &documents.ValidationError{Missing: missing}
		}
	default:
		if rec.DocumentID == nil && rec.NaturalKey == nil {
			return Record{}, fmt.Errorf("%w: %s requires document_id or brand, business_unit and document_title",
				documents.ErrValidation, tx)
		}
	}
	return rec, nil
}

func detectShape(fields map[string]any) Shape {
	for _, g := range groups {
		if _, ok := fields[g].(map[string]any); ok {
			return ShapeNested
		}
	}
	for _, f := range producerFields {
		if _, ok := fields[f]; ok {
			return ShapeFlattened
		}
	}
	return ShapeCanonical
}

// canonicalize returns a copy of fields using document field names. Nested
// groups are merged first so top-level fields override them; producer names
// only fill fields that are not already set.
func canonicalize(shape Shape, fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))

	if shape == ShapeNested {
		for _, g := range groups {
			if group, ok := fields[g].(map[string]any); ok {
				maps.Copy(out, group)
			}
		}
	}
	for k, v := range fields {
		if shape == ShapeNested && slices.Contains(groups, k) {
			continue
		}
		out[k] = v
	}

	if shape == ShapeCanonical {
		return out
	}

	objectKey := text(out["object_key"])
	if objectKey != "" {
		fill(out, "file_name", path.Base(objectKey))

		bucket := text(out["bucket"])
		if bucket == "" {
			bucket = DefaultBucket
		}
		fill(out, "storage_path", bucket+"/"+strings.TrimPrefix(objectKey, "/"))
	}
	fill(out, "file_size", out["size_bytes"])
	fill(out, "file_type", out["content_type"])
	fill(out, "user_id", out["uploader_id"])
	fill(out, "upload_date", out["upload_timestamp"])
	if rev := out["revision"]; rev != nil {
		fill(out, "source_revision", fmt.Sprint(rev))
	}

	for _, f := range producerFields {
		delete(out, f)
	}
	delete(out, "revision")
	return out
}

func fill(m map[string]any, key string, v any) {
	if v == nil {
		return
	}
	if m[key] == nil {
		m[key] = v
	}
}

func transaction(fields map[string]any) (Transaction, error) {
	v := text(fields["transaction_type"])
	if v == "" {
		v = text(fields["transaction"])
	}

	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "new", "create", "insert":
		return TransactionNew, nil
	case "update":
		return TransactionUpdate, nil
	case "delete":
		return TransactionDelete, nil
	default:
		return "", fmt.Errorf("%w: unknown transaction_type %q", documents.ErrValidation, v)
	}
}

// recordKey prefers the record's own key. Otherwise the header key, or the
// batch or job id in its absence, is combined with the record's content id
// so records of one batch never share a key. With no header at all the key
// is the hash of the record's canonical JSON.
func recordKey(env Envelope, fields map[string]any) (string, error) {
	if k := text(fields["idempotency_key"]); k != "" {
		return k, nil
	}

	header := env.IdempotencyKey
	if header == "" {
		header = env.BatchID
	}
	if header == "" {
		header = env.JobID
	}

	content := text(fields["record_id"])
	if content == "" {
		c, err := idempotency.Canonical(fields)
		if err != nil {
			return "", fmt.Errorf("derive idempotency key: %w", err)
		}
		content = c
	}

	if header == "" {
		return idempotency.Derive(content), nil
	}
	return idempotency.Derive(header, content), nil
}

// errorKey identifies a record that failed normalization by its envelope
// header, row and raw bytes.
func errorKey(env Envelope, e RecordError) string {
	header := env.IdempotencyKey
	if header == "" {
		header = env.BatchID
	}
	if header == "" {
		header = env.JobID
	}
	return idempotency.Derive("invalid", header, strconv.Itoa(e.RowNum), string(e.Raw))
}

// required reports missing required fields, leaving out the dates the
// revisioning service defaults.
func required(f *documents.Fields) []string {
	return slices.DeleteFunc(f.Missing(), func(name string) bool {
		return name == "upload_date" || name == "last_modified_date"
	})
}

// IsPermanent reports whether err is local to one record and will fail the
// same way on every retry.
func IsPermanent(err error) bool {
	return errors.Is(err, documents.ErrValidation) ||
		errors.Is(err, documents.ErrNotFound) ||
		errors.Is(err, documents.ErrDuplicate)
}
