package documents

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Fields is a partial set of business fields. Nil means "not supplied".
type Fields struct {
	FileName         *string    `json:"file_name,omitempty"`
	FileSize         *int64     `json:"file_size,omitempty"`
	FileType         *string    `json:"file_type,omitempty"`
	UploadDate       *time.Time `json:"upload_date,omitempty"`
	LastModifiedDate *time.Time `json:"last_modified_date,omitempty"`
	UserID           *uuid.UUID `json:"user_id,omitempty"`
	StoragePath      *string    `json:"storage_path,omitempty"`
	Version          *int       `json:"version,omitempty"`
	Checksum         *string    `json:"checksum,omitempty"`
	DocumentType     *string    `json:"document_type,omitempty"`
	Tags             *[]string  `json:"tags,omitempty"`

	Description          *string    `json:"description,omitempty"`
	ACL                  *ACL       `json:"acl,omitempty"`
	ThumbnailPath        *string    `json:"thumbnail_path,omitempty"`
	ExpirationDate       *time.Time `json:"expiration_date,omitempty"`
	Category             *string    `json:"category,omitempty"`
	Division             *string    `json:"division,omitempty"`
	BusinessUnit         *string    `json:"business_unit,omitempty"`
	BrandID              *uuid.UUID `json:"brand_id,omitempty"`
	Brand                *string    `json:"brand,omitempty"`
	DocumentTitle        *string    `json:"document_title,omitempty"`
	SourceRevision       *string    `json:"source_revision,omitempty"`
	Region               *string    `json:"region,omitempty"`
	Country              *string    `json:"country,omitempty"`
	Languages            *[]string  `json:"languages,omitempty"`
	AlternatePartNumbers *[]string  `json:"alternate_part_numbers,omitempty"`
}

// Input is the payload of a create: an optional caller-chosen document id
// plus business fields.
type Input struct {
	DocumentID *uuid.UUID `json:"document_id,omitempty"`
	Fields
}

// Required lists the fields every revision must carry, in reporting order.
var Required = []string{
	"file_name", "file_size", "file_type", "upload_date", "last_modified_date",
	"user_id", "storage_path", "version", "checksum", "document_type",
}

// Missing returns the required fields that are absent or blank.
func (f *Fields) Missing() []string {
	present := map[string]bool{
		"file_name":          nonBlank(f.FileName),
		"file_size":          f.FileSize != nil,
		"file_type":          nonBlank(f.FileType),
		"upload_date":        f.UploadDate != nil && !f.UploadDate.IsZero(),
		"last_modified_date": f.LastModifiedDate != nil && !f.LastModifiedDate.IsZero(),
		"user_id":            f.UserID != nil && *f.UserID != uuid.Nil,
		"storage_path":       nonBlank(f.StoragePath),
		"version":            f.Version != nil,
		"checksum":           nonBlank(f.Checksum),
		"document_type":      nonBlank(f.DocumentType),
	}

	var missing []string
	for _, name := range Required {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

// Overlay returns f with every field supplied in u replacing its counterpart.
func (f Fields) Overlay(u Fields) Fields {
	overlay(&f.FileName, u.FileName)
	overlay(&f.FileSize, u.FileSize)
	overlay(&f.FileType, u.FileType)
	overlay(&f.UploadDate, u.UploadDate)
	overlay(&f.LastModifiedDate, u.LastModifiedDate)
	overlay(&f.UserID, u.UserID)
	overlay(&f.StoragePath, u.StoragePath)
	overlay(&f.Version, u.Version)
	overlay(&f.Checksum, u.Checksum)
	overlay(&f.DocumentType, u.DocumentType)
	overlay(&f.Tags, u.Tags)
	overlay(&f.Description, u.Description)
	overlay(&f.ACL, u.ACL)
	overlay(&f.ThumbnailPath, u.ThumbnailPath)
	overlay(&f.ExpirationDate, u.ExpirationDate)
	overlay(&f.Category, u.Category)
	overlay(&f.Division, u.Division)
	overlay(&f.BusinessUnit, u.BusinessUnit)
	overlay(&f.BrandID, u.BrandID)
	overlay(&f.Brand, u.Brand)
	overlay(&f.DocumentTitle, u.DocumentTitle)
	overlay(&f.SourceRevision, u.SourceRevision)
	overlay(&f.Region, u.Region)
	overlay(&f.Country, u.Country)
	overlay(&f.Languages, u.Languages)
	overlay(&f.AlternatePartNumbers, u.AlternatePartNumbers)
	return f
}

// NaturalKey returns the business key carried by f, if complete.
func (f *Fields) NaturalKey() (NaturalKey, bool) {
	d := Document{Brand: f.Brand, BusinessUnit: f.BusinessUnit, DocumentTitle: f.DocumentTitle, SourceRevision: f.SourceRevision}
	return d.NaturalKey()
}

// fieldsOf lifts a stored revision into Fields so an update can overlay it.
func fieldsOf(d Document) Fields {
	d = d.clone()
	return Fields{
		FileName:             &d.FileName,
		FileSize:             &d.FileSize,
		FileType:             &d.FileType,
		UploadDate:           &d.UploadDate,
		LastModifiedDate:     &d.LastModifiedDate,
		UserID:               &d.UserID,
		StoragePath:          &d.StoragePath,
		Version:              &d.Version,
		Checksum:             &d.Checksum,
		DocumentType:         &d.DocumentType,
		Tags:                 &d.Tags,
		Description:          d.Description,
		ACL:                  d.ACL,
		ThumbnailPath:        d.ThumbnailPath,
		ExpirationDate:       d.ExpirationDate,
		Category:             d.Category,
		Division:             d.Division,
		BusinessUnit:         d.BusinessUnit,
		BrandID:              d.BrandID,
		Brand:                d.Brand,
		DocumentTitle:        d.DocumentTitle,
		SourceRevision:       d.SourceRevision,
		Region:               d.Region,
		Country:              d.Country,
		Languages:            &d.Languages,
		AlternatePartNumbers: &d.AlternatePartNumbers,
	}
}

// document materializes f. Callers must have checked Missing.
func (f *Fields) document() Document {
	d := Document{
		FileName:             *f.FileName,
		FileSize:             *f.FileSize,
		FileType:             *f.FileType,
		UploadDate:           f.UploadDate.UTC().Truncate(time.Microsecond),
		LastModifiedDate:     f.LastModifiedDate.UTC().Truncate(time.Microsecond),
		UserID:               *f.UserID,
		StoragePath:          *f.StoragePath,
		Version:              *f.Version,
		Checksum:             *f.Checksum,
		DocumentType:         *f.DocumentType,
		Tags:                 []string{},
		Languages:            []string{},
		AlternatePartNumbers: []string{},
		Description:          f.Description,
		ACL:                  f.ACL,
		ThumbnailPath:        f.ThumbnailPath,
		ExpirationDate:       f.ExpirationDate,
		Category:             f.Category,
		Division:             f.Division,
		BusinessUnit:         f.BusinessUnit,
		BrandID:              f.BrandID,
		Brand:                f.Brand,
		DocumentTitle:        f.DocumentTitle,
		SourceRevision:       f.SourceRevision,
		Region:               f.Region,
		Country:              f.Country,
	}
	if f.Tags != nil && *f.Tags != nil {
		d.Tags = *f.Tags
	}
	if f.Languages != nil && *f.Languages != nil {
		d.Languages = *f.Languages
	}
	if f.AlternatePartNumbers != nil && *f.AlternatePartNumbers != nil {
		d.AlternatePartNumbers = *f.AlternatePartNumbers
	}
	if d.ExpirationDate != nil {
		t := d.ExpirationDate.UTC().Truncate(time.Microsecond)
		d.ExpirationDate = &t
	}
	return d.clone()
}

// ParseInput coerces a loosely typed JSON object into Input. Identity fields
// become UUIDs, date fields become UTC timestamps, list fields accept arrays or
// comma-separated strings, and acl must be an object. Unknown keys and the
// reserved keys revision and is_deleted are ignored; null values count as
// absent. All coercion failures are reported together in a *ValidationError.
func ParseInput(raw map[string]any) (Input, error) {
	p := parser{raw: raw, verr: &ValidationError{}}

	in := Input{
		DocumentID: p.uuid("document_id"),
		Fields: Fields{
			FileName:             p.string("file_name"),
			FileSize:             p.int64("file_size"),
			FileType:             p.string("file_type"),
			UploadDate:           p.time("upload_date"),
			LastModifiedDate:     p.time("last_modified_date"),
			UserID:               p.uuid("user_id"),
			StoragePath:          p.string("storage_path"),
			Version:              p.version("version"),
			Checksum:             p.string("checksum"),
			DocumentType:         p.string("document_type"),
			Tags:                 p.list("tags"),
			Description:          p.string("description"),
			ACL:                  p.acl("acl"),
			ThumbnailPath:        p.string("thumbnail_path"),
			ExpirationDate:       p.time("expiration_date"),
			Category:             p.string("category"),
			Division:             p.string("division"),
			BusinessUnit:         p.string("business_unit"),
			BrandID:              p.uuid("brand_id"),
			Brand:                p.string("brand"),
			DocumentTitle:        p.string("document_title"),
			SourceRevision:       p.string("source_revision"),
			Region:               p.string("region"),
			Country:              p.string("country"),
			Languages:            p.list("languages"),
			AlternatePartNumbers: p.list("alternate_part_numbers"),
		},
	}

	if !p.verr.empty() {
		return in, p.verr
	}
	return in, nil
}

// ParseFields is ParseInput for updates: the document id is discarded.
func ParseFields(raw map[string]any) (Fields, error) {
	stripped := make(map[string]any, len(raw))
	for k, v := range raw {
		if k != "document_id" {
			stripped[k] = v
		}
	}
	in, err := ParseInput(stripped)
	return in.Fields, err
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	time.DateOnly,
}

// ParseTime accepts RFC 3339 timestamps, zone-less ISO 8601 timestamps
// (interpreted as UTC) and plain dates.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

type parser struct {
	raw  map[string]any
	verr *ValidationError
}

func (p parser) value(field string) (any, bool) {
	v, ok := p.raw[field]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (p parser) string(field string) *string {
	v, ok := p.value(field)
	if !ok {
		return nil
	}
	switch s := v.(type) {
	case string:
		return &s
	case json.Number:
		str := s.String()
		return &str
	case float64:
		str := strconv.FormatFloat(s, 'f', -1, 64)
		return &str
	default:
		p.verr.malformed(field, "must be a string")
		return nil
	}
}

func (p parser) int64(field string) *int64 {
	v, ok := p.value(field)
	if !ok {
		return nil
	}

	var n int64
	switch x := v.(type) {
	case float64:
		if x != math.Trunc(x) || x < 0 || x >= math.MaxInt64 {
			p.verr.malformed(field, "must be a non-negative integer")
			return nil
		}
		n = int64(x)
	case int:
		n = int64(x)
	case int64:
		n = x
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			p.verr.malformed(field, "must be a non-negative integer")
			return nil
		}
		n = i
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			p.verr.malformed(field, "must be a non-negative integer")
			return nil
		}
		n = i
	default:
		p.verr.malformed(field, "must be a non-negative integer")
		return nil
	}

	if n < 0 {
		p.verr.malformed(field, "must be a non-negative integer")
		return nil
	}
	return &n
}

func (p parser) version(field string) *int {
	n := p.int64(field)
	if n == nil {
		return nil
	}
	if *n < 1 || *n > math.MaxInt32 {
		p.verr.malformed(field, "must be a positive integer")
		return nil
	}
	v := int(*n)
	return &v
}

func (p parser) time(field string) *time.Time {
	v, ok := p.value(field)
	if !ok {
		return nil
	}
	switch x := v.(type) {
	case time.Time:
		t := x.UTC()
		return &t
	case string:
		if strings.TrimSpace(x) == "" {
			return nil
		}
		t, err := ParseTime(x)
		if err != nil {
			p.verr.malformed(field, "must be an ISO 8601 timestamp")
			return nil
		}
		return &t
	default:
		p.verr.malformed(field, "must be an ISO 8601 timestamp")
		return nil
	}
}

func (p parser) uuid(field string) *uuid.UUID {
	v, ok := p.value(field)
	if !ok {
		return nil
	}
	switch x := v.(type) {
	case uuid.UUID:
		return &x
	case string:
		if strings.TrimSpace(x) == "" {
			return nil
		}
		id, err := uuid.Parse(strings.TrimSpace(x))
		if err != nil {
			p.verr.malformed(field, "must be a UUID")
			return nil
		}
		return &id
	default:
		p.verr.malformed(field, "must be a UUID")
		return nil
	}
}

func (p parser) list(field string) *[]string {
	v, ok := p.value(field)
	if !ok {
		return nil
	}
	items, err := toStrings(v)
	if err != nil {
		p.verr.malformed(field, err.Error())
		return nil
	}
	return &items
}

func (p parser) acl(field string) *ACL {
	v, ok := p.value(field)
	if !ok {
		return nil
	}

	obj, isObj := v.(map[string]any)
	if !isObj {
		if acl, isACL := v.(ACL); isACL {
			return &acl
		}
		p.verr.malformed(field, "must be an object")
		return nil
	}

	acl := ACL{Read: []string{}, Write: []string{}}
	for key, dst := range map[string]*[]string{"read": &acl.Read, "write": &acl.Write} {
		raw, ok := obj[key]
		if !ok || raw == nil {
			continue
		}
		items, err := toStrings(raw)
		if err != nil {
			p.verr.malformed(field, fmt.Sprintf("%s %s", key, err.Error()))
			return nil
		}
		*dst = items
	}
	return &acl
}

func toStrings(v any) ([]string, error) {
	switch x := v.(type) {
	case []string:
		return append([]string{}, x...), nil
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("must be a list of strings")
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		out := []string{}
		for part := range strings.SplitSeq(x, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("must be a list of strings")
	}
}

func nonBlank(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

func overlay[T any](dst **T, src *T) {
	if src != nil {
		*dst = src
	}
}
