// Package documents maintains document metadata as an append-only sequence of
// revisions. Every create, update and soft delete appends one row; the highest
// revision of a document is its current state, and a tombstone revision marks
// it deleted without discarding history.
package documents

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// ACL lists the principals allowed to read and write a document.
type ACL struct {
	Read  []string `json:"read"`
	Write []string `json:"write"`
}

// NaturalKey identifies a document by its business attributes rather than
// its surrogate id. Revision is the producer's document revision label.
type NaturalKey struct {
	Brand        string `json:"brand"`
	BusinessUnit string `json:"business_unit"`
	Title        string `json:"document_title"`
	Revision     string `json:"revision"`
}

// Document is one immutable revision of a document's metadata.
type Document struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	Revision   int       `json:"revision"`
	IsDeleted  bool      `json:"is_deleted"`

	FileName         string    `json:"file_name"`
	FileSize         int64     `json:"file_size"`
	FileType         string    `json:"file_type"`
	UploadDate       time.Time `json:"upload_date"`
	LastModifiedDate time.Time `json:"last_modified_date"`
	UserID           uuid.UUID `json:"user_id"`
	StoragePath      string    `json:"storage_path"`
	Version          int       `json:"version"`
	Checksum         string    `json:"checksum"`
	DocumentType     string    `json:"document_type"`
	Tags             []string  `json:"tags"`

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
	Languages            []string   `json:"languages"`
	AlternatePartNumbers []string   `json:"alternate_part_numbers"`

	CreatedAt time.Time `json:"created_at"`
}

// NaturalKey returns the document's business key. ok is false unless brand,
// business unit and title are all set.
func (d *Document) NaturalKey() (key NaturalKey, ok bool) {
	if d.Brand == nil || d.BusinessUnit == nil || d.DocumentTitle == nil {
		return NaturalKey{}, false
	}
	key = NaturalKey{Brand: *d.Brand, BusinessUnit: *d.BusinessUnit, Title: *d.DocumentTitle}
	if d.SourceRevision != nil {
		key.Revision = *d.SourceRevision
	}
	return key, key.Brand != "" && key.BusinessUnit != "" && key.Title != ""
}

// Matches reports whether d carries key.
func (k NaturalKey) Matches(d *Document) bool {
	other, ok := d.NaturalKey()
	return ok && other == k
}

// clone returns a deep copy so stored revisions cannot be mutated through
// values handed to callers.
func (d Document) clone() Document {
	d.Tags = slices.Clone(d.Tags)
	d.Languages = slices.Clone(d.Languages)
	d.AlternatePartNumbers = slices.Clone(d.AlternatePartNumbers)
	if d.ACL != nil {
		acl := ACL{Read: slices.Clone(d.ACL.Read), Write: slices.Clone(d.ACL.Write)}
		d.ACL = &acl
	}
	d.Description = clonePtr(d.Description)
	d.ThumbnailPath = clonePtr(d.ThumbnailPath)
	d.ExpirationDate = clonePtr(d.ExpirationDate)
	d.Category = clonePtr(d.Category)
	d.Division = clonePtr(d.Division)
	d.BusinessUnit = clonePtr(d.BusinessUnit)
	d.BrandID = clonePtr(d.BrandID)
	d.Brand = clonePtr(d.Brand)
	d.DocumentTitle = clonePtr(d.DocumentTitle)
	d.SourceRevision = clonePtr(d.SourceRevision)
	d.Region = clonePtr(d.Region)
	d.Country = clonePtr(d.Country)
	return d
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
