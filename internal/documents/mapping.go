package documents

import (
	"encoding/json"

	"github.com/JaimeStill/docflow/pkg/query"
	"github.com/JaimeStill/docflow/pkg/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

var columns = []string{
	"id", "document_id", "revision", "is_deleted",
	"file_name", "file_size", "file_type", "upload_date", "last_modified_date",
	"user_id", "storage_path", "version", "checksum", "document_type", "tags",
	"description", "acl", "thumbnail_path", "expiration_date",
	"category", "division", "business_unit", "brand_id", "brand",
	"document_title", "source_revision", "region", "country",
	"languages", "alternate_part_numbers", "created_at",
}

// heads projects the latest revision of every document.
var heads = func() *query.ProjectionMap {
	p := query.NewProjectionMap("public", "document_heads", "h")
	for _, c := range columns {
		p.Project(c, c)
	}
	return p
}()

var defaultSort = query.SortField{Field: "last_modified_date", Descending: true}

// pgArrays scans Postgres text[] columns into []string.
var pgArrays = pgtype.NewMap()

func scanDocument(s repository.Scanner) (Document, error) {
	var (
		d   Document
		acl []byte
	)
	err := s.Scan(
		&d.ID,
		&d.DocumentID,
		&d.Revision,
		&d.IsDeleted,
		&d.FileName,
		&d.FileSize,
		&d.FileType,
		&d.UploadDate,
		&d.LastModifiedDate,
		&d.UserID,
		&d.StoragePath,
		&d.Version,
		&d.Checksum,
		&d.DocumentType,
		pgArrays.SQLScanner(&d.Tags),
		&d.Description,
		&acl,
		&d.ThumbnailPath,
		&d.ExpirationDate,
		&d.Category,
		&d.Division,
		&d.BusinessUnit,
		&d.BrandID,
		&d.Brand,
		&d.DocumentTitle,
		&d.SourceRevision,
		&d.Region,
		&d.Country,
		pgArrays.SQLScanner(&d.Languages),
		pgArrays.SQLScanner(&d.AlternatePartNumbers),
		&d.CreatedAt,
	)
	if err != nil {
		return d, err
	}

	if len(acl) > 0 {
		d.ACL = &ACL{}
		if err := json.Unmarshal(acl, d.ACL); err != nil {
			return d, err
		}
	}

	d.UploadDate = d.UploadDate.UTC()
	d.LastModifiedDate = d.LastModifiedDate.UTC()
	d.CreatedAt = d.CreatedAt.UTC()
	if d.ExpirationDate != nil {
		t := d.ExpirationDate.UTC()
		d.ExpirationDate = &t
	}
	d.Tags = nonNil(d.Tags)
	d.Languages = nonNil(d.Languages)
	d.AlternatePartNumbers = nonNil(d.AlternatePartNumbers)

	return d, nil
}

// insertArgs returns the bind values for every column except id and
// created_at, in column order.
func insertArgs(d Document) ([]any, error) {
	var acl []byte
	if d.ACL != nil {
		b, err := json.Marshal(d.ACL)
		if err != nil {
			return nil, err
		}
		acl = b
	}

	return []any{
		d.DocumentID,
		d.Revision,
		d.IsDeleted,
		d.FileName,
		d.FileSize,
		d.FileType,
		d.UploadDate,
		d.LastModifiedDate,
		d.UserID,
		d.StoragePath,
		d.Version,
		d.Checksum,
		d.DocumentType,
		nonNil(d.Tags),
		d.Description,
		acl,
		d.ThumbnailPath,
		d.ExpirationDate,
		d.Category,
		d.Division,
		d.BusinessUnit,
		nullUUID(d.BrandID),
		d.Brand,
		d.DocumentTitle,
		d.SourceRevision,
		d.Region,
		d.Country,
		nonNil(d.Languages),
		nonNil(d.AlternatePartNumbers),
	}, nil
}

func (f Filters) apply(b *query.Builder) *query.Builder {
	b.WhereEquals("document_type", f.DocumentType).
		WhereEquals("brand", f.Brand).
		WhereEquals("business_unit", f.BusinessUnit).
		WhereEquals("category", f.Category).
		WhereEquals("user_id", f.UserID)

	if !f.IncludeDeleted {
		b.Where("is_deleted", "%s = $%%d", false)
	}
	return b
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
