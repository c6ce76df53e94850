package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Data source type constants.
const (
	SourceTypeCSV      = "csv"
	SourceTypeXLSX     = "xlsx"
	SourceTypePostgres = "postgres"
	SourceTypeMySQL    = "mysql"
	SourceTypeMariaDB  = "mariadb"
	SourceTypeMSSQL    = "mssql"
	SourceTypeOracle   = "oracle"
)

// FileBasedTypes are sources backed by an uploaded file in object storage.
var FileBasedTypes = map[string]bool{
	SourceTypeCSV:  true,
	SourceTypeXLSX: true,
}

// DatabaseTypes are sources backed by a live database connection.
var DatabaseTypes = map[string]bool{
	SourceTypePostgres: true,
	SourceTypeMySQL:    true,
	SourceTypeMariaDB:  true,
	SourceTypeMSSQL:    true,
	SourceTypeOracle:   true,
}

// IsValidSourceType checks if the given type is a supported data source type.
func IsValidSourceType(t string) bool {
	return FileBasedTypes[t] || DatabaseTypes[t]
}

// DataSource represents a registered data source: either a database
// connection or an uploaded file, plus its extracted schema.
type DataSource struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	// ConnectionURL is a DSN for database sources or a storage URL for
	// file-based sources. Never log it unsanitized.
	ConnectionURL string `json:"connection_url"`
	// Schema holds the normalized schema document, or a legacy plain-text
	// description for sources registered before structured extraction.
	Schema SchemaPayload `json:"schema"`
	// LLMDescription is the model-generated summary used to seed chat
	// context for this source.
	LLMDescription string    `json:"llm_description"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IsFileBased reports whether the source is backed by an uploaded file.
func (d *DataSource) IsFileBased() bool {
	return FileBasedTypes[d.Type]
}

// SchemaPayload is the stored schema field, which historically held a
// plain description string and now holds a structured document. Exactly
// one of Document and Legacy is set.
type SchemaPayload struct {
	Document *SchemaDocument
	Legacy   string
}

// IsStructured reports whether the payload carries a structured document.
func (p SchemaPayload) IsStructured() bool {
	return p.Document != nil
}

// MarshalJSON serializes the document when structured, the legacy string
// otherwise.
func (p SchemaPayload) MarshalJSON() ([]byte, error) {
	if p.Document != nil {
		return json.Marshal(p.Document)
	}
	return json.Marshal(p.Legacy)
}

// UnmarshalJSON accepts either a schema document object or a legacy
// description string.
func (p *SchemaPayload) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*p = SchemaPayload{}
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &p.Legacy)
	}
	var doc SchemaDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("schema payload is neither document nor string: %w", err)
	}
	p.Document = &doc
	p.Legacy = ""
	return nil
}
