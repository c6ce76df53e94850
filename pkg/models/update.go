package models

import "time"

// Update type constants for staged data source updates.
const (
	UpdateTypeSchemaRefresh    = "schema_refresh"
	UpdateTypeConnectionChange = "connection_change"
	UpdateTypeFileReplace      = "file_replace"
)

// IsValidUpdateType checks if the given type is a supported update type.
func IsValidUpdateType(t string) bool {
	switch t {
	case UpdateTypeSchemaRefresh, UpdateTypeConnectionChange, UpdateTypeFileReplace:
		return true
	}
	return false
}

// StagedUpdate is a proposed change to a data source, held in cache
// pending explicit apply or cancel. Exactly one of the proposal fields
// is set, selected by UpdateType, so each variant's required fields are
// enforced by the type instead of by map lookups.
type StagedUpdate struct {
	UpdateType   string            `json:"update_type"`
	DataSourceID int64             `json:"data_source_id"`
	UserID       int64             `json:"user_id"`
	Current      CurrentSourceData `json:"current_data"`

	SchemaRefresh    *SchemaRefreshProposal    `json:"schema_refresh,omitempty"`
	ConnectionChange *ConnectionChangeProposal `json:"connection_change,omitempty"`
	FileReplace      *FileReplaceProposal      `json:"file_replace,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// CurrentSourceData snapshots the data source at staging time so a
// review UI can render old-vs-new without another fetch.
type CurrentSourceData struct {
	DataSourceID  int64         `json:"data_source_id"`
	Name          string        `json:"name"`
	Type          string        `json:"type"`
	ConnectionURL string        `json:"connection_url"`
	Schema        SchemaPayload `json:"current_schema"`
}

// SchemaRefreshProposal re-extracts schema from the existing source.
type SchemaRefreshProposal struct {
	NewSchema *SchemaDocument `json:"new_schema"`
	Diff      *SchemaDiff     `json:"schema_diff"`
}

// ConnectionChangeProposal switches the source to a new connection URL.
type ConnectionChangeProposal struct {
	NewConnectionURL string          `json:"new_connection_url"`
	NewSchema        *SchemaDocument `json:"new_schema"`
	Diff             *SchemaDiff     `json:"schema_diff"`
	ConnectionTestOK bool            `json:"connection_test_successful"`
}

// FileReplaceProposal replaces the uploaded file of a file-based source.
// The staged raw bytes live on the enclosing ExtractionRecord.
type FileReplaceProposal struct {
	NewSchema *SchemaDocument `json:"new_schema"`
	Diff      *SchemaDiff     `json:"schema_diff"`
	FileMeta  FileMetadata    `json:"new_file_metadata"`
}

// FileMetadata describes an uploaded replacement file.
type FileMetadata struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// NewSchema returns the proposed schema document for whichever variant
// is set, or nil.
func (u *StagedUpdate) NewSchema() *SchemaDocument {
	switch u.UpdateType {
	case UpdateTypeSchemaRefresh:
		if u.SchemaRefresh != nil {
			return u.SchemaRefresh.NewSchema
		}
	case UpdateTypeConnectionChange:
		if u.ConnectionChange != nil {
			return u.ConnectionChange.NewSchema
		}
	case UpdateTypeFileReplace:
		if u.FileReplace != nil {
			return u.FileReplace.NewSchema
		}
	}
	return nil
}

// Diff returns the schema diff for whichever variant is set, or nil.
func (u *StagedUpdate) Diff() *SchemaDiff {
	switch u.UpdateType {
	case UpdateTypeSchemaRefresh:
		if u.SchemaRefresh != nil {
			return u.SchemaRefresh.Diff
		}
	case UpdateTypeConnectionChange:
		if u.ConnectionChange != nil {
			return u.ConnectionChange.Diff
		}
	case UpdateTypeFileReplace:
		if u.FileReplace != nil {
			return u.FileReplace.Diff
		}
	}
	return nil
}

// ChangesSummary is the preview counts returned from update initiation.
type ChangesSummary struct {
	HasChanges          bool  `json:"has_changes"`
	TablesAddedCount    int   `json:"tables_added_count"`
	TablesRemovedCount  int   `json:"tables_removed_count"`
	TablesModifiedCount int   `json:"tables_modified_count"`
	TotalChanges        int   `json:"total_changes"`
	ConnectionChanged   *bool `json:"connection_changed,omitempty"`
	FileChanged         *bool `json:"file_changed,omitempty"`
}

// UpdateInitiationResult is returned when an update is staged.
type UpdateInitiationResult struct {
	TempIdentifier string         `json:"temp_identifier"`
	UpdateType     string         `json:"update_type"`
	DataSourceName string         `json:"data_source_name"`
	Summary        ChangesSummary `json:"changes_summary"`
	NewFileInfo    *FileMetadata  `json:"new_file_info,omitempty"`
	ExpiresAt      time.Time      `json:"expires_at"`
}

// StagedUpdateDetails is the full review view of one staged update.
type StagedUpdateDetails struct {
	TempIdentifier string        `json:"temp_identifier"`
	Update         *StagedUpdate `json:"update"`
	HasFile        bool          `json:"has_file"`
	CreatedAt      time.Time     `json:"created_at"`
	ExpiresAt      time.Time     `json:"expires_at"`
}

// CleanupWarning records a best-effort cleanup step that failed during
// apply. Warnings never fail the enclosing operation; they are returned
// so callers and tests can observe them.
type CleanupWarning struct {
	Operation string `json:"operation"`
	Detail    string `json:"detail"`
}

// ApplyResult is the outcome of a successful apply: the persisted data
// source plus any cleanup warnings.
type ApplyResult struct {
	DataSource *DataSource      `json:"data_source"`
	Warnings   []CleanupWarning `json:"warnings,omitempty"`
}
