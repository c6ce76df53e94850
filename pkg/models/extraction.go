package models

import "time"

// Extraction status constants.
const (
	ExtractionStatusExtracted    = "extracted"     // fresh schema extraction awaiting registration
	ExtractionStatusStagedUpdate = "staged_update" // update proposal awaiting apply/cancel
)

// ExtractionRecord is the cached envelope for one staged schema
// extraction or update proposal. Ownership is checked on every read by
// comparing OwnerUserID to the caller; a mismatch is reported as absence.
//
// Exactly one of Extraction and StagedUpdate is set, selected by Status.
type ExtractionRecord struct {
	OwnerUserID    int64  `json:"owner_user_id"`
	TempIdentifier string `json:"temp_identifier"`

	// Extraction holds a fresh schema extraction (status "extracted").
	Extraction *SchemaDocument `json:"extraction,omitempty"`
	// StagedUpdate holds an update proposal (status "staged_update").
	StagedUpdate *StagedUpdate `json:"staged_update,omitempty"`

	// SourceName and SourceType describe the extraction for listings.
	SourceName string `json:"source_name"`
	SourceType string `json:"source_type"`

	HasFile bool `json:"has_file"`
	// FileContent is the staged raw file, base64 encoded so the whole
	// record serializes as one JSON document.
	FileContent string `json:"file_content,omitempty"`

	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TableCount returns the number of tables in the staged schema, for
// listing summaries.
func (r *ExtractionRecord) TableCount() int {
	switch {
	case r.Extraction != nil:
		return len(r.Extraction.Tables)
	case r.StagedUpdate != nil:
		if doc := r.StagedUpdate.NewSchema(); doc != nil {
			return len(doc.Tables)
		}
	}
	return 0
}

// WithoutFileContent returns a copy safe to send to clients: the staged
// raw file stays server-side, HasFile still signals its presence.
func (r *ExtractionRecord) WithoutFileContent() *ExtractionRecord {
	if r == nil || r.FileContent == "" {
		return r
	}
	clone := *r
	clone.FileContent = ""
	return &clone
}

// UserExtractionIndex is the per-user set of live extraction identifiers.
// It is eventually consistent: identifiers whose record expired are
// pruned lazily on the next listing.
type UserExtractionIndex struct {
	OwnerUserID   int64     `json:"owner_user_id"`
	ExtractionIDs []string  `json:"extraction_ids"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Contains reports whether the index holds the given identifier.
func (ix *UserExtractionIndex) Contains(tempID string) bool {
	for _, id := range ix.ExtractionIDs {
		if id == tempID {
			return true
		}
	}
	return false
}

// Add appends the identifier if not already present.
func (ix *UserExtractionIndex) Add(tempID string) {
	if !ix.Contains(tempID) {
		ix.ExtractionIDs = append(ix.ExtractionIDs, tempID)
	}
}

// Remove deletes the identifier if present and reports whether it was.
func (ix *UserExtractionIndex) Remove(tempID string) bool {
	for i, id := range ix.ExtractionIDs {
		if id == tempID {
			ix.ExtractionIDs = append(ix.ExtractionIDs[:i], ix.ExtractionIDs[i+1:]...)
			return true
		}
	}
	return false
}

// ExtractionSummary is the listing view of one live extraction.
type ExtractionSummary struct {
	TempIdentifier string    `json:"temp_identifier"`
	SourceName     string    `json:"source_name"`
	SourceType     string    `json:"source_type"`
	HasFile        bool      `json:"has_file"`
	TableCount     int       `json:"table_count"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}
