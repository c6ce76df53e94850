package models

// SchemaDiff is the structural comparison between two schema documents.
// Table lists are unordered; order carries no meaning.
type SchemaDiff struct {
	TablesAdded     []string                        `json:"tables_added"`
	TablesRemoved   []string                        `json:"tables_removed"`
	TablesModified  []string                        `json:"tables_modified"`
	ColumnsAdded    map[string][]string             `json:"columns_added"`
	ColumnsRemoved  map[string][]string             `json:"columns_removed"`
	ColumnsModified map[string][]ColumnModification `json:"columns_modified"`
}

// NewSchemaDiff returns an empty diff with initialized maps.
func NewSchemaDiff() *SchemaDiff {
	return &SchemaDiff{
		TablesAdded:     []string{},
		TablesRemoved:   []string{},
		TablesModified:  []string{},
		ColumnsAdded:    map[string][]string{},
		ColumnsRemoved:  map[string][]string{},
		ColumnsModified: map[string][]ColumnModification{},
	}
}

// ColumnModification records a column whose data_type, nullability or
// primary-key status changed between two documents.
type ColumnModification struct {
	Name string       `json:"name"`
	Old  ColumnSchema `json:"old"`
	New  ColumnSchema `json:"new"`
}

// HasChanges reports whether the diff contains any table-level change.
func (d *SchemaDiff) HasChanges() bool {
	return len(d.TablesAdded) > 0 || len(d.TablesRemoved) > 0 || len(d.TablesModified) > 0
}

// TotalTableChanges is the count of added, removed and modified tables,
// used for changes-summary previews.
func (d *SchemaDiff) TotalTableChanges() int {
	return len(d.TablesAdded) + len(d.TablesRemoved) + len(d.TablesModified)
}
