package services

import (
	"go.uber.org/zap"

	"github.com/reportai-inc/reportai-engine/pkg/models"
)

// SchemaDiffService compares schema documents for update previews and
// carries user-authored descriptions across re-extractions.
type SchemaDiffService interface {
	// GenerateDiff compares the stored schema against a freshly
	// extracted document. Tables and columns are matched by name only;
	// a rename shows up as a removal plus an addition.
	GenerateDiff(old models.SchemaPayload, updated *models.SchemaDocument) *models.SchemaDiff
	// PreserveDescriptions copies non-empty table and column
	// descriptions from the stored schema onto the new document's
	// matching names, so an update does not wipe out what users wrote.
	// Re-extraction cannot recover annotations from the raw source, so
	// the stored description always wins when present.
	PreserveDescriptions(old models.SchemaPayload, updated *models.SchemaDocument)
}

type schemaDiffService struct {
	logger *zap.Logger
}

var _ SchemaDiffService = (*schemaDiffService)(nil)

// NewSchemaDiffService creates a new schema diff service.
func NewSchemaDiffService(logger *zap.Logger) SchemaDiffService {
	return &schemaDiffService{logger: logger}
}

func (s *schemaDiffService) GenerateDiff(old models.SchemaPayload, updated *models.SchemaDocument) *models.SchemaDiff {
	diff := models.NewSchemaDiff()

	// Legacy sources carry a free-text schema with no table structure
	// to compare against: every extracted table reads as new.
	if !old.IsStructured() {
		for _, table := range updated.Tables {
			diff.TablesAdded = append(diff.TablesAdded, table.Name)
		}
		return diff
	}

	oldDoc := old.Document
	for _, newTable := range updated.Tables {
		oldTable := oldDoc.TableByName(newTable.Name)
		if oldTable == nil {
			diff.TablesAdded = append(diff.TablesAdded, newTable.Name)
			continue
		}
		s.diffTable(diff, oldTable, &newTable)
	}
	for _, oldTable := range oldDoc.Tables {
		if updated.TableByName(oldTable.Name) == nil {
			diff.TablesRemoved = append(diff.TablesRemoved, oldTable.Name)
		}
	}
	return diff
}

func (s *schemaDiffService) diffTable(diff *models.SchemaDiff, oldTable, newTable *models.TableSchema) {
	name := newTable.Name
	changed := false

	for _, newCol := range newTable.Columns {
		oldCol := oldTable.ColumnByName(newCol.Name)
		if oldCol == nil {
			diff.ColumnsAdded[name] = append(diff.ColumnsAdded[name], newCol.Name)
			changed = true
			continue
		}
		if columnModified(oldCol, &newCol) {
			diff.ColumnsModified[name] = append(diff.ColumnsModified[name], models.ColumnModification{
				Name: newCol.Name,
				Old:  *oldCol,
				New:  newCol,
			})
			changed = true
		}
	}
	for _, oldCol := range oldTable.Columns {
		if newTable.ColumnByName(oldCol.Name) == nil {
			diff.ColumnsRemoved[name] = append(diff.ColumnsRemoved[name], oldCol.Name)
			changed = true
		}
	}

	if changed {
		diff.TablesModified = append(diff.TablesModified, name)
	}
}

// columnModified compares the structural properties of a column.
// Statistics and sample values change on every extraction and are not
// treated as schema changes.
func columnModified(oldCol, newCol *models.ColumnSchema) bool {
	return oldCol.DataType != newCol.DataType ||
		oldCol.IsNullable != newCol.IsNullable ||
		oldCol.IsPrimaryKey != newCol.IsPrimaryKey
}

func (s *schemaDiffService) PreserveDescriptions(old models.SchemaPayload, updated *models.SchemaDocument) {
	if !old.IsStructured() {
		return
	}
	oldDoc := old.Document

	preserved := 0
	for i := range updated.Tables {
		newTable := &updated.Tables[i]
		oldTable := oldDoc.TableByName(newTable.Name)
		if oldTable == nil {
			continue
		}
		if oldTable.Description != "" {
			newTable.Description = oldTable.Description
			preserved++
		}
		for j := range newTable.Columns {
			newCol := &newTable.Columns[j]
			oldCol := oldTable.ColumnByName(newCol.Name)
			if oldCol != nil && oldCol.Description != "" {
				newCol.Description = oldCol.Description
				preserved++
			}
		}
	}
	if preserved > 0 {
		s.logger.Debug("preserved descriptions across schema update",
			zap.Int("count", preserved))
	}
}
