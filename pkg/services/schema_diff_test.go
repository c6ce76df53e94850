package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reportai-inc/reportai-engine/pkg/models"
)

func structuredPayload(tables ...models.TableSchema) models.SchemaPayload {
	return models.SchemaPayload{Document: &models.SchemaDocument{
		SourceName: "sales",
		SourceType: models.SourceTypePostgres,
		Tables:     tables,
	}}
}

func table(name string, cols ...models.ColumnSchema) models.TableSchema {
	return models.TableSchema{Name: name, Columns: cols, TableType: models.TableTypeTable}
}

func col(name string, dt models.DataType) models.ColumnSchema {
	return models.ColumnSchema{Name: name, DataType: dt}
}

func TestGenerateDiff_TablesAddedAndRemoved(t *testing.T) {
	svc := NewSchemaDiffService(zap.NewNop())

	old := structuredPayload(
		table("orders", col("id", models.DataTypeInteger)),
		table("legacy_log", col("entry", models.DataTypeText)),
	)
	updated := &models.SchemaDocument{Tables: []models.TableSchema{
		table("orders", col("id", models.DataTypeInteger)),
		table("customers", col("id", models.DataTypeInteger)),
	}}

	diff := svc.GenerateDiff(old, updated)

	assert.Equal(t, []string{"customers"}, diff.TablesAdded)
	assert.Equal(t, []string{"legacy_log"}, diff.TablesRemoved)
	assert.Empty(t, diff.TablesModified)
	assert.True(t, diff.HasChanges())
}

func TestGenerateDiff_ColumnChanges(t *testing.T) {
	svc := NewSchemaDiffService(zap.NewNop())

	old := structuredPayload(table("orders",
		col("id", models.DataTypeInteger),
		col("amount", models.DataTypeInteger),
		col("notes", models.DataTypeText),
	))
	updated := &models.SchemaDocument{Tables: []models.TableSchema{
		table("orders",
			col("id", models.DataTypeInteger),
			col("amount", models.DataTypeDecimal),
			col("status", models.DataTypeText),
		),
	}}

	diff := svc.GenerateDiff(old, updated)

	assert.Equal(t, []string{"orders"}, diff.TablesModified)
	assert.Equal(t, []string{"status"}, diff.ColumnsAdded["orders"])
	assert.Equal(t, []string{"notes"}, diff.ColumnsRemoved["orders"])
	require.Len(t, diff.ColumnsModified["orders"], 1)
	mod := diff.ColumnsModified["orders"][0]
	assert.Equal(t, "amount", mod.Name)
	assert.Equal(t, models.DataTypeInteger, mod.Old.DataType)
	assert.Equal(t, models.DataTypeDecimal, mod.New.DataType)
}

func TestGenerateDiff_NullabilityAndKeyChanges(t *testing.T) {
	svc := NewSchemaDiffService(zap.NewNop())

	old := structuredPayload(table("t",
		models.ColumnSchema{Name: "a", DataType: models.DataTypeInteger, IsNullable: false},
		models.ColumnSchema{Name: "b", DataType: models.DataTypeInteger, IsPrimaryKey: false},
	))
	updated := &models.SchemaDocument{Tables: []models.TableSchema{
		table("t",
			models.ColumnSchema{Name: "a", DataType: models.DataTypeInteger, IsNullable: true},
			models.ColumnSchema{Name: "b", DataType: models.DataTypeInteger, IsPrimaryKey: true},
		),
	}}

	diff := svc.GenerateDiff(old, updated)
	assert.Len(t, diff.ColumnsModified["t"], 2)
}

func TestGenerateDiff_StatisticsChangesIgnored(t *testing.T) {
	svc := NewSchemaDiffService(zap.NewNop())

	oldCol := col("amount", models.DataTypeDecimal)
	oldAvg := 10.0
	oldCol.Statistics = &models.ColumnStatistics{Avg: &oldAvg}

	newCol := col("amount", models.DataTypeDecimal)
	newAvg := 99.0
	newCol.Statistics = &models.ColumnStatistics{Avg: &newAvg}
	newCol.SampleValues = []string{"1.5"}

	diff := svc.GenerateDiff(
		structuredPayload(table("t", oldCol)),
		&models.SchemaDocument{Tables: []models.TableSchema{table("t", newCol)}},
	)
	assert.False(t, diff.HasChanges())
}

func TestGenerateDiff_LegacySchemaAllTablesAdded(t *testing.T) {
	svc := NewSchemaDiffService(zap.NewNop())

	old := models.SchemaPayload{Legacy: "a csv with customer rows"}
	updated := &models.SchemaDocument{Tables: []models.TableSchema{
		table("customers", col("id", models.DataTypeInteger)),
		table("orders", col("id", models.DataTypeInteger)),
	}}

	diff := svc.GenerateDiff(old, updated)

	assert.ElementsMatch(t, []string{"customers", "orders"}, diff.TablesAdded)
	assert.Empty(t, diff.TablesRemoved)
	assert.Empty(t, diff.ColumnsAdded)
	assert.Empty(t, diff.ColumnsModified)
}

func TestGenerateDiff_NoChanges(t *testing.T) {
	svc := NewSchemaDiffService(zap.NewNop())

	payload := structuredPayload(table("orders", col("id", models.DataTypeInteger)))
	updated := &models.SchemaDocument{Tables: []models.TableSchema{
		table("orders", col("id", models.DataTypeInteger)),
	}}

	diff := svc.GenerateDiff(payload, updated)
	assert.False(t, diff.HasChanges())
	assert.Equal(t, 0, diff.TotalTableChanges())
}

func TestPreserveDescriptions(t *testing.T) {
	svc := NewSchemaDiffService(zap.NewNop())

	oldTable := table("orders",
		col("id", models.DataTypeInteger),
		col("amount", models.DataTypeDecimal),
	)
	oldTable.Description = "customer orders"
	oldTable.Columns[1].Description = "order total in USD"
	old := structuredPayload(oldTable)

	updated := &models.SchemaDocument{Tables: []models.TableSchema{
		table("orders",
			col("id", models.DataTypeInteger),
			col("amount", models.DataTypeDecimal),
			col("status", models.DataTypeText),
		),
	}}

	svc.PreserveDescriptions(old, updated)

	assert.Equal(t, "customer orders", updated.Tables[0].Description)
	assert.Equal(t, "order total in USD", updated.Tables[0].ColumnByName("amount").Description)
	assert.Empty(t, updated.Tables[0].ColumnByName("status").Description)
}

func TestPreserveDescriptions_StoredAnnotationWins(t *testing.T) {
	svc := NewSchemaDiffService(zap.NewNop())

	oldTable := table("orders", col("id", models.DataTypeInteger))
	oldTable.Description = "curated by the data team"
	old := structuredPayload(oldTable)

	// A freshly extracted description cannot be newer than what the
	// user wrote; the stored one is carried forward regardless.
	newTable := table("orders", col("id", models.DataTypeInteger))
	newTable.Description = "auto-generated summary"
	updated := &models.SchemaDocument{Tables: []models.TableSchema{newTable}}

	svc.PreserveDescriptions(old, updated)
	assert.Equal(t, "curated by the data team", updated.Tables[0].Description)
}

func TestPreserveDescriptions_LegacyIsNoOp(t *testing.T) {
	svc := NewSchemaDiffService(zap.NewNop())

	updated := &models.SchemaDocument{Tables: []models.TableSchema{
		table("orders", col("id", models.DataTypeInteger)),
	}}
	svc.PreserveDescriptions(models.SchemaPayload{Legacy: "free text"}, updated)
	assert.Empty(t, updated.Tables[0].Description)
}
