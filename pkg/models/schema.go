package models

// DataType is the engine-agnostic column type. Extractors normalize
// every database- or file-specific type into this closed set. The
// semantic subtypes (email, phone, url, currency, percentage,
// categorical, identifier) are inferred from values and never required.
type DataType string

const (
	DataTypeInteger     DataType = "integer"
	DataTypeDecimal     DataType = "decimal"
	DataTypeText        DataType = "text"
	DataTypeBoolean     DataType = "boolean"
	DataTypeDate        DataType = "date"
	DataTypeDatetime    DataType = "datetime"
	DataTypeTime        DataType = "time"
	DataTypeJSON        DataType = "json"
	DataTypeBinary      DataType = "binary"
	DataTypeUnknown     DataType = "unknown"
	DataTypeEmail       DataType = "email"
	DataTypePhone       DataType = "phone"
	DataTypeURL         DataType = "url"
	DataTypeCurrency    DataType = "currency"
	DataTypePercentage  DataType = "percentage"
	DataTypeCategorical DataType = "categorical"
	DataTypeIdentifier  DataType = "identifier"
)

// ValidDataTypes contains all valid data type values.
var ValidDataTypes = []DataType{
	DataTypeInteger, DataTypeDecimal, DataTypeText, DataTypeBoolean,
	DataTypeDate, DataTypeDatetime, DataTypeTime, DataTypeJSON,
	DataTypeBinary, DataTypeUnknown, DataTypeEmail, DataTypePhone,
	DataTypeURL, DataTypeCurrency, DataTypePercentage,
	DataTypeCategorical, DataTypeIdentifier,
}

// IsValid checks if the data type is one of the closed enum values.
func (t DataType) IsValid() bool {
	for _, v := range ValidDataTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Table type constants.
const (
	TableTypeTable = "table"
	TableTypeView  = "view"
	TableTypeSheet = "sheet" // one worksheet or one CSV file
)

// SchemaDocument is the normalized, engine-agnostic description of a
// data source. Documents are immutable once produced: diffs always
// compare two whole documents, never mutate one in place.
type SchemaDocument struct {
	SourceName string         `json:"source_name"`
	SourceType string         `json:"source_type"`
	Tables     []TableSchema  `json:"tables"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// TableByName returns the table with the given name, or nil.
func (d *SchemaDocument) TableByName(name string) *TableSchema {
	for i := range d.Tables {
		if d.Tables[i].Name == name {
			return &d.Tables[i]
		}
	}
	return nil
}

// TableSchema describes one table, view or sheet.
type TableSchema struct {
	Name        string         `json:"name"`
	Columns     []ColumnSchema `json:"columns"`
	RowCount    *int64         `json:"row_count,omitempty"`
	PrimaryKeys []string       `json:"primary_keys,omitempty"`
	ForeignKeys []ForeignKey   `json:"foreign_keys,omitempty"`
	Indexes     []string       `json:"indexes,omitempty"`
	Description string         `json:"description,omitempty"`
	TableType   string         `json:"table_type"`
}

// ColumnByName returns the column with the given name, or nil.
func (t *TableSchema) ColumnByName(name string) *ColumnSchema {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// ForeignKey describes one foreign key constraint on a table.
type ForeignKey struct {
	ColumnName       string `json:"column_name"`
	ReferencesTable  string `json:"references_table"`
	ReferencesColumn string `json:"references_column"`
}

// ColumnSchema describes one column.
type ColumnSchema struct {
	Name             string            `json:"name"`
	DataType         DataType          `json:"data_type"`
	IsNullable       bool              `json:"is_nullable"`
	IsPrimaryKey     bool              `json:"is_primary_key"`
	IsForeignKey     bool              `json:"is_foreign_key"`
	IsUnique         bool              `json:"is_unique"`
	SampleValues     []string          `json:"sample_values,omitempty"`
	Statistics       *ColumnStatistics `json:"statistics,omitempty"`
	ReferencesTable  string            `json:"references_table,omitempty"`
	ReferencesColumn string            `json:"references_column,omitempty"`
	Description      string            `json:"description,omitempty"`
	Constraints      []string          `json:"constraints,omitempty"`
}

// ColumnStatistics holds value statistics computed during extraction.
// Decimal fields are serialized as floating point; precision loss is
// accepted for this subsystem.
type ColumnStatistics struct {
	Count       int64    `json:"count"`
	NullCount   int64    `json:"null_count"`
	UniqueCount int64    `json:"unique_count"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Avg         *float64 `json:"avg,omitempty"`
	MinLength   *int64   `json:"min_length,omitempty"`
	MaxLength   *int64   `json:"max_length,omitempty"`
}
