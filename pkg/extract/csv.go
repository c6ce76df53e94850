package extract

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/reportai-inc/reportai-engine/pkg/apperrors"
	"github.com/reportai-inc/reportai-engine/pkg/models"
)

// maxProfiledRows bounds how many rows are read for type inference and
// statistics. Rows beyond the bound still count toward RowCount.
const maxProfiledRows = 1000

func extractCSV(filename string, data []byte) (*models.SchemaDocument, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: file is empty", apperrors.ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parse csv header: %s", apperrors.ErrValidation, err)
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("%w: file has no columns", apperrors.ErrValidation)
	}

	columnValues := make([][]string, len(header))
	var rowCount int64
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: parse csv row %d: %s", apperrors.ErrValidation, rowCount+2, err)
		}
		rowCount++
		if rowCount > maxProfiledRows {
			continue
		}
		for i := range header {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			columnValues[i] = append(columnValues[i], value)
		}
	}

	tableName := tableNameFromFilename(filename)
	table := models.TableSchema{
		Name:      tableName,
		TableType: models.TableTypeSheet,
		RowCount:  &rowCount,
		Columns:   make([]models.ColumnSchema, 0, len(header)),
	}
	for i, name := range header {
		colName := strings.TrimSpace(name)
		if colName == "" {
			colName = fmt.Sprintf("column_%d", i+1)
		}
		table.Columns = append(table.Columns, inferColumn(colName, columnValues[i]))
	}

	return &models.SchemaDocument{
		SourceName: tableName,
		SourceType: models.SourceTypeCSV,
		Tables:     []models.TableSchema{table},
	}, nil
}

// tableNameFromFilename strips the path and extension from an upload
// name, e.g. "Q3 sales.csv" becomes "Q3 sales".
func tableNameFromFilename(filename string) string {
	name := filename
	if idx := strings.LastIndexAny(name, "/\\"); idx >= 0 {
		name = name[idx+1:]
	}
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[:idx]
	}
	if name == "" {
		return "upload"
	}
	return name
}
