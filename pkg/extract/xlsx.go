package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/reportai-inc/reportai-engine/pkg/apperrors"
	"github.com/reportai-inc/reportai-engine/pkg/models"
)

func extractXLSX(filename string, data []byte) (*models.SchemaDocument, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: parse xlsx: %s", apperrors.ErrValidation, err)
	}
	defer f.Close()

	doc := &models.SchemaDocument{
		SourceName: tableNameFromFilename(filename),
		SourceType: models.SourceTypeXLSX,
	}

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("%w: read sheet %q: %s", apperrors.ErrValidation, sheet, err)
		}
		// Empty sheets are skipped rather than rejected; workbooks often
		// carry blank scratch sheets.
		if len(rows) == 0 || len(rows[0]) == 0 {
			continue
		}

		header := rows[0]
		body := rows[1:]
		rowCount := int64(len(body))
		if len(body) > maxProfiledRows {
			body = body[:maxProfiledRows]
		}

		columnValues := make([][]string, len(header))
		for _, row := range body {
			for i := range header {
				value := ""
				if i < len(row) {
					value = row[i]
				}
				columnValues[i] = append(columnValues[i], value)
			}
		}

		table := models.TableSchema{
			Name:      sheet,
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
		doc.Tables = append(doc.Tables, table)
	}

	if len(doc.Tables) == 0 {
		return nil, fmt.Errorf("%w: workbook has no non-empty sheets", apperrors.ErrValidation)
	}
	return doc, nil
}
