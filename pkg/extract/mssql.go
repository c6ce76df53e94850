package extract

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/reportai-inc/reportai-engine/pkg/models"
)

type mssqlExtractor struct {
	logger *zap.Logger
}

var _ SchemaExtractor = (*mssqlExtractor)(nil)

func newMSSQLExtractor(logger *zap.Logger) *mssqlExtractor {
	return &mssqlExtractor{logger: logger}
}

func (e *mssqlExtractor) TestConnection(ctx context.Context, connectionURL string) error {
	db, err := sql.Open("sqlserver", connectionURL)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.PingContext(ctx)
}

func (e *mssqlExtractor) Extract(ctx context.Context, connectionURL string) (*models.SchemaDocument, error) {
	db, err := sql.Open("sqlserver", connectionURL)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	doc := &models.SchemaDocument{
		SourceName: databaseName(connectionURL),
		SourceType: models.SourceTypeMSSQL,
	}

	tableRows, err := db.QueryContext(ctx, `
		SELECT TABLE_NAME, TABLE_TYPE
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = 'dbo'
		ORDER BY TABLE_NAME`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer tableRows.Close()

	type tableInfo struct {
		name      string
		tableType string
	}
	var tables []tableInfo
	for tableRows.Next() {
		var ti tableInfo
		var rawType string
		if err := tableRows.Scan(&ti.name, &rawType); err != nil {
			return nil, err
		}
		ti.tableType = models.TableTypeTable
		if rawType == "VIEW" {
			ti.tableType = models.TableTypeView
		}
		tables = append(tables, ti)
	}
	if err := tableRows.Err(); err != nil {
		return nil, err
	}

	pks, err := e.primaryKeys(ctx, db)
	if err != nil {
		return nil, err
	}

	for _, ti := range tables {
		columns, err := e.columns(ctx, db, ti.name)
		if err != nil {
			return nil, err
		}
		table := models.TableSchema{
			Name:      ti.name,
			TableType: ti.tableType,
			Columns:   columns,
		}
		for i := range table.Columns {
			col := &table.Columns[i]
			if pks[ti.name][col.Name] {
				col.IsPrimaryKey = true
				table.PrimaryKeys = append(table.PrimaryKeys, col.Name)
			}
		}
		doc.Tables = append(doc.Tables, table)
	}
	return doc, nil
}

func (e *mssqlExtractor) columns(ctx context.Context, db *sql.DB, table string) ([]models.ColumnSchema, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = 'dbo' AND TABLE_NAME = @p1
		ORDER BY ORDINAL_POSITION`, table)
	if err != nil {
		return nil, fmt.Errorf("list columns for %s: %w", table, err)
	}
	defer rows.Close()

	var columns []models.ColumnSchema
	for rows.Next() {
		var name, rawType, nullable string
		if err := rows.Scan(&name, &rawType, &nullable); err != nil {
			return nil, err
		}
		columns = append(columns, models.ColumnSchema{
			Name:       name,
			DataType:   standardizeMSSQLType(rawType),
			IsNullable: nullable == "YES",
		})
	}
	return columns, rows.Err()
}

func (e *mssqlExtractor) primaryKeys(ctx context.Context, db *sql.DB) (map[string]map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT kcu.TABLE_NAME, kcu.COLUMN_NAME
		FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
		JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
		  ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
		WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
		  AND tc.TABLE_SCHEMA = 'dbo'`)
	if err != nil {
		return nil, fmt.Errorf("list primary keys: %w", err)
	}
	defer rows.Close()

	pks := make(map[string]map[string]bool)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, err
		}
		if pks[table] == nil {
			pks[table] = make(map[string]bool)
		}
		pks[table][column] = true
	}
	return pks, rows.Err()
}

func standardizeMSSQLType(rawType string) models.DataType {
	switch strings.ToLower(rawType) {
	case "tinyint", "smallint", "int", "bigint":
		return models.DataTypeInteger
	case "decimal", "numeric", "float", "real", "money", "smallmoney":
		return models.DataTypeDecimal
	case "bit":
		return models.DataTypeBoolean
	case "date":
		return models.DataTypeDate
	case "datetime", "datetime2", "smalldatetime", "datetimeoffset":
		return models.DataTypeDatetime
	case "time":
		return models.DataTypeTime
	case "binary", "varbinary", "image":
		return models.DataTypeBinary
	case "uniqueidentifier":
		return models.DataTypeIdentifier
	case "char", "varchar", "nchar", "nvarchar", "text", "ntext", "xml":
		return models.DataTypeText
	default:
		return models.DataTypeUnknown
	}
}
