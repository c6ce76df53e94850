package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/reportai-inc/reportai-engine/pkg/models"
)

type postgresExtractor struct {
	logger *zap.Logger
}

var _ SchemaExtractor = (*postgresExtractor)(nil)

func newPostgresExtractor(logger *zap.Logger) *postgresExtractor {
	return &postgresExtractor{logger: logger}
}

func (e *postgresExtractor) TestConnection(ctx context.Context, connectionURL string) error {
	conn, err := pgx.Connect(ctx, connectionURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	return conn.Ping(ctx)
}

func (e *postgresExtractor) Extract(ctx context.Context, connectionURL string) (*models.SchemaDocument, error) {
	conn, err := pgx.Connect(ctx, connectionURL)
	if err != nil {
		return nil, err
	}
	defer conn.Close(ctx)

	tables, err := e.listTables(ctx, conn)
	if err != nil {
		return nil, err
	}

	pks, err := e.primaryKeys(ctx, conn)
	if err != nil {
		return nil, err
	}
	fks, err := e.foreignKeys(ctx, conn)
	if err != nil {
		return nil, err
	}

	doc := &models.SchemaDocument{
		SourceName: databaseName(connectionURL),
		SourceType: models.SourceTypePostgres,
		Tables:     make([]models.TableSchema, 0, len(tables)),
	}
	for _, tbl := range tables {
		columns, err := e.columns(ctx, conn, tbl.name)
		if err != nil {
			return nil, err
		}
		table := models.TableSchema{
			Name:      tbl.name,
			TableType: tbl.tableType,
			Columns:   columns,
		}
		for i := range table.Columns {
			col := &table.Columns[i]
			if pks[tbl.name][col.Name] {
				col.IsPrimaryKey = true
				table.PrimaryKeys = append(table.PrimaryKeys, col.Name)
			}
			if ref, ok := fks[tbl.name][col.Name]; ok {
				col.IsForeignKey = true
				col.ReferencesTable = ref.table
				col.ReferencesColumn = ref.column
				table.ForeignKeys = append(table.ForeignKeys, models.ForeignKey{
					ColumnName:       col.Name,
					ReferencesTable:  ref.table,
					ReferencesColumn: ref.column,
				})
			}
		}
		if est, err := e.rowEstimate(ctx, conn, tbl.name); err == nil {
			table.RowCount = &est
		}
		doc.Tables = append(doc.Tables, table)
	}
	return doc, nil
}

type pgTable struct {
	name      string
	tableType string
}

func (e *postgresExtractor) listTables(ctx context.Context, conn *pgx.Conn) ([]pgTable, error) {
	rows, err := conn.Query(ctx, `
		SELECT table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = 'public'
		ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []pgTable
	for rows.Next() {
		var name, rawType string
		if err := rows.Scan(&name, &rawType); err != nil {
			return nil, err
		}
		tableType := models.TableTypeTable
		if rawType == "VIEW" {
			tableType = models.TableTypeView
		}
		tables = append(tables, pgTable{name: name, tableType: tableType})
	}
	return tables, rows.Err()
}

func (e *postgresExtractor) columns(ctx context.Context, conn *pgx.Conn, table string) ([]models.ColumnSchema, error) {
	rows, err := conn.Query(ctx, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`, table)
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
			DataType:   standardizePostgresType(rawType),
			IsNullable: nullable == "YES",
		})
	}
	return columns, rows.Err()
}

func (e *postgresExtractor) primaryKeys(ctx context.Context, conn *pgx.Conn) (map[string]map[string]bool, error) {
	rows, err := conn.Query(ctx, `
		SELECT kcu.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = 'public'`)
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

type fkRef struct {
	table  string
	column string
}

func (e *postgresExtractor) foreignKeys(ctx context.Context, conn *pgx.Conn) (map[string]map[string]fkRef, error) {
	rows, err := conn.Query(ctx, `
		SELECT kcu.table_name, kcu.column_name, ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON tc.constraint_name = ccu.constraint_name
		 AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = 'public'`)
	if err != nil {
		return nil, fmt.Errorf("list foreign keys: %w", err)
	}
	defer rows.Close()

	fks := make(map[string]map[string]fkRef)
	for rows.Next() {
		var table, column, refTable, refColumn string
		if err := rows.Scan(&table, &column, &refTable, &refColumn); err != nil {
			return nil, err
		}
		if fks[table] == nil {
			fks[table] = make(map[string]fkRef)
		}
		fks[table][column] = fkRef{table: refTable, column: refColumn}
	}
	return fks, rows.Err()
}

// rowEstimate uses the planner statistics rather than COUNT(*) so
// extraction stays fast on large tables.
func (e *postgresExtractor) rowEstimate(ctx context.Context, conn *pgx.Conn, table string) (int64, error) {
	var estimate float64
	err := conn.QueryRow(ctx, `
		SELECT COALESCE(reltuples, 0)
		FROM pg_class
		WHERE relname = $1 AND relnamespace = 'public'::regnamespace`, table).Scan(&estimate)
	if err != nil {
		return 0, err
	}
	if estimate < 0 {
		estimate = 0
	}
	return int64(estimate), nil
}

func standardizePostgresType(rawType string) models.DataType {
	switch strings.ToLower(rawType) {
	case "smallint", "integer", "bigint", "smallserial", "serial", "bigserial":
		return models.DataTypeInteger
	case "numeric", "decimal", "real", "double precision", "money":
		return models.DataTypeDecimal
	case "boolean":
		return models.DataTypeBoolean
	case "date":
		return models.DataTypeDate
	case "timestamp", "timestamp without time zone", "timestamp with time zone":
		return models.DataTypeDatetime
	case "time", "time without time zone", "time with time zone":
		return models.DataTypeTime
	case "json", "jsonb":
		return models.DataTypeJSON
	case "bytea":
		return models.DataTypeBinary
	case "uuid":
		return models.DataTypeIdentifier
	case "character varying", "varchar", "character", "char", "text":
		return models.DataTypeText
	default:
		return models.DataTypeUnknown
	}
}

// databaseName pulls the database name out of a connection URL for use
// as the schema document's source name.
func databaseName(connectionURL string) string {
	trimmed := connectionURL
	if idx := strings.Index(trimmed, "://"); idx >= 0 {
		trimmed = trimmed[idx+3:]
	}
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	if idx := strings.Index(trimmed, "?"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	if trimmed == "" {
		return "database"
	}
	return trimmed
}
