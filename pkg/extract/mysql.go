package extract

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/reportai-inc/reportai-engine/pkg/apperrors"
	"github.com/reportai-inc/reportai-engine/pkg/models"
)

// mysqlExtractor serves both mysql and mariadb sources; they share the
// wire protocol and information schema layout.
type mysqlExtractor struct {
	logger *zap.Logger
}

var _ SchemaExtractor = (*mysqlExtractor)(nil)

func newMySQLExtractor(logger *zap.Logger) *mysqlExtractor {
	return &mysqlExtractor{logger: logger}
}

func (e *mysqlExtractor) open(connectionURL string) (*sql.DB, string, error) {
	dsn, database, err := mysqlDSN(connectionURL)
	if err != nil {
		return nil, "", err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, "", err
	}
	return db, database, nil
}

func (e *mysqlExtractor) TestConnection(ctx context.Context, connectionURL string) error {
	db, _, err := e.open(connectionURL)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.PingContext(ctx)
}

func (e *mysqlExtractor) Extract(ctx context.Context, connectionURL string) (*models.SchemaDocument, error) {
	db, database, err := e.open(connectionURL)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	doc := &models.SchemaDocument{
		SourceName: database,
		SourceType: models.SourceTypeMySQL,
	}

	tableRows, err := db.QueryContext(ctx, `
		SELECT table_name, table_type, COALESCE(table_rows, 0)
		FROM information_schema.tables
		WHERE table_schema = ?
		ORDER BY table_name`, database)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer tableRows.Close()

	type tableInfo struct {
		name      string
		tableType string
		rowCount  int64
	}
	var tables []tableInfo
	for tableRows.Next() {
		var ti tableInfo
		var rawType string
		if err := tableRows.Scan(&ti.name, &rawType, &ti.rowCount); err != nil {
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

	for _, ti := range tables {
		columns, err := e.columns(ctx, db, database, ti.name)
		if err != nil {
			return nil, err
		}
		table := models.TableSchema{
			Name:      ti.name,
			TableType: ti.tableType,
			Columns:   columns,
		}
		rc := ti.rowCount
		table.RowCount = &rc
		for i := range table.Columns {
			if table.Columns[i].IsPrimaryKey {
				table.PrimaryKeys = append(table.PrimaryKeys, table.Columns[i].Name)
			}
		}
		doc.Tables = append(doc.Tables, table)
	}
	return doc, nil
}

func (e *mysqlExtractor) columns(ctx context.Context, db *sql.DB, database, table string) ([]models.ColumnSchema, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable, column_key
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`, database, table)
	if err != nil {
		return nil, fmt.Errorf("list columns for %s: %w", table, err)
	}
	defer rows.Close()

	var columns []models.ColumnSchema
	for rows.Next() {
		var name, rawType, nullable, columnKey string
		if err := rows.Scan(&name, &rawType, &nullable, &columnKey); err != nil {
			return nil, err
		}
		columns = append(columns, models.ColumnSchema{
			Name:         name,
			DataType:     standardizeMySQLType(rawType),
			IsNullable:   nullable == "YES",
			IsPrimaryKey: columnKey == "PRI",
			IsUnique:     columnKey == "UNI",
		})
	}
	return columns, rows.Err()
}

// mysqlDSN converts a mysql:// or mariadb:// URL into the DSN format
// the driver expects, and returns the database name.
func mysqlDSN(connectionURL string) (string, string, error) {
	u, err := url.Parse(connectionURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: invalid connection url", apperrors.ErrValidation)
	}
	database := strings.TrimPrefix(u.Path, "/")
	if database == "" {
		return "", "", fmt.Errorf("%w: connection url has no database name", apperrors.ErrValidation)
	}

	host := u.Host
	if u.Port() == "" {
		host = u.Hostname() + ":3306"
	}

	var creds string
	if u.User != nil {
		creds = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			creds += ":" + pw
		}
		creds += "@"
	}
	return fmt.Sprintf("%stcp(%s)/%s?parseTime=true", creds, host, database), database, nil
}

func standardizeMySQLType(rawType string) models.DataType {
	switch strings.ToLower(rawType) {
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint", "year":
		return models.DataTypeInteger
	case "decimal", "numeric", "float", "double":
		return models.DataTypeDecimal
	case "bit":
		return models.DataTypeBoolean
	case "date":
		return models.DataTypeDate
	case "datetime", "timestamp":
		return models.DataTypeDatetime
	case "time":
		return models.DataTypeTime
	case "json":
		return models.DataTypeJSON
	case "binary", "varbinary", "blob", "tinyblob", "mediumblob", "longblob":
		return models.DataTypeBinary
	case "char", "varchar", "text", "tinytext", "mediumtext", "longtext", "enum", "set":
		return models.DataTypeText
	default:
		return models.DataTypeUnknown
	}
}
