package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/reportai-inc/reportai-engine/pkg/apperrors"
	"github.com/reportai-inc/reportai-engine/pkg/database"
	"github.com/reportai-inc/reportai-engine/pkg/models"
)

// DataSourceRepository defines the interface for data source persistence.
type DataSourceRepository interface {
	Create(ctx context.Context, ds *models.DataSource) error
	GetByID(ctx context.Context, id int64) (*models.DataSource, error)
	// GetByName resolves a user's data source by its unique name.
	GetByName(ctx context.Context, userID int64, name string) (*models.DataSource, error)
	ListByUser(ctx context.Context, userID int64) ([]*models.DataSource, error)
	Update(ctx context.Context, ds *models.DataSource) error
	Delete(ctx context.Context, id int64) error
}

// dataSourceRepository implements DataSourceRepository using PostgreSQL.
// The schema document is stored as JSONB; legacy sources hold a plain
// string in the same column.
type dataSourceRepository struct {
	db *database.DB
}

// NewDataSourceRepository creates a new data source repository.
func NewDataSourceRepository(db *database.DB) DataSourceRepository {
	return &dataSourceRepository{db: db}
}

func (r *dataSourceRepository) Create(ctx context.Context, ds *models.DataSource) error {
	now := time.Now().UTC()
	ds.CreatedAt = now
	ds.UpdatedAt = now

	schema, err := json.Marshal(ds.Schema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	query := `
		INSERT INTO data_sources (user_id, name, type, connection_url, schema, llm_description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err = r.db.Pool.QueryRow(ctx, query,
		ds.UserID,
		ds.Name,
		ds.Type,
		ds.ConnectionURL,
		schema,
		ds.LLMDescription,
		ds.CreatedAt,
		ds.UpdatedAt,
	).Scan(&ds.ID)
	if err != nil {
		return fmt.Errorf("failed to create data source: %w", err)
	}
	return nil
}

func (r *dataSourceRepository) GetByID(ctx context.Context, id int64) (*models.DataSource, error) {
	query := `
		SELECT id, user_id, name, type, connection_url, schema, llm_description, created_at, updated_at
		FROM data_sources
		WHERE id = $1`

	return r.scanDataSource(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *dataSourceRepository) GetByName(ctx context.Context, userID int64, name string) (*models.DataSource, error) {
	query := `
		SELECT id, user_id, name, type, connection_url, schema, llm_description, created_at, updated_at
		FROM data_sources
		WHERE user_id = $1 AND name = $2`

	return r.scanDataSource(r.db.Pool.QueryRow(ctx, query, userID, name))
}

func (r *dataSourceRepository) ListByUser(ctx context.Context, userID int64) ([]*models.DataSource, error) {
	query := `
		SELECT id, user_id, name, type, connection_url, schema, llm_description, created_at, updated_at
		FROM data_sources
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list data sources: %w", err)
	}
	defer rows.Close()

	var sources []*models.DataSource
	for rows.Next() {
		ds, err := r.scanDataSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, ds)
	}
	return sources, rows.Err()
}

func (r *dataSourceRepository) Update(ctx context.Context, ds *models.DataSource) error {
	ds.UpdatedAt = time.Now().UTC()

	schema, err := json.Marshal(ds.Schema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	query := `
		UPDATE data_sources
		SET name = $2,
		    type = $3,
		    connection_url = $4,
		    schema = $5,
		    llm_description = $6,
		    updated_at = $7
		WHERE id = $1`

	result, err := r.db.Pool.Exec(ctx, query,
		ds.ID,
		ds.Name,
		ds.Type,
		ds.ConnectionURL,
		schema,
		ds.LLMDescription,
		ds.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update data source: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *dataSourceRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM data_sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete data source: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *dataSourceRepository) scanDataSource(row pgx.Row) (*models.DataSource, error) {
	var ds models.DataSource
	var schema []byte
	err := row.Scan(
		&ds.ID,
		&ds.UserID,
		&ds.Name,
		&ds.Type,
		&ds.ConnectionURL,
		&schema,
		&ds.LLMDescription,
		&ds.CreatedAt,
		&ds.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get data source: %w", err)
	}
	if len(schema) > 0 {
		if err := json.Unmarshal(schema, &ds.Schema); err != nil {
			return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
		}
	}
	return &ds, nil
}
