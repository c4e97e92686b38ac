package definition

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ezweb/internal/platform/postgres"
	"ezweb/internal/registry/models"
	id "ezweb/pkg/domain"
	"ezweb/pkg/platform/sentinel"
	txcontext "ezweb/pkg/platform/tx"
)

const definitionColumns = `id, name, description, schema_document, asset_reference, category, version, active, created_at, updated_at`

// PostgresStore persists definitions in component_definitions. Name
// uniqueness is enforced by a unique index on lower(name).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (*models.Definition, error) {
	var d models.Definition
	if err := row.Scan(&d.ID, &d.Name, &d.Description, &d.SchemaDocument, &d.AssetReference,
		&d.Category, &d.Version, &d.Active, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *PostgresStore) CreateIfNameAvailable(ctx context.Context, d *models.Definition) error {
	query := `
		INSERT INTO component_definitions (name, description, schema_document, asset_reference, category, version, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err := txcontext.Conn(ctx, s.db).QueryRowContext(ctx, query,
		d.Name, d.Description, d.SchemaDocument, d.AssetReference, d.Category, d.Version, d.Active, d.CreatedAt, d.UpdatedAt,
	).Scan(&d.ID)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("definition name %q: %w", d.Name, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert definition: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, defID id.DefinitionID) (*models.Definition, error) {
	query := `SELECT ` + definitionColumns + ` FROM component_definitions WHERE id = $1`
	d, err := scanDefinition(txcontext.Conn(ctx, s.db).QueryRowContext(ctx, query, int64(defID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find definition by id: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]*models.Definition, error) {
	return s.query(ctx, `SELECT `+definitionColumns+` FROM component_definitions ORDER BY id`)
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]*models.Definition, error) {
	return s.query(ctx, `SELECT `+definitionColumns+` FROM component_definitions WHERE active ORDER BY id`)
}

func (s *PostgresStore) ListByCategory(ctx context.Context, category string) ([]*models.Definition, error) {
	return s.query(ctx, `SELECT `+definitionColumns+` FROM component_definitions WHERE category = $1 ORDER BY id`, category)
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*models.Definition, error) {
	rows, err := txcontext.Conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()

	out := []*models.Definition{}
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan definition: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate definitions: %w", err)
	}
	return out, nil
}

// Execute locks the row with SELECT ... FOR UPDATE, applies validate and
// mutate, and writes the result back in the same transaction.
func (s *PostgresStore) Execute(ctx context.Context, defID id.DefinitionID, validate func(*models.Definition) error, mutate func(*models.Definition)) (*models.Definition, error) {
	if _, inTx := txcontext.From(ctx); inTx {
		return s.execute(ctx, txcontext.Conn(ctx, s.db), defID, validate, mutate)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin definition tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	d, err := s.execute(ctx, tx, defID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit definition tx: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) execute(ctx context.Context, q txcontext.Querier, defID id.DefinitionID, validate func(*models.Definition) error, mutate func(*models.Definition)) (*models.Definition, error) {
	query := `SELECT ` + definitionColumns + ` FROM component_definitions WHERE id = $1 FOR UPDATE`
	d, err := scanDefinition(q.QueryRowContext(ctx, query, int64(defID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock definition: %w", err)
	}
	if err := validate(d); err != nil {
		return nil, err
	}
	mutate(d)

	update := `
		UPDATE component_definitions
		SET name = $2, description = $3, schema_document = $4, asset_reference = $5,
		    category = $6, version = $7, active = $8, updated_at = $9
		WHERE id = $1
	`
	_, err = q.ExecContext(ctx, update, int64(d.ID), d.Name, d.Description, d.SchemaDocument,
		d.AssetReference, d.Category, d.Version, d.Active, d.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, fmt.Errorf("definition name %q: %w", d.Name, sentinel.ErrAlreadyUsed)
		}
		return nil, fmt.Errorf("update definition: %w", err)
	}
	return d, nil
}

// Delete removes the row. The site_bindings foreign key is ON DELETE
// RESTRICT, so a referenced definition fails with sentinel.ErrReferenced.
func (s *PostgresStore) Delete(ctx context.Context, defID id.DefinitionID) error {
	res, err := txcontext.Conn(ctx, s.db).ExecContext(ctx, `DELETE FROM component_definitions WHERE id = $1`, int64(defID))
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return fmt.Errorf("definition %d: %w", defID, sentinel.ErrReferenced)
		}
		return fmt.Errorf("delete definition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete definition: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
