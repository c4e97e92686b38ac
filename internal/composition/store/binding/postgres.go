package binding

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"ezweb/internal/composition/models"
	"ezweb/internal/platform/postgres"
	id "ezweb/pkg/domain"
	dErrors "ezweb/pkg/domain-errors"
	"ezweb/pkg/platform/sentinel"
	txcontext "ezweb/pkg/platform/tx"
)

const bindingColumns = `id, site_id, definition_id, custom_data, position, visible, created_at, updated_at`

// lockNamespace scopes the advisory lock so it cannot collide with other
// advisory lock users of the same database.
const lockNamespace = "site_bindings"

// PostgresStore serves binding reads outside a site transaction and opens
// site transactions. Postgres MVCC gives every statement a consistent
// snapshot.
type PostgresStore struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, timeout: defaultSiteTxTimeout}
}

// RunInTx runs fn in a transaction holding the site's advisory lock.
// Nothing fn wrote is visible unless it returns nil and the commit passes
// the deferred (site_id, position) uniqueness check.
func (s *PostgresStore) RunInTx(ctx context.Context, siteID id.SiteID, fn func(ctx context.Context, store SiteStore) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin site tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := LockSite(ctx, tx, siteID); err != nil {
		return err
	}
	if err := fn(txcontext.WithTx(ctx, tx), NewPostgresSite(tx, siteID)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted before commit")
	}
	if err := tx.Commit(); err != nil {
		if postgres.IsUniqueViolation(err, "site_bindings_site_position_key") {
			return fmt.Errorf("commit site %d: %w", siteID, sentinel.ErrConflict)
		}
		return fmt.Errorf("commit site tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBinding(row rowScanner) (*models.Binding, error) {
	var (
		b    models.Binding
		data []byte
	)
	if err := row.Scan(&b.ID, &b.SiteID, &b.DefinitionID, &data, &b.Position, &b.Visible, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	if data != nil {
		b.CustomData = models.Document(data)
	}
	return &b, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, bindingID id.BindingID) (*models.Binding, error) {
	return findBinding(ctx, txcontext.Conn(ctx, s.db), `SELECT `+bindingColumns+` FROM site_bindings WHERE id = $1`, int64(bindingID))
}

func (s *PostgresStore) ListBySite(ctx context.Context, siteID id.SiteID) ([]*models.Binding, error) {
	return listBindings(ctx, txcontext.Conn(ctx, s.db), int64(siteID))
}

func (s *PostgresStore) CountByDefinition(ctx context.Context, defID id.DefinitionID) (int, error) {
	var n int
	err := txcontext.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT count(*) FROM site_bindings WHERE definition_id = $1`, int64(defID)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count bindings by definition: %w", err)
	}
	return n, nil
}

func findBinding(ctx context.Context, q txcontext.Querier, query string, args ...any) (*models.Binding, error) {
	b, err := scanBinding(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find binding: %w", err)
	}
	return b, nil
}

func listBindings(ctx context.Context, q txcontext.Querier, siteID int64) ([]*models.Binding, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+bindingColumns+` FROM site_bindings WHERE site_id = $1 ORDER BY position`, siteID)
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	defer rows.Close()

	out := []*models.Binding{}
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan binding: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bindings: %w", err)
	}
	return out, nil
}

// LockSite takes the transaction-scoped advisory lock for siteID. The lock
// is released by COMMIT or ROLLBACK. Hash collisions only cause two sites
// to wait on each other, never a missed lock.
func LockSite(ctx context.Context, tx *sql.Tx, siteID id.SiteID) error {
	_, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`, lockNamespace, siteID.String())
	if err != nil {
		return fmt.Errorf("lock site %d: %w", siteID, err)
	}
	return nil
}

// PostgresSite implements SiteStore on a transaction that holds the site
// lock. UNIQUE (site_id, position) is deferred to commit, so intermediate
// position states inside the transaction are allowed.
type PostgresSite struct {
	tx     *sql.Tx
	siteID id.SiteID
}

func NewPostgresSite(tx *sql.Tx, siteID id.SiteID) *PostgresSite {
	return &PostgresSite{tx: tx, siteID: siteID}
}

func (p *PostgresSite) List(ctx context.Context) ([]*models.Binding, error) {
	return listBindings(ctx, p.tx, int64(p.siteID))
}

func (p *PostgresSite) Find(ctx context.Context, bindingID id.BindingID) (*models.Binding, error) {
	return findBinding(ctx, p.tx, `SELECT `+bindingColumns+` FROM site_bindings WHERE id = $1 AND site_id = $2`,
		int64(bindingID), int64(p.siteID))
}

func nullableDocument(d models.Document) any {
	if len(d) == 0 {
		return nil
	}
	return []byte(d)
}

func (p *PostgresSite) Insert(ctx context.Context, b *models.Binding) error {
	if b.SiteID != p.siteID {
		return fmt.Errorf("binding for site %d inserted in site %d: %w", b.SiteID, p.siteID, sentinel.ErrConflict)
	}
	query := `
		INSERT INTO site_bindings (site_id, definition_id, custom_data, position, visible, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := p.tx.QueryRowContext(ctx, query,
		int64(b.SiteID), int64(b.DefinitionID), nullableDocument(b.CustomData), b.Position, b.Visible, b.CreatedAt, b.UpdatedAt,
	).Scan(&b.ID)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return fmt.Errorf("insert binding: %w", sentinel.ErrNotFound)
		}
		return fmt.Errorf("insert binding: %w", err)
	}
	return nil
}

func (p *PostgresSite) Save(ctx context.Context, b *models.Binding) error {
	res, err := p.tx.ExecContext(ctx, `
		UPDATE site_bindings
		SET custom_data = $3, visible = $4, position = $5, updated_at = $6
		WHERE id = $1 AND site_id = $2
	`, int64(b.ID), int64(p.siteID), nullableDocument(b.CustomData), b.Visible, b.Position, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save binding: %w", err)
	}
	return expectOneRow(res)
}

func (p *PostgresSite) SetPositions(ctx context.Context, positions map[id.BindingID]int, now time.Time) error {
	if len(positions) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(positions))
	pos := make([]int64, 0, len(positions))
	for bindingID, position := range positions {
		ids = append(ids, int64(bindingID))
		pos = append(pos, int64(position))
	}
	res, err := p.tx.ExecContext(ctx, `
		UPDATE site_bindings AS b
		SET position = v.position, updated_at = $4
		FROM unnest($2::bigint[], $3::int[]) AS v(id, position)
		WHERE b.id = v.id AND b.site_id = $1
	`, int64(p.siteID), pq.Array(ids), pq.Array(pos), now)
	if err != nil {
		return fmt.Errorf("set positions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set positions: %w", err)
	}
	if int(n) != len(positions) {
		return fmt.Errorf("set positions: updated %d of %d: %w", n, len(positions), sentinel.ErrNotFound)
	}
	return nil
}

func (p *PostgresSite) Delete(ctx context.Context, bindingID id.BindingID) error {
	res, err := p.tx.ExecContext(ctx, `DELETE FROM site_bindings WHERE id = $1 AND site_id = $2`,
		int64(bindingID), int64(p.siteID))
	if err != nil {
		return fmt.Errorf("delete binding: %w", err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
