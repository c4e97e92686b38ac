package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	id "ezweb/pkg/domain"
	"ezweb/pkg/platform/sentinel"
)

// Postgres reads site owners from the websites table, which the website
// management service owns.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (d *Postgres) OwnerOf(ctx context.Context, siteID id.SiteID) (id.UserID, error) {
	var owner int64
	err := d.db.QueryRowContext(ctx, `SELECT owner_id FROM websites WHERE id = $1`, int64(siteID)).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, sentinel.ErrNotFound
		}
		return 0, fmt.Errorf("lookup site owner: %w", err)
	}
	return id.UserID(owner), nil
}

// CreateSite inserts a website row. It backs the dev CLI and integration
// tests; production rows come from the website management service.
func (d *Postgres) CreateSite(ctx context.Context, owner id.UserID, name string) (id.SiteID, error) {
	var siteID int64
	err := d.db.QueryRowContext(ctx,
		`INSERT INTO websites (owner_id, name) VALUES ($1, $2) RETURNING id`, int64(owner), name).Scan(&siteID)
	if err != nil {
		return 0, fmt.Errorf("create site: %w", err)
	}
	return id.SiteID(siteID), nil
}
