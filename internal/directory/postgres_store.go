package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Rider(ctx context.Context, id string) (*models.Rider, error) {
	var r models.Rider
	err := p.db.QueryRowContext(ctx, `SELECT id, name FROM riders WHERE id=$1`, id).Scan(&r.ID, &r.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rider %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *PostgresStore) Captain(ctx context.Context, id string) (*models.Captain, error) {
	var c models.Captain
	err := p.db.QueryRowContext(ctx,
		`SELECT id, name, vehicle_class, duty, lat, lon, rating, updated_at FROM captains WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.VehicleClass, &c.Duty, &c.Loc.Lat, &c.Loc.Lon, &c.Rating, &c.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("captain %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *PostgresStore) SaveRider(ctx context.Context, r *models.Rider) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO riders(id, name) VALUES($1,$2)
		 ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name`, r.ID, r.Name)
	return err
}

func (p *PostgresStore) SaveCaptain(ctx context.Context, c *models.Captain) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO captains(id, name, vehicle_class, duty, lat, lon, rating, updated_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (id) DO UPDATE SET
		   name=EXCLUDED.name, vehicle_class=EXCLUDED.vehicle_class, duty=EXCLUDED.duty,
		   lat=EXCLUDED.lat, lon=EXCLUDED.lon, rating=EXCLUDED.rating, updated_at=EXCLUDED.updated_at`,
		c.ID, c.Name, c.VehicleClass, c.Duty, c.Loc.Lat, c.Loc.Lon, c.Rating, time.Now())
	return err
}

func (p *PostgresStore) SetDuty(ctx context.Context, captainID string, duty models.DutyStatus) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE captains SET duty=$1, updated_at=$2 WHERE id=$3`, duty, time.Now(), captainID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("captain %s: %w", captainID, models.ErrNotFound)
	}
	return nil
}

func (p *PostgresStore) UpdateLocation(ctx context.Context, captainID string, loc models.Coord) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE captains SET lat=$1, lon=$2, updated_at=$3 WHERE id=$4`, loc.Lat, loc.Lon, time.Now(), captainID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("captain %s: %w", captainID, models.ErrNotFound)
	}
	return nil
}
