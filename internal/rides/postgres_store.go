package rides

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/models"
)

// PostgresStore persists rides with database/sql. Transitions are conditional
// UPDATE ... WHERE status=... RETURNING statements, so the claim race is
// resolved by the database even when several dispatcher processes share it.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const rideColumns = `id, rider_id, captain_id, pickup_lat, pickup_lon, dest_lat, dest_lon,
	pickup_text, dest_text, vehicle_class, fare, otp, status, cancelled_by,
	created_at, accepted_at, confirmed_at, completed_at, cancelled_at`

func (p *PostgresStore) Create(ctx context.Context, r *models.Ride) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO rides(`+rideColumns+`)
		VALUES($1,$2,NULLIF($3,''),$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NULLIF($14,''),$15,$16,$17,$18,$19)`,
		r.ID, r.RiderID, r.CaptainID, r.Pickup.Lat, r.Pickup.Lon, r.Destination.Lat, r.Destination.Lon,
		r.PickupText, r.DestText, r.VehicleClass, r.Fare, r.OTP, r.Status, r.CancelledBy,
		r.CreatedAt, r.AcceptedAt, r.ConfirmedAt, r.CompletedAt, r.CancelledAt)
	if err != nil {
		return fmt.Errorf("insert ride: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id=$1`, id)
	return scanRide(row, id)
}

func (p *PostgresStore) Claim(ctx context.Context, rideID, captainID string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE rides SET captain_id=$2, status=$3, accepted_at=$4
		WHERE id=$1 AND status=$5 AND captain_id IS NULL
		RETURNING `+rideColumns,
		rideID, captainID, models.StatusAccepted, time.Now(), models.StatusPending)
	r, err := scanRide(row, rideID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, p.conflictOrMissing(ctx, rideID)
	}
	return r, err
}

func (p *PostgresStore) Confirm(ctx context.Context, rideID string) (*models.Ride, error) {
	return p.conditional(ctx, rideID, `
		UPDATE rides SET status=$2, confirmed_at=$3
		WHERE id=$1 AND status=$4
		RETURNING `+rideColumns,
		models.StatusConfirmed, time.Now(), models.StatusAccepted)
}

func (p *PostgresStore) Complete(ctx context.Context, rideID string) (*models.Ride, error) {
	return p.conditional(ctx, rideID, `
		UPDATE rides SET status=$2, completed_at=$3
		WHERE id=$1 AND status=$4
		RETURNING `+rideColumns,
		models.StatusCompleted, time.Now(), models.StatusConfirmed)
}

func (p *PostgresStore) Cancel(ctx context.Context, rideID, actorID string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE rides SET status=$2, cancelled_by=$3, cancelled_at=$4
		WHERE id=$1 AND status IN ($5, $6)
		RETURNING `+rideColumns,
		rideID, models.StatusCancelled, actorID, time.Now(), models.StatusPending, models.StatusAccepted)
	r, err := scanRide(row, rideID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, p.conflictOrMissing(ctx, rideID)
	}
	return r, err
}

func (p *PostgresStore) conditional(ctx context.Context, rideID, query string, args ...any) (*models.Ride, error) {
	all := append([]any{rideID}, args...)
	row := p.db.QueryRowContext(ctx, query, all...)
	r, err := scanRide(row, rideID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, p.conflictOrMissing(ctx, rideID)
	}
	return r, err
}

// conflictOrMissing distinguishes "someone else got there first" from "that
// ride no longer exists" after a conditional update matched zero rows.
func (p *PostgresStore) conflictOrMissing(ctx context.Context, rideID string) error {
	var exists bool
	if err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM rides WHERE id=$1)`, rideID).Scan(&exists); err != nil {
		return fmt.Errorf("ride %s lookup: %w", rideID, err)
	}
	if !exists {
		return fmt.Errorf("ride %s: %w", rideID, models.ErrNotFound)
	}
	return fmt.Errorf("ride %s: %w", rideID, models.ErrConflict)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner, id string) (*models.Ride, error) {
	var (
		r           models.Ride
		captainID   sql.NullString
		cancelledBy sql.NullString
		acceptedAt  sql.NullTime
		confirmedAt sql.NullTime
		completedAt sql.NullTime
		cancelledAt sql.NullTime
	)
	err := row.Scan(&r.ID, &r.RiderID, &captainID, &r.Pickup.Lat, &r.Pickup.Lon,
		&r.Destination.Lat, &r.Destination.Lon, &r.PickupText, &r.DestText,
		&r.VehicleClass, &r.Fare, &r.OTP, &r.Status, &cancelledBy,
		&r.CreatedAt, &acceptedAt, &confirmedAt, &completedAt, &cancelledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ride %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan ride %s: %w", id, err)
	}
	r.CaptainID = captainID.String
	r.CancelledBy = cancelledBy.String
	if acceptedAt.Valid {
		r.AcceptedAt = &acceptedAt.Time
	}
	if confirmedAt.Valid {
		r.ConfirmedAt = &confirmedAt.Time
	}
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	if cancelledAt.Valid {
		r.CancelledAt = &cancelledAt.Time
	}
	return &r, nil
}
