package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"schoolbus/internal/domain"
	"schoolbus/internal/repository"
)

// RiderRepository is a PostgreSQL implementation of repository.RiderRepository.
type RiderRepository struct {
	q Querier
}

var _ repository.RiderRepository = (*RiderRepository)(nil)

// NewRiderRepository creates a new PostgreSQL rider repository.
func NewRiderRepository(db *sql.DB) *RiderRepository {
	return &RiderRepository{q: db}
}

// NewRiderRepositoryWithTx creates a rider repository using a transaction.
func NewRiderRepositoryWithTx(tx *sql.Tx) *RiderRepository {
	return &RiderRepository{q: tx}
}

const riderColumns = `id, name, lat, lng, attending, boarding_status, guardian_ids`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRider(s rowScanner) (*domain.Rider, error) {
	var (
		r         domain.Rider
		status    string
		guardians pq.StringArray
	)
	if err := s.Scan(&r.ID, &r.Name, &r.Location.Lat, &r.Location.Lng, &r.Attending, &status, &guardians); err != nil {
		return nil, err
	}
	r.BoardingStatus = domain.BoardingStatus(status)
	if !r.BoardingStatus.Valid() {
		return nil, fmt.Errorf("rider %s: unknown boarding status %q", r.ID, status)
	}
	r.GuardianIDs = []string(guardians)
	return &r, nil
}

// GetByID retrieves a rider by ID.
func (r *RiderRepository) GetByID(ctx context.Context, id string) (*domain.Rider, error) {
	query := `SELECT ` + riderColumns + ` FROM riders WHERE id = $1`
	rider, err := scanRider(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, storeErr("get rider", err)
	}
	return rider, nil
}

// GetAll retrieves all riders.
func (r *RiderRepository) GetAll(ctx context.Context) ([]*domain.Rider, error) {
	query := `SELECT ` + riderColumns + ` FROM riders ORDER BY id`
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, storeErr("list riders", err)
	}
	defer rows.Close()

	var riders []*domain.Rider
	for rows.Next() {
		rider, err := scanRider(rows)
		if err != nil {
			return nil, storeErr("scan rider", err)
		}
		riders = append(riders, rider)
	}
	return riders, storeErr("list riders", rows.Err())
}

// Update replaces the whole rider record, inserting it when absent.
func (r *RiderRepository) Update(ctx context.Context, rider *domain.Rider) error {
	query := `
		INSERT INTO riders (` + riderColumns + `, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			attending = EXCLUDED.attending,
			boarding_status = EXCLUDED.boarding_status,
			guardian_ids = EXCLUDED.guardian_ids,
			updated_at = NOW()`

	_, err := r.q.ExecContext(ctx, query,
		rider.ID,
		rider.Name,
		rider.Location.Lat,
		rider.Location.Lng,
		rider.Attending,
		string(rider.BoardingStatus),
		pq.Array(rider.GuardianIDs),
	)
	return storeErr("update rider", err)
}
