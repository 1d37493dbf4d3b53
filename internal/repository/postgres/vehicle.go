package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"schoolbus/internal/domain"
	"schoolbus/internal/repository"
)

// VehicleRepository is a PostgreSQL implementation of repository.VehicleRepository.
type VehicleRepository struct {
	q Querier
}

var _ repository.VehicleRepository = (*VehicleRepository)(nil)

// NewVehicleRepository creates a new PostgreSQL vehicle repository.
func NewVehicleRepository(db *sql.DB) *VehicleRepository {
	return &VehicleRepository{q: db}
}

// NewVehicleRepositoryWithTx creates a vehicle repository using a transaction.
func NewVehicleRepositoryWithTx(tx *sql.Tx) *VehicleRepository {
	return &VehicleRepository{q: tx}
}

const vehicleColumns = `id, name, password, start_lat, start_lng, live_lat, live_lng, rider_ids`

func scanVehicle(s rowScanner) (*domain.Vehicle, error) {
	var (
		v      domain.Vehicle
		riders pq.StringArray
	)
	err := s.Scan(
		&v.ID,
		&v.Name,
		&v.Password,
		&v.Start.Lat,
		&v.Start.Lng,
		&v.Live.Lat,
		&v.Live.Lng,
		&riders,
	)
	if err != nil {
		return nil, err
	}
	v.RiderIDs = []string(riders)
	return &v, nil
}

// GetByID retrieves a vehicle by ID.
func (r *VehicleRepository) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE id = $1`
	v, err := scanVehicle(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, storeErr("get vehicle", err)
	}
	return v, nil
}

// GetAll retrieves all vehicles.
func (r *VehicleRepository) GetAll(ctx context.Context) ([]*domain.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles ORDER BY id`
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, storeErr("list vehicles", err)
	}
	defer rows.Close()

	var vehicles []*domain.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, storeErr("scan vehicle", err)
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, storeErr("list vehicles", rows.Err())
}

// Update replaces the whole vehicle record, inserting it when absent.
func (r *VehicleRepository) Update(ctx context.Context, v *domain.Vehicle) error {
	query := `
		INSERT INTO vehicles (` + vehicleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			password = EXCLUDED.password,
			start_lat = EXCLUDED.start_lat,
			start_lng = EXCLUDED.start_lng,
			live_lat = EXCLUDED.live_lat,
			live_lng = EXCLUDED.live_lng,
			rider_ids = EXCLUDED.rider_ids`

	_, err := r.q.ExecContext(ctx, query,
		v.ID,
		v.Name,
		v.Password,
		v.Start.Lat,
		v.Start.Lng,
		v.Live.Lat,
		v.Live.Lng,
		pq.Array(v.RiderIDs),
	)
	return storeErr("update vehicle", err)
}
