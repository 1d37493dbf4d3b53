package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"schoolbus/internal/domain"
	"schoolbus/internal/repository"
)

// GuardianRepository implements repository.GuardianRepository using PostgreSQL.
type GuardianRepository struct {
	q Querier
}

var _ repository.GuardianRepository = (*GuardianRepository)(nil)

// NewGuardianRepository creates a new GuardianRepository.
func NewGuardianRepository(db *sql.DB) *GuardianRepository {
	return &GuardianRepository{q: db}
}

func scanGuardian(s rowScanner) (*domain.Guardian, error) {
	var (
		g      domain.Guardian
		riders pq.StringArray
	)
	if err := s.Scan(&g.ID, &g.Name, &g.Password, &riders); err != nil {
		return nil, err
	}
	g.RiderIDs = []string(riders)
	return &g, nil
}

// GetByID retrieves a guardian by ID.
func (r *GuardianRepository) GetByID(ctx context.Context, id string) (*domain.Guardian, error) {
	query := `SELECT id, name, password, rider_ids FROM guardians WHERE id = $1`
	g, err := scanGuardian(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, storeErr("get guardian", err)
	}
	return g, nil
}

// GetAll retrieves all guardians.
func (r *GuardianRepository) GetAll(ctx context.Context) ([]*domain.Guardian, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, name, password, rider_ids FROM guardians ORDER BY id`)
	if err != nil {
		return nil, storeErr("list guardians", err)
	}
	defer rows.Close()

	var guardians []*domain.Guardian
	for rows.Next() {
		g, err := scanGuardian(rows)
		if err != nil {
			return nil, storeErr("scan guardian", err)
		}
		guardians = append(guardians, g)
	}
	return guardians, storeErr("list guardians", rows.Err())
}

// Update replaces the whole guardian record, inserting it when absent.
func (r *GuardianRepository) Update(ctx context.Context, g *domain.Guardian) error {
	query := `
		INSERT INTO guardians (id, name, password, rider_ids)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			password = EXCLUDED.password,
			rider_ids = EXCLUDED.rider_ids`
	_, err := r.q.ExecContext(ctx, query, g.ID, g.Name, g.Password, pq.Array(g.RiderIDs))
	return storeErr("update guardian", err)
}
