package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/portalchat/internal/models"
)

// DirectoryStore reads the portal's employees table. The chat core never
// writes to it.
type DirectoryStore struct {
	pool *pgxpool.Pool
}

func NewDirectoryStore(pool *pgxpool.Pool) *DirectoryStore {
	return &DirectoryStore{pool: pool}
}

// Ids leave the directory lower-cased so they compare exactly with the
// normalized ids carried by tokens and frames.
func (s *DirectoryStore) GetEmployee(ctx context.Context, userID string) (*models.Employee, error) {
	query := `
		SELECT lower(id), name, department, team
		FROM employees
		WHERE lower(id) = $1 AND active`

	var e models.Employee
	err := s.pool.QueryRow(ctx, query, models.NormalizeUserID(userID)).Scan(&e.ID, &e.Name, &e.Department, &e.Team)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return &e, nil
}

func (s *DirectoryStore) ListEmployees(ctx context.Context) ([]models.Employee, error) {
	rows, err := s.pool.Query(ctx, `SELECT lower(id), name, department, team FROM employees WHERE active ORDER BY lower(id)`)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()

	employees := make([]models.Employee, 0)
	for rows.Next() {
		var e models.Employee
		if err := rows.Scan(&e.ID, &e.Name, &e.Department, &e.Team); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate employees: %w", err)
	}
	return employees, nil
}
