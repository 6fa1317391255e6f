package repository

import (
	"context"
	"database/sql"

	interfaces "lab-registration/internal/interfaces/infrastructure"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var _ interfaces.OccupancyReader = (*OccupancyReader)(nil)

const sessionOccupancyQuery = `
SELECT session_date,
       COUNT(*)               AS slots,
       SUM(max_students)      AS capacity,
       SUM(current_count)     AS registered
FROM time_slots
WHERE lab_session_id = $1
GROUP BY session_date
ORDER BY session_date`

// OccupancyReader runs reporting queries through sqlx on the gorm connection pool
type OccupancyReader struct {
	db *sqlx.DB
}

func NewOccupancyReader(sqlDB *sql.DB) *OccupancyReader {
	return &OccupancyReader{db: sqlx.NewDb(sqlDB, "pgx")}
}

func (r *OccupancyReader) SessionOccupancy(ctx context.Context, sessionID uuid.UUID) ([]interfaces.OccupancyRow, error) {
	rows := []interfaces.OccupancyRow{}
	if err := r.db.SelectContext(ctx, &rows, sessionOccupancyQuery, sessionID); err != nil {
		return nil, err
	}
	return rows, nil
}
