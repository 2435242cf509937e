package trackinginfra

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/Abraxas-365/mailroom/pkg/kernel"
	"github.com/Abraxas-365/mailroom/pkg/tracking"
	"github.com/jmoiron/sqlx"
)

// PostgresRepository appends to the email_tracking table.
type PostgresRepository struct {
	db *sqlx.DB
}

var _ tracking.Repository = (*PostgresRepository)(nil)

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, ev tracking.Event) error {
	data, err := json.Marshal(ev.EventData)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO email_tracking (id, email_id, event_type, event_data, user_agent, ip_address, occurred_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7)`
	_, err = r.db.ExecContext(ctx, query,
		ev.ID.String(), ev.EmailID, string(ev.EventType), string(data),
		ev.UserAgent, ev.IPAddress, ev.OccurredAt,
	)
	return err
}

func (r *PostgresRepository) ListByEmail(ctx context.Context, emailID string) ([]tracking.Event, error) {
	var rows []eventPersistence
	query := `
		SELECT id, email_id, event_type, event_data, user_agent, ip_address, occurred_at
		FROM email_tracking
		WHERE email_id = $1
		ORDER BY occurred_at`
	if err := r.db.SelectContext(ctx, &rows, query, emailID); err != nil {
		return nil, err
	}

	out := make([]tracking.Event, 0, len(rows))
	for _, row := range rows {
		ev := tracking.Event{
			ID:         kernel.EventID(row.ID),
			EmailID:    row.EmailID,
			EventType:  tracking.EventType(row.EventType),
			EventData:  map[string]string{},
			UserAgent:  row.UserAgent.String,
			IPAddress:  row.IPAddress.String,
			OccurredAt: row.OccurredAt,
		}
		if len(row.EventData) > 0 {
			if err := json.Unmarshal(row.EventData, &ev.EventData); err != nil {
				return nil, err
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

type eventPersistence struct {
	ID         string         `db:"id"`
	EmailID    string         `db:"email_id"`
	EventType  string         `db:"event_type"`
	EventData  []byte         `db:"event_data"`
	UserAgent  sql.NullString `db:"user_agent"`
	IPAddress  sql.NullString `db:"ip_address"`
	OccurredAt time.Time      `db:"occurred_at"`
}
