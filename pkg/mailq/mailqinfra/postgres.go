package mailqinfra

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Abraxas-365/mailroom/pkg/kernel"
	"github.com/Abraxas-365/mailroom/pkg/mailq"
	"github.com/Abraxas-365/mailroom/pkg/notifx"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresRepository is the mailq.Repository backed by the email_queue
// table.
type PostgresRepository struct {
	db *sqlx.DB
}

var _ mailq.Repository = (*PostgresRepository)(nil)

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const messageColumns = `
	id, recipient, subject_template, body_template, text_template,
	template_variables, metadata, status, attempts, error_message,
	next_attempt_at, claimed_until, last_attempt_at, sent_at,
	provider, sender, provider_message_id, created_at, updated_at`

func (r *PostgresRepository) Enqueue(ctx context.Context, n mailq.NewMessage) (kernel.MessageID, error) {
	if err := n.Validate(); err != nil {
		return "", err
	}

	row, err := toPersistence(n.Build(time.Now().UTC()))
	if err != nil {
		return "", err
	}
	query := `
		INSERT INTO email_queue (
			id, recipient, subject_template, body_template, text_template,
			template_variables, metadata, status, attempts, next_attempt_at,
			created_at, updated_at
		) VALUES (
			:id, :recipient, :subject_template, :body_template, :text_template,
			:template_variables, :metadata, :status, :attempts, :next_attempt_at,
			:created_at, :updated_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23514" { // check_violation
			return "", mailq.StoreFailed("enqueue", err).WithDetail("constraint", pqErr.Constraint)
		}
		return "", mailq.StoreFailed("enqueue", err)
	}
	return kernel.MessageID(row.ID), nil
}

func (r *PostgresRepository) FetchDue(ctx context.Context, limit int) ([]*mailq.Message, error) {
	var rows []messagePersistence
	query := `SELECT ` + messageColumns + `
		FROM email_queue
		WHERE status = 'pending' AND next_attempt_at <= NOW()
		ORDER BY next_attempt_at, created_at
		LIMIT $1`
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, mailq.StoreFailed("fetch_due", err)
	}
	return toDomainSlice(rows)
}

func (r *PostgresRepository) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*mailq.Message, error) {
	var rows []messagePersistence
	query := `
		UPDATE email_queue SET
			status = 'in_progress',
			claimed_until = NOW() + make_interval(secs => $2),
			updated_at = NOW()
		WHERE id IN (
			SELECT id FROM email_queue
			WHERE (status = 'pending' AND next_attempt_at <= NOW())
			   OR (status = 'in_progress' AND claimed_until <= NOW())
			ORDER BY next_attempt_at, created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + messageColumns
	if err := r.db.SelectContext(ctx, &rows, query, limit, lease.Seconds()); err != nil {
		return nil, mailq.StoreFailed("claim_due", err)
	}

	msgs, err := toDomainSlice(rows)
	if err != nil {
		return nil, err
	}
	// RETURNING does not preserve the subquery order.
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].NextAttemptAt.Equal(msgs[j].NextAttemptAt) {
			return msgs[i].NextAttemptAt.Before(msgs[j].NextAttemptAt)
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}

func (r *PostgresRepository) Release(ctx context.Context, claims []mailq.Claim) error {
	var (
		ids    []string
		leases []string
	)
	for _, c := range claims {
		if c.Claimed() && c.ID.Valid() {
			ids = append(ids, c.ID.String())
			leases = append(leases, c.Until.Format(time.RFC3339Nano))
		}
	}
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE email_queue q SET status = 'pending', claimed_until = NULL, updated_at = NOW()
		FROM unnest($1::uuid[], $2::timestamptz[]) AS c(id, claimed_until)
		WHERE q.id = c.id AND q.status = 'in_progress' AND q.claimed_until = c.claimed_until`
	if _, err := r.db.ExecContext(ctx, query, pq.Array(ids), pq.Array(leases)); err != nil {
		return mailq.StoreFailed("release", err)
	}
	return nil
}

// claimGuard is appended to the WHERE clause of every attempt write. $1 is
// the id and $2 the lease, NULL for an unclaimed write.
const claimGuard = `
		AND ((CAST($2 AS timestamptz) IS NULL AND status = 'pending')
		  OR (status = 'in_progress' AND claimed_until = $2))`

func claimArg(c mailq.Claim) any {
	if !c.Claimed() {
		return nil
	}
	return c.Until
}

func (r *PostgresRepository) MarkSent(ctx context.Context, c mailq.Claim, res notifx.DeliveryResult) error {
	query := `
		UPDATE email_queue SET
			status = 'sent',
			attempts = attempts + 1,
			error_message = NULL,
			claimed_until = NULL,
			sent_at = NOW(),
			last_attempt_at = NOW(),
			provider = $3,
			sender = $4,
			provider_message_id = $5,
			updated_at = NOW()
		WHERE id = $1` + claimGuard
	return r.execClaimed(ctx, "mark_sent", c, query, res.Provider, res.Sender, res.MessageID)
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, c mailq.Claim, errMsg string, next time.Time) error {
	query := `
		UPDATE email_queue SET
			status = 'failed',
			attempts = attempts + 1,
			error_message = $3,
			claimed_until = NULL,
			last_attempt_at = NOW(),
			next_attempt_at = $4,
			updated_at = NOW()
		WHERE id = $1` + claimGuard
	return r.execClaimed(ctx, "mark_failed", c, query, errMsg, next)
}

func (r *PostgresRepository) Requeue(ctx context.Context, c mailq.Claim, errMsg string, next time.Time) error {
	query := `
		UPDATE email_queue SET
			status = 'pending',
			attempts = attempts + 1,
			error_message = $3,
			claimed_until = NULL,
			last_attempt_at = NOW(),
			next_attempt_at = $4,
			updated_at = NOW()
		WHERE id = $1` + claimGuard
	return r.execClaimed(ctx, "requeue", c, query, errMsg, next)
}

// execClaimed runs a guarded single-row write. When no row matched it tells
// an unknown id apart from a claim that no longer holds.
func (r *PostgresRepository) execClaimed(ctx context.Context, op string, c mailq.Claim, query string, args ...any) error {
	if !c.ID.Valid() {
		return mailq.NotFound(c.ID.String())
	}

	args = append([]any{c.ID.String(), claimArg(c)}, args...)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mailq.StoreFailed(op, err).WithDetail("id", c.ID.String())
	}
	n, err := result.RowsAffected()
	if err != nil {
		return mailq.StoreFailed(op, err).WithDetail("id", c.ID.String())
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM email_queue WHERE id = $1)`, c.ID.String()); err != nil {
		return mailq.StoreFailed(op, err).WithDetail("id", c.ID.String())
	}
	if !exists {
		return mailq.NotFound(c.ID.String())
	}
	return mailq.ClaimLost(c)
}

func (r *PostgresRepository) ResetFailed(ctx context.Context) (int, error) {
	query := `
		UPDATE email_queue SET
			status = 'pending',
			attempts = 0,
			error_message = NULL,
			next_attempt_at = NOW(),
			updated_at = NOW()
		WHERE status = 'failed'`
	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, mailq.StoreFailed("reset_failed", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, mailq.StoreFailed("reset_failed", err)
	}
	return int(n), nil
}

func (r *PostgresRepository) Get(ctx context.Context, id kernel.MessageID) (*mailq.Message, error) {
	if !id.Valid() {
		return nil, mailq.NotFound(id.String())
	}

	var row messagePersistence
	query := `SELECT ` + messageColumns + ` FROM email_queue WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, mailq.NotFound(id.String())
		}
		return nil, mailq.StoreFailed("get", err)
	}
	return toDomain(row)
}

func (r *PostgresRepository) List(ctx context.Context, f mailq.ListFilter, opts kernel.PaginationOptions) (kernel.Paginated[*mailq.Message], error) {
	opts = opts.Normalize()

	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Recipient != "" {
		args = append(args, f.Recipient)
		where = append(where, fmt.Sprintf("LOWER(recipient) = LOWER($%d)", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM email_queue`+clause, args...); err != nil {
		return kernel.Paginated[*mailq.Message]{}, mailq.StoreFailed("list", err)
	}

	var rows []messagePersistence
	query := fmt.Sprintf(`SELECT %s FROM email_queue%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		messageColumns, clause, len(args)+1, len(args)+2)
	if err := r.db.SelectContext(ctx, &rows, query, append(args, opts.PageSize, opts.Offset())...); err != nil {
		return kernel.Paginated[*mailq.Message]{}, mailq.StoreFailed("list", err)
	}

	items, err := toDomainSlice(rows)
	if err != nil {
		return kernel.Paginated[*mailq.Message]{}, err
	}
	return kernel.NewPaginated(items, opts.Page, opts.PageSize, total), nil
}

func (r *PostgresRepository) Stats(ctx context.Context) (mailq.Stats, error) {
	var counts []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &counts, `SELECT status, COUNT(*) AS count FROM email_queue GROUP BY status`); err != nil {
		return mailq.Stats{}, mailq.StoreFailed("stats", err)
	}

	var s mailq.Stats
	for _, c := range counts {
		switch mailq.Status(c.Status) {
		case mailq.StatusPending:
			s.Pending = c.Count
		case mailq.StatusInProgress:
			s.InProgress = c.Count
		case mailq.StatusSent:
			s.Sent = c.Count
		case mailq.StatusFailed:
			s.Failed = c.Count
		}
	}

	var oldest sql.NullTime
	if err := r.db.GetContext(ctx, &oldest, `SELECT MIN(next_attempt_at) FROM email_queue WHERE status = 'pending'`); err != nil {
		return mailq.Stats{}, mailq.StoreFailed("stats", err)
	}
	if oldest.Valid {
		t := oldest.Time
		s.OldestPendingAt = &t
	}
	return s, nil
}

// jsonColumn stores a value as jsonb. It is bound as text because lib/pq
// encodes []byte parameters as bytea.
type jsonColumn []byte

func (j jsonColumn) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "{}", nil
	}
	return string(j), nil
}

func (j *jsonColumn) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = []byte(v)
	default:
		return fmt.Errorf("jsonColumn: unsupported type %T", src)
	}
	return nil
}

type messagePersistence struct {
	ID                string         `db:"id"`
	Recipient         string         `db:"recipient"`
	SubjectTemplate   string         `db:"subject_template"`
	BodyTemplate      string         `db:"body_template"`
	TextTemplate      sql.NullString `db:"text_template"`
	TemplateVariables jsonColumn     `db:"template_variables"`
	Metadata          jsonColumn     `db:"metadata"`
	Status            string         `db:"status"`
	Attempts          int            `db:"attempts"`
	ErrorMessage      *string        `db:"error_message"`
	NextAttemptAt     time.Time      `db:"next_attempt_at"`
	ClaimedUntil      *time.Time     `db:"claimed_until"`
	LastAttemptAt     *time.Time     `db:"last_attempt_at"`
	SentAt            *time.Time     `db:"sent_at"`
	Provider          sql.NullString `db:"provider"`
	Sender            sql.NullString `db:"sender"`
	ProviderMessageID sql.NullString `db:"provider_message_id"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

func toPersistence(m *mailq.Message) (messagePersistence, error) {
	vars, err := json.Marshal(m.TemplateVariables)
	if err != nil {
		return messagePersistence{}, mailq.StoreFailed("encode_variables", err).WithDetail("id", m.ID.String())
	}
	meta, err := json.Marshal(m.Metadata)
	if err != nil {
		return messagePersistence{}, mailq.StoreFailed("encode_metadata", err).WithDetail("id", m.ID.String())
	}

	return messagePersistence{
		ID:                m.ID.String(),
		Recipient:         m.Recipient,
		SubjectTemplate:   m.SubjectTemplate,
		BodyTemplate:      m.BodyTemplate,
		TextTemplate:      sql.NullString{String: m.TextTemplate, Valid: m.TextTemplate != ""},
		TemplateVariables: vars,
		Metadata:          meta,
		Status:            string(m.Status),
		Attempts:          m.Attempts,
		ErrorMessage:      m.ErrorMessage,
		NextAttemptAt:     m.NextAttemptAt,
		ClaimedUntil:      m.ClaimedUntil,
		LastAttemptAt:     m.LastAttemptAt,
		SentAt:            m.SentAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}, nil
}

func toDomain(p messagePersistence) (*mailq.Message, error) {
	m := &mailq.Message{
		ID:                kernel.MessageID(p.ID),
		Recipient:         p.Recipient,
		SubjectTemplate:   p.SubjectTemplate,
		BodyTemplate:      p.BodyTemplate,
		TextTemplate:      p.TextTemplate.String,
		TemplateVariables: map[string]any{},
		Status:            mailq.Status(p.Status),
		Attempts:          p.Attempts,
		ErrorMessage:      p.ErrorMessage,
		NextAttemptAt:     p.NextAttemptAt,
		ClaimedUntil:      p.ClaimedUntil,
		LastAttemptAt:     p.LastAttemptAt,
		SentAt:            p.SentAt,
		Provider:          p.Provider.String,
		Sender:            p.Sender.String,
		ProviderMessageID: p.ProviderMessageID.String,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}

	if len(p.TemplateVariables) > 0 {
		dec := json.NewDecoder(strings.NewReader(string(p.TemplateVariables)))
		dec.UseNumber()
		if err := dec.Decode(&m.TemplateVariables); err != nil {
			return nil, mailq.StoreFailed("decode_variables", err).WithDetail("id", p.ID)
		}
	}
	if len(p.Metadata) > 0 {
		if err := json.Unmarshal(p.Metadata, &m.Metadata); err != nil {
			return nil, mailq.StoreFailed("decode_metadata", err).WithDetail("id", p.ID)
		}
	}
	return m, nil
}

func toDomainSlice(rows []messagePersistence) ([]*mailq.Message, error) {
	out := make([]*mailq.Message, 0, len(rows))
	for _, row := range rows {
		m, err := toDomain(row)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
