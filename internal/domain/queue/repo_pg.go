package queue

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type defRepoPG struct {
	pool *pgxpool.Pool
}

func NewDefinitionRepo(pool *pgxpool.Pool) DefinitionRepository {
	return &defRepoPG{pool: pool}
}

func (r *defRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const defCols = `id, branch_id, name, ordering_rule, disabled, created_at, updated_at`

func (r *defRepoPG) Create(ctx context.Context, def *Definition) error {
	def.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO queue_definitions (id, branch_id, name, ordering_rule, disabled)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		def.ID, def.BranchID, def.Name, def.Ordering, def.Disabled,
	).Scan(&def.CreatedAt, &def.UpdatedAt)
}

func (r *defRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Definition, error) {
	return scanDef(r.conn(ctx).QueryRow(ctx,
		`SELECT `+defCols+` FROM queue_definitions WHERE id = $1`, id))
}

func (r *defRepoPG) Update(ctx context.Context, def *Definition) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE queue_definitions
		SET name = $2, disabled = $3, updated_at = NOW()
		WHERE id = $1`,
		def.ID, def.Name, def.Disabled,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *defRepoPG) List(ctx context.Context, branchID uuid.UUID, includeDisabled bool) ([]*Definition, error) {
	query := `SELECT ` + defCols + ` FROM queue_definitions WHERE branch_id = $1`
	if !includeDisabled {
		query += ` AND NOT disabled`
	}
	query += ` ORDER BY name ASC`

	rows, err := r.conn(ctx).Query(ctx, query, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []*Definition
	for rows.Next() {
		var d Definition
		if err := rows.Scan(&d.ID, &d.BranchID, &d.Name, &d.Ordering, &d.Disabled, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		defs = append(defs, &d)
	}
	return defs, rows.Err()
}

func scanDef(row pgx.Row) (*Definition, error) {
	var d Definition
	err := row.Scan(&d.ID, &d.BranchID, &d.Name, &d.Ordering, &d.Disabled, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

type entryRepoPG struct {
	pool *pgxpool.Pool
}

func NewEntryRepo(pool *pgxpool.Pool) EntryRepository {
	return &entryRepoPG{pool: pool}
}

func (r *entryRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const entryCols = `id, queue_id, branch_id, patient_id, position, status, acuity,
	service_id, origin_session_id, joined_at, called_at, started_at, finished_at`

// Insert serializes position assignment per queue by locking the queue row.
// Racing joins for the same patient are caught twice: by the explicit active
// check under the lock, and by the partial unique index should the lock path
// ever be bypassed.
func (r *entryRepoPG) Insert(ctx context.Context, e *Entry, requestedPosition *int) error {
	run := func(ctx context.Context) error {
		q := r.conn(ctx)

		var disabled bool
		err := q.QueryRow(ctx,
			`SELECT disabled FROM queue_definitions WHERE id = $1 FOR UPDATE`,
			e.QueueID).Scan(&disabled)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if disabled {
			return ErrQueueDisabled
		}

		var hasActive bool
		if err := q.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM queue_entries
				WHERE queue_id = $1 AND patient_id = $2 AND status = ANY($3)
			)`,
			e.QueueID, e.PatientID, statusStrings(activeStatuses),
		).Scan(&hasActive); err != nil {
			return err
		}
		if hasActive {
			return ErrDuplicateActiveEntry
		}

		position := 0
		if requestedPosition != nil {
			var taken bool
			if err := q.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM queue_entries WHERE queue_id = $1 AND position = $2)`,
				e.QueueID, *requestedPosition,
			).Scan(&taken); err != nil {
				return err
			}
			if !taken {
				position = *requestedPosition
			}
		}
		if position == 0 {
			if err := q.QueryRow(ctx,
				`SELECT COALESCE(MAX(position), 0) + 1 FROM queue_entries WHERE queue_id = $1`,
				e.QueueID,
			).Scan(&position); err != nil {
				return err
			}
		}

		e.ID = uuid.New()
		e.Position = position
		e.Status = StatusWaiting

		err = q.QueryRow(ctx, `
			INSERT INTO queue_entries (id, queue_id, branch_id, patient_id, position, status,
				acuity, service_id, origin_session_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING joined_at`,
			e.ID, e.QueueID, e.BranchID, e.PatientID, e.Position, e.Status,
			e.Acuity, e.ServiceID, e.OriginSessionID,
		).Scan(&e.JoinedAt)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateActiveEntry
		}
		return err
	}

	if db.TxFromContext(ctx) != nil {
		return run(ctx)
	}
	return db.WithTx(ctx, r.pool, run)
}

func (r *entryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return scanEntry(r.conn(ctx).QueryRow(ctx,
		`SELECT `+entryCols+` FROM queue_entries WHERE id = $1`, id))
}

func (r *entryRepoPG) Transition(ctx context.Context, id uuid.UUID, from []EntryStatus, to EntryStatus) (*Entry, error) {
	var set string
	switch to {
	case StatusCalled:
		set = `status = $2, called_at = NOW()`
	case StatusInProgress:
		set = `status = $2, started_at = NOW()`
	case StatusDone, StatusCancelled:
		set = `status = $2, finished_at = NOW()`
	default:
		set = `status = $2`
	}

	e, err := scanEntry(r.conn(ctx).QueryRow(ctx,
		`UPDATE queue_entries SET `+set+` WHERE id = $1 AND status = ANY($3) RETURNING `+entryCols,
		id, string(to), statusStrings(from)))
	if errors.Is(err, ErrNotFound) {
		// No row matched: either the entry does not exist or its status
		// disallows the transition. Tell the two apart for the caller.
		if _, getErr := r.GetByID(ctx, id); errors.Is(getErr, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrInvalidTransition
	}
	return e, err
}

func (r *entryRepoPG) List(ctx context.Context, queueID uuid.UUID, strategy OrderingStrategy, includeTerminal bool, limit, offset int) ([]*Entry, int, error) {
	where := `queue_id = $1`
	if !includeTerminal {
		where += ` AND status NOT IN ('done', 'cancelled')`
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM queue_entries WHERE `+where, queueID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	// Entries still waiting to be seen sort ahead of in-progress and terminal
	// ones regardless of strategy.
	orderBy := `CASE WHEN status IN ('waiting', 'called') THEN 0 ELSE 1 END, ` + strategy.OrderBy()

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+entryCols+` FROM queue_entries WHERE `+where+
			` ORDER BY `+orderBy+` LIMIT $2 OFFSET $3`,
		queueID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.QueueID, &e.BranchID, &e.PatientID, &e.Position, &e.Status,
			&e.Acuity, &e.ServiceID, &e.OriginSessionID, &e.JoinedAt, &e.CalledAt, &e.StartedAt, &e.FinishedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, &e)
	}
	return entries, total, rows.Err()
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.QueueID, &e.BranchID, &e.PatientID, &e.Position, &e.Status,
		&e.Acuity, &e.ServiceID, &e.OriginSessionID, &e.JoinedAt, &e.CalledAt, &e.StartedAt, &e.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func statusStrings(statuses []EntryStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
