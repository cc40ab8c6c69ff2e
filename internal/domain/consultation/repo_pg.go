package consultation

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const consCols = `id, queue_entry_id, patient_id, branch_id, clinician_id,
	chief_complaint, diagnosis_notes, status, started_at, ended_at`

func (r *repoPG) Create(ctx context.Context, cons *Consultation) error {
	cons.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO consultations (id, queue_entry_id, patient_id, branch_id, clinician_id,
			chief_complaint, diagnosis_notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING started_at`,
		cons.ID, cons.QueueEntryID, cons.PatientID, cons.BranchID, cons.ClinicianID,
		cons.ChiefComplaint, cons.DiagnosisNotes, cons.Status,
	).Scan(&cons.StartedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		// unique queue_entry_id: someone else already opened a consultation
		// for this entry.
		return ErrEntryNotCallable
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	return scanCons(r.conn(ctx).QueryRow(ctx,
		`SELECT `+consCols+` FROM consultations WHERE id = $1`, id))
}

func (r *repoPG) GetByQueueEntry(ctx context.Context, entryID uuid.UUID) (*Consultation, error) {
	return scanCons(r.conn(ctx).QueryRow(ctx,
		`SELECT `+consCols+` FROM consultations WHERE queue_entry_id = $1`, entryID))
}

func (r *repoPG) UpdateNotes(ctx context.Context, id uuid.UUID, notes string) (*Consultation, error) {
	cons, err := scanCons(r.conn(ctx).QueryRow(ctx, `
		UPDATE consultations SET diagnosis_notes = $2
		WHERE id = $1 AND status = 'in_progress'
		RETURNING `+consCols,
		id, notes))
	if errors.Is(err, ErrNotFound) {
		return nil, r.closedOrMissing(ctx, id)
	}
	return cons, err
}

func (r *repoPG) Complete(ctx context.Context, id uuid.UUID, notes string) (*Consultation, error) {
	cons, err := scanCons(r.conn(ctx).QueryRow(ctx, `
		UPDATE consultations SET status = 'completed', diagnosis_notes = $2, ended_at = NOW()
		WHERE id = $1 AND status = 'in_progress'
		RETURNING `+consCols,
		id, notes))
	if errors.Is(err, ErrNotFound) {
		return nil, r.closedOrMissing(ctx, id)
	}
	return cons, err
}

// closedOrMissing disambiguates a failed CAS: the consultation either never
// existed or is already closed.
func (r *repoPG) closedOrMissing(ctx context.Context, id uuid.UUID) error {
	if _, err := r.GetByID(ctx, id); errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return ErrConsultationNotOpen
}

func (r *repoPG) ListByPatient(ctx context.Context, branchID, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM consultations WHERE branch_id = $1 AND patient_id = $2`,
		branchID, patientID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+consCols+` FROM consultations WHERE branch_id = $1 AND patient_id = $2
		 ORDER BY started_at DESC LIMIT $3 OFFSET $4`,
		branchID, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Consultation
	for rows.Next() {
		var c Consultation
		if err := rows.Scan(&c.ID, &c.QueueEntryID, &c.PatientID, &c.BranchID, &c.ClinicianID,
			&c.ChiefComplaint, &c.DiagnosisNotes, &c.Status, &c.StartedAt, &c.EndedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &c)
	}
	return out, total, rows.Err()
}

func scanCons(row pgx.Row) (*Consultation, error) {
	var c Consultation
	err := row.Scan(&c.ID, &c.QueueEntryID, &c.PatientID, &c.BranchID, &c.ClinicianID,
		&c.ChiefComplaint, &c.DiagnosisNotes, &c.Status, &c.StartedAt, &c.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
