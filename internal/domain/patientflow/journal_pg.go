package patientflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// journalPG appends every applied transition to transition_journal. It is
// write-only; the store never reads state back from it.
type journalPG struct{ db execer }

func NewJournalPG(pool *pgxpool.Pool) Publisher { return &journalPG{db: pool} }

func (j *journalPG) Publish(ctx context.Context, n Notification) error {
	var from *string
	if n.Event.From != "" {
		s := string(n.Event.From)
		from = &s
	}
	_, err := j.db.Exec(ctx, `
		INSERT INTO transition_journal (id, queue_id, patient_name, severity,
			from_status, to_status, rule, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		uuid.New(), n.Event.QueueID, n.Event.PatientName, n.Patient.Severity,
		from, string(n.Event.To), string(n.Event.Rule), n.Event.At)
	if err != nil {
		return fmt.Errorf("journal transition %s: %w", n.Event.QueueID, err)
	}
	return nil
}
