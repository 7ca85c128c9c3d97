package attemptsbun

import (
	"context"
	"time"

	"github.com/goliatone/go-nbexport/nbexport"
	"github.com/uptrace/bun"
)

// DefaultSession scopes records when no explicit session is configured.
const DefaultSession = "global"

// Log stores attempt telemetry in a Bun-backed database. Each Log is scoped
// to one session; engines sharing a database stay isolated through the
// session column.
type Log struct {
	DB      *bun.DB
	Session string
	Now     func() time.Time
}

var _ nbexport.AttemptStore = (*Log)(nil)

// NewLog creates a Bun-backed attempt log scoped to session.
func NewLog(db *bun.DB, session string) *Log {
	if session == "" {
		session = DefaultSession
	}
	return &Log{DB: db, Session: session, Now: time.Now}
}

// ForSession derives a log over the same database scoped to another session.
func (l *Log) ForSession(session string) *Log {
	if l == nil {
		return nil
	}
	if session == "" {
		session = DefaultSession
	}
	return &Log{DB: l.DB, Session: session, Now: l.Now}
}

// Record appends one attempt entry.
func (l *Log) Record(ctx context.Context, rec nbexport.AttemptRecord) error {
	if l == nil || l.DB == nil {
		return nbexport.NewError(nbexport.KindNotImpl, "attempt database not configured", nil)
	}

	model := attemptModel{
		Session:    l.session(),
		Backend:    rec.Backend,
		Status:     string(rec.Status),
		Note:       rec.Note,
		RecordedAt: l.now(),
	}
	_, err := l.DB.NewInsert().Model(&model).Exec(ctx)
	return err
}

// Snapshot returns the session's records in insertion order.
func (l *Log) Snapshot(ctx context.Context) ([]nbexport.AttemptRecord, error) {
	if l == nil || l.DB == nil {
		return nil, nbexport.NewError(nbexport.KindNotImpl, "attempt database not configured", nil)
	}

	models := make([]attemptModel, 0)
	err := l.DB.NewSelect().Model(&models).
		Where("session = ?", l.session()).
		Order("position ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]nbexport.AttemptRecord, 0, len(models))
	for _, model := range models {
		records = append(records, nbexport.AttemptRecord{
			Backend: model.Backend,
			Status:  nbexport.AttemptStatus(model.Status),
			Note:    model.Note,
		})
	}
	return records, nil
}

// Clear removes the session's records. Clearing an empty log is not an
// error.
func (l *Log) Clear(ctx context.Context) error {
	if l == nil || l.DB == nil {
		return nbexport.NewError(nbexport.KindNotImpl, "attempt database not configured", nil)
	}
	_, err := l.DB.NewDelete().Model((*attemptModel)(nil)).
		Where("session = ?", l.session()).
		Exec(ctx)
	return err
}

// Init creates the attempts table when it does not exist yet.
func Init(ctx context.Context, db *bun.DB) error {
	if db == nil {
		return nbexport.NewError(nbexport.KindValidation, "attempt database is required", nil)
	}
	_, err := db.NewCreateTable().Model((*attemptModel)(nil)).IfNotExists().Exec(ctx)
	return err
}

type attemptModel struct {
	bun.BaseModel `bun:"table:render_attempts,alias:render_attempts"`

	Position   int64     `bun:"position,pk,autoincrement"`
	Session    string    `bun:"session,notnull"`
	Backend    string    `bun:"backend,notnull"`
	Status     string    `bun:"status,notnull"`
	Note       string    `bun:"note"`
	RecordedAt time.Time `bun:"recorded_at"`
}

func (l *Log) session() string {
	if l.Session == "" {
		return DefaultSession
	}
	return l.Session
}

func (l *Log) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}
