package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const TypeExamSubmitted = "ExamSubmitted"

type Event struct {
	Seq       int64
	ID        string
	Type      string
	Key       string
	DataJSON  string
	CreatedAt int64
}

type EventRepo struct{ db *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// Append stores one event. Payload is marshalled to JSON.
func (r *EventRepo) Append(ctx context.Context, typ, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", typ, err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO event_log (id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		uuid.NewString(), typ, key, string(data), time.Now().Unix())
	return err
}

// byKey returns events for a natural key in append order.
func (r *EventRepo) byKey(ctx context.Context, key string) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, id, typ, key, data, created_at FROM event_log WHERE key=$1 ORDER BY seq ASC`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.ID, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AttemptKey is the natural key used for ExamSubmitted events.
func AttemptKey(studentID string, examID int64) string {
	return fmt.Sprintf("%s|%d", studentID, examID)
}
