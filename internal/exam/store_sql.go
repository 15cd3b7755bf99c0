package exam

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func persist(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

func (s *SQLStore) PutExam(ctx context.Context, e Exam, qs []Question) (Exam, []Question, error) {
	if err := ValidatePublish(e, qs); err != nil {
		return Exam{}, nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Exam{}, nil, persist("begin publish", err)
	}
	defer tx.Rollback()

	e.TotalQuestions = len(qs)
	if e.ID == 0 {
		err = tx.QueryRowContext(ctx, `INSERT INTO exams (exam_name,duration_minutes,total_questions,is_active,conducted_date,created_at)
			VALUES ($1,$2,$3,$4,$5,$6) RETURNING exam_id`,
			e.Name, e.DurationMinutes, e.TotalQuestions, e.Active, e.ConductedDate.Unix(), time.Now().Unix()).Scan(&e.ID)
	} else {
		_, err = tx.ExecContext(ctx, `INSERT INTO exams (exam_id,exam_name,duration_minutes,total_questions,is_active,conducted_date,created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (exam_id) DO UPDATE SET exam_name=EXCLUDED.exam_name, duration_minutes=EXCLUDED.duration_minutes,
				total_questions=EXCLUDED.total_questions, is_active=EXCLUDED.is_active, conducted_date=EXCLUDED.conducted_date`,
			e.ID, e.Name, e.DurationMinutes, e.TotalQuestions, e.Active, e.ConductedDate.Unix(), time.Now().Unix())
	}
	if err != nil {
		return Exam{}, nil, persist("put exam", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE exam_id=$1`, e.ID); err != nil {
		return Exam{}, nil, persist("clear questions", err)
	}
	out := make([]Question, len(qs))
	for i, q := range qs {
		q.ExamID = e.ID
		err := tx.QueryRowContext(ctx, `INSERT INTO questions
			(exam_id,question_number,subject,question_text,option_a,option_b,option_c,option_d,correct_option)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING question_id`,
			q.ExamID, q.Number, q.Subject, q.Text, q.OptionA, q.OptionB, q.OptionC, q.OptionD, string(q.Correct)).Scan(&q.ID)
		if err != nil {
			return Exam{}, nil, persist("put question", err)
		}
		out[i] = q
	}
	if err := tx.Commit(); err != nil {
		return Exam{}, nil, persist("commit publish", err)
	}
	return e, out, nil
}

const examColumns = `exam_id,exam_name,duration_minutes,total_questions,is_active,conducted_date`

func scanExam(sc interface{ Scan(...any) error }) (Exam, error) {
	var e Exam
	var conducted int64
	if err := sc.Scan(&e.ID, &e.Name, &e.DurationMinutes, &e.TotalQuestions, &e.Active, &conducted); err != nil {
		return Exam{}, err
	}
	e.ConductedDate = time.Unix(conducted, 0).UTC()
	return e, nil
}

func (s *SQLStore) GetExam(ctx context.Context, id int64) (Exam, error) {
	e, err := scanExam(s.db.QueryRowContext(ctx, `SELECT `+examColumns+` FROM exams WHERE exam_id=$1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Exam{}, ErrExamNotFound
		}
		return Exam{}, persist("get exam", err)
	}
	return e, nil
}

func (s *SQLStore) ListActiveExams(ctx context.Context) ([]Exam, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+examColumns+` FROM exams
		WHERE is_active=$1 ORDER BY conducted_date DESC, exam_id DESC`, true)
	if err != nil {
		return nil, persist("list exams", err)
	}
	defer rows.Close()
	var out []Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, persist("scan exam", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, persist("list exams", err)
	}
	return out, nil
}

func (s *SQLStore) Questions(ctx context.Context, examID int64) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT question_id,exam_id,question_number,subject,question_text,
		option_a,option_b,option_c,option_d,correct_option
		FROM questions WHERE exam_id=$1 ORDER BY question_number ASC`, examID)
	if err != nil {
		return nil, persist("list questions", err)
	}
	defer rows.Close()
	var out []Question
	for rows.Next() {
		var q Question
		var correct string
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Number, &q.Subject, &q.Text,
			&q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD, &correct); err != nil {
			return nil, persist("scan question", err)
		}
		q.Correct = Option(correct)
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, persist("list questions", err)
	}
	return out, nil
}

func (s *SQLStore) AnswerKey(ctx context.Context, examID int64) (AnswerKey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT question_id, correct_option FROM questions WHERE exam_id=$1`, examID)
	if err != nil {
		return nil, persist("fetch answer key", err)
	}
	defer rows.Close()
	key := AnswerKey{}
	for rows.Next() {
		var id int64
		var correct string
		if err := rows.Scan(&id, &correct); err != nil {
			return nil, persist("scan answer key", err)
		}
		key[id] = Option(correct)
	}
	if err := rows.Err(); err != nil {
		return nil, persist("fetch answer key", err)
	}
	return key, nil
}

const upsertResponse = `INSERT INTO student_responses (user_id,question_id,selected_option,is_correct,updated_at)
	VALUES ($1,$2,$3,$4,$5)
	ON CONFLICT (user_id,question_id) DO UPDATE SET selected_option=EXCLUDED.selected_option,
		is_correct=EXCLUDED.is_correct, updated_at=EXCLUDED.updated_at`

func responseArgs(r StudentResponse, now int64) []any {
	var sel sql.NullString
	if r.Selected != nil {
		sel = sql.NullString{String: string(*r.Selected), Valid: true}
	}
	var ok sql.NullBool
	if r.IsCorrect != nil {
		ok = sql.NullBool{Bool: *r.IsCorrect, Valid: true}
	}
	return []any{r.StudentID, r.QuestionID, sel, ok, now}
}

func (s *SQLStore) PutResponse(ctx context.Context, r StudentResponse) error {
	if _, err := s.db.ExecContext(ctx, upsertResponse, responseArgs(r, time.Now().Unix())...); err != nil {
		return persist("put response", err)
	}
	return nil
}

// PutResponses writes the whole batch in one transaction.
func (s *SQLStore) PutResponses(ctx context.Context, rs []StudentResponse) error {
	if len(rs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persist("begin responses", err)
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, upsertResponse)
	if err != nil {
		return persist("prepare responses", err)
	}
	defer stmt.Close()
	now := time.Now().Unix()
	for _, r := range rs {
		if _, err := stmt.ExecContext(ctx, responseArgs(r, now)...); err != nil {
			return persist("put responses", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return persist("commit responses", err)
	}
	return nil
}

func (s *SQLStore) ResponsesFor(ctx context.Context, studentID string, questionIDs []int64) (map[int64]StudentResponse, error) {
	out := make(map[int64]StudentResponse, len(questionIDs))
	if len(questionIDs) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(questionIDs)+1)
	args = append(args, studentID)
	ph := make([]string, len(questionIDs))
	for i, id := range questionIDs {
		args = append(args, id)
		ph[i] = fmt.Sprintf("$%d", i+2)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT question_id,selected_option,is_correct FROM student_responses
		WHERE user_id=$1 AND question_id IN (`+strings.Join(ph, ",")+`)`, args...)
	if err != nil {
		return nil, persist("read responses", err)
	}
	defer rows.Close()
	for rows.Next() {
		r := StudentResponse{StudentID: studentID}
		var sel sql.NullString
		var ok sql.NullBool
		if err := rows.Scan(&r.QuestionID, &sel, &ok); err != nil {
			return nil, persist("scan response", err)
		}
		if sel.Valid && sel.String != "" {
			o := Option(sel.String)
			r.Selected = &o
		}
		if ok.Valid {
			b := ok.Bool
			r.IsCorrect = &b
		}
		out[r.QuestionID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, persist("read responses", err)
	}
	return out, nil
}

func (s *SQLStore) PutAttempt(ctx context.Context, a ExamAttempt) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO exam_attempts
		(user_id,exam_id,score,total_questions,correct_answers,wrong_answers,unanswered,started_at,submitted_at,time_taken_minutes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (user_id,exam_id) DO UPDATE SET score=EXCLUDED.score, total_questions=EXCLUDED.total_questions,
			correct_answers=EXCLUDED.correct_answers, wrong_answers=EXCLUDED.wrong_answers, unanswered=EXCLUDED.unanswered,
			started_at=EXCLUDED.started_at, submitted_at=EXCLUDED.submitted_at, time_taken_minutes=EXCLUDED.time_taken_minutes`,
		a.StudentID, a.ExamID, a.Score, a.TotalQuestions, a.CorrectAnswers, a.WrongAnswers, a.Unanswered,
		a.StartedAt.Unix(), a.SubmittedAt.Unix(), a.TimeTakenMinutes)
	if err != nil {
		return persist("put attempt", err)
	}
	return nil
}

const attemptColumns = `user_id,exam_id,score,total_questions,correct_answers,wrong_answers,unanswered,
	started_at,submitted_at,time_taken_minutes`

func scanAttempt(sc interface{ Scan(...any) error }) (ExamAttempt, error) {
	var a ExamAttempt
	var started, submitted int64
	if err := sc.Scan(&a.StudentID, &a.ExamID, &a.Score, &a.TotalQuestions, &a.CorrectAnswers,
		&a.WrongAnswers, &a.Unanswered, &started, &submitted, &a.TimeTakenMinutes); err != nil {
		return ExamAttempt{}, err
	}
	a.StartedAt = time.Unix(started, 0).UTC()
	a.SubmittedAt = time.Unix(submitted, 0).UTC()
	return a, nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, studentID string, examID int64) (ExamAttempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM exam_attempts
		WHERE user_id=$1 AND exam_id=$2`, studentID, examID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ExamAttempt{}, ErrAttemptNotFound
		}
		return ExamAttempt{}, persist("get attempt", err)
	}
	return a, nil
}

func (s *SQLStore) ListAttemptsForStudent(ctx context.Context, studentID string) ([]ExamAttempt, error) {
	return s.listAttempts(ctx, `WHERE user_id=$1 ORDER BY exam_id ASC`, studentID)
}

func (s *SQLStore) ListAttemptsForExam(ctx context.Context, examID int64) ([]ExamAttempt, error) {
	return s.listAttempts(ctx, `WHERE exam_id=$1 ORDER BY score DESC, submitted_at ASC`, examID)
}

func (s *SQLStore) listAttempts(ctx context.Context, where string, arg any) ([]ExamAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+attemptColumns+` FROM exam_attempts `+where, arg)
	if err != nil {
		return nil, persist("list attempts", err)
	}
	defer rows.Close()
	var out []ExamAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, persist("scan attempt", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, persist("list attempts", err)
	}
	return out, nil
}
