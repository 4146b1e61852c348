package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studyhall/courses/internal/model"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetAccount(ctx context.Context, email string) (model.Account, error) {
	var account model.Account
	row := s.pool.QueryRow(ctx, `
		SELECT email, password_hash, role, created_at, updated_at
		FROM accounts
		WHERE email = $1
	`, email)
	err := row.Scan(
		&account.Email,
		&account.PasswordHash,
		&account.Role,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, model.ErrNotFound
		}
		return model.Account{}, err
	}

	grants, err := s.getGrants(ctx, email)
	if err != nil {
		return model.Account{}, err
	}
	account.Grants = grants
	return account, nil
}

func (s *Store) CreateAccount(ctx context.Context, account model.Account) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, account.Email, account.PasswordHash, account.Role, account.CreatedAt, account.UpdatedAt)
	return err
}

func (s *Store) ListAccounts(ctx context.Context, limit int) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT email, password_hash, role, created_at, updated_at
		FROM accounts
		ORDER BY email
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		var account model.Account
		if err := rows.Scan(&account.Email, &account.PasswordHash, &account.Role, &account.CreatedAt, &account.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range accounts {
		grants, err := s.getGrants(ctx, accounts[i].Email)
		if err != nil {
			return nil, err
		}
		accounts[i].Grants = grants
	}
	return accounts, nil
}

func (s *Store) ReplaceGrants(ctx context.Context, email string, courseIDs []string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM grants WHERE account_email = $1`, email); err != nil {
		return err
	}
	for _, courseID := range courseIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO grants (account_email, course_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, email, courseID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) getGrants(ctx context.Context, email string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT course_id FROM grants WHERE account_email = $1 ORDER BY course_id
	`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []string
	for rows.Next() {
		var courseID string
		if err := rows.Scan(&courseID); err != nil {
			return nil, err
		}
		grants = append(grants, courseID)
	}
	return grants, rows.Err()
}

func (s *Store) CreateCourse(ctx context.Context, course model.Course) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO courses (id, display_name, topics, created_at)
		VALUES ($1, $2, $3, $4)
	`, course.ID, course.DisplayName, course.Topics, course.CreatedAt)
	return err
}

func (s *Store) GetCourse(ctx context.Context, courseID string) (model.Course, error) {
	var course model.Course
	row := s.pool.QueryRow(ctx, `
		SELECT id, display_name, topics, created_at
		FROM courses
		WHERE id = $1
	`, courseID)
	err := row.Scan(&course.ID, &course.DisplayName, &course.Topics, &course.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Course{}, model.ErrNotFound
	}
	return course, err
}

func (s *Store) ListCourses(ctx context.Context) ([]model.Course, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, display_name, topics, created_at
		FROM courses
		ORDER BY display_name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []model.Course
	for rows.Next() {
		var course model.Course
		if err := rows.Scan(&course.ID, &course.DisplayName, &course.Topics, &course.CreatedAt); err != nil {
			return nil, err
		}
		courses = append(courses, course)
	}
	return courses, rows.Err()
}

type CourseUpdate struct {
	DisplayName *string
	Topics      *string
}

func (s *Store) UpdateCourse(ctx context.Context, courseID string, update CourseUpdate) (model.Course, error) {
	if update.DisplayName != nil {
		if _, err := s.pool.Exec(ctx, `UPDATE courses SET display_name = $1 WHERE id = $2`, *update.DisplayName, courseID); err != nil {
			return model.Course{}, err
		}
	}
	if update.Topics != nil {
		if _, err := s.pool.Exec(ctx, `UPDATE courses SET topics = $1 WHERE id = $2`, *update.Topics, courseID); err != nil {
			return model.Course{}, err
		}
	}
	return s.GetCourse(ctx, courseID)
}

func (s *Store) GetLessons(ctx context.Context, courseID string) ([]model.Lesson, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT course_id, lesson_number, video_ref, pdf_ref
		FROM lessons
		WHERE course_id = $1
		ORDER BY lesson_number
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lessons []model.Lesson
	for rows.Next() {
		var lesson model.Lesson
		if err := rows.Scan(&lesson.CourseID, &lesson.Number, &lesson.VideoRef, &lesson.PDFRef); err != nil {
			return nil, err
		}
		lessons = append(lessons, lesson)
	}
	return lessons, rows.Err()
}

func (s *Store) SetLessonContent(ctx context.Context, courseID string, lessonNumber int, kind, ref string) error {
	column := "video_ref"
	if kind == "pdf" {
		column = "pdf_ref"
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO lessons (course_id, lesson_number, `+column+`)
		VALUES ($1, $2, $3)
		ON CONFLICT (course_id, lesson_number) DO UPDATE SET `+column+` = EXCLUDED.`+column+`
	`, courseID, lessonNumber, ref)
	return err
}

func (s *Store) GetAnswerKey(ctx context.Context, courseID string, lessonNumber int) ([]model.QuizQuestion, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT question, answer
		FROM quiz_questions
		WHERE course_id = $1 AND lesson_number = $2
		ORDER BY position
	`, courseID, lessonNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var key []model.QuizQuestion
	for rows.Next() {
		var question model.QuizQuestion
		if err := rows.Scan(&question.Question, &question.Answer); err != nil {
			return nil, err
		}
		key = append(key, question)
	}
	return key, rows.Err()
}

func (s *Store) ReplaceAnswerKey(ctx context.Context, courseID string, lessonNumber int, key []model.QuizQuestion) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		DELETE FROM quiz_questions WHERE course_id = $1 AND lesson_number = $2
	`, courseID, lessonNumber); err != nil {
		return err
	}
	for position, question := range key {
		if _, err := tx.Exec(ctx, `
			INSERT INTO quiz_questions (course_id, lesson_number, position, question, answer)
			VALUES ($1, $2, $3, $4, $5)
		`, courseID, lessonNumber, position+1, question.Question, question.Answer); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO lessons (course_id, lesson_number)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, courseID, lessonNumber); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// EnsureProgress creates the cursor lazily at 1 and returns its current
// value.
func (s *Store) EnsureProgress(ctx context.Context, email, courseID string) (int, error) {
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO progress (account_email, course_id, unlocked_up_to)
		VALUES ($1, $2, 1)
		ON CONFLICT DO NOTHING
	`, email, courseID); err != nil {
		return 0, err
	}

	var unlockedUpTo int
	row := s.pool.QueryRow(ctx, `
		SELECT unlocked_up_to FROM progress WHERE account_email = $1 AND course_id = $2
	`, email, courseID)
	if err := row.Scan(&unlockedUpTo); err != nil {
		return 0, err
	}
	return unlockedUpTo, nil
}

// AdvanceProgress increments the cursor by one iff it still equals from.
// Returns false when the precondition moved, which makes replays of the
// same submission no-ops.
func (s *Store) AdvanceProgress(ctx context.Context, email, courseID string, from int) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE progress
		SET unlocked_up_to = unlocked_up_to + 1
		WHERE account_email = $1 AND course_id = $2 AND unlocked_up_to = $3
	`, email, courseID, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AddFeedback(ctx context.Context, feedback model.Feedback) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO feedback (id, course_id, body, created_at)
		VALUES ($1, $2, $3, $4)
	`, feedback.ID, feedback.CourseID, feedback.Body, feedback.CreatedAt)
	return err
}

func (s *Store) ListFeedback(ctx context.Context, courseID string) ([]model.Feedback, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, course_id, body, created_at
		FROM feedback
		WHERE course_id = $1
		ORDER BY created_at
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.Feedback
	for rows.Next() {
		var entry model.Feedback
		if err := rows.Scan(&entry.ID, &entry.CourseID, &entry.Body, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
