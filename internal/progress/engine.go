// Package progress owns the per-account, per-course lesson cursor and the
// rules for moving it: a lesson becomes visible only when every lesson
// before it has had its quiz passed.
package progress

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"studyhall/courses/internal/access"
	"studyhall/courses/internal/model"
	"studyhall/courses/internal/quiz"
)

var (
	ErrLessonLocked       = errors.New("lesson locked")
	ErrNoSuchLesson       = errors.New("no such lesson")
	ErrNoQuizDefined      = errors.New("no quiz defined")
	ErrCourseNotCompleted = errors.New("course not completed")
)

// Catalog is the read side of the course/content collaborator.
type Catalog interface {
	GetCourse(ctx context.Context, courseID string) (model.Course, error)
	GetLessons(ctx context.Context, courseID string) ([]model.Lesson, error)
	GetAnswerKey(ctx context.Context, courseID string, lessonNumber int) ([]model.QuizQuestion, error)
	AddFeedback(ctx context.Context, feedback model.Feedback) error
}

// Cursors persists the unlocked-up-to cursor. AdvanceProgress must apply
// the increment only while the cursor still equals from.
type Cursors interface {
	EnsureProgress(ctx context.Context, email, courseID string) (int, error)
	AdvanceProgress(ctx context.Context, email, courseID string, from int) (bool, error)
}

type QuestionResult struct {
	Question      string
	Correct       bool
	CorrectAnswer string // set only for wrong answers
}

type QuizResult struct {
	Questions    []QuestionResult
	AllCorrect   bool
	Advanced     bool
	UnlockedUpTo int
}

type Summary struct {
	UnlockedUpTo int
	TotalLessons int
	Completed    bool
}

type Engine struct {
	catalog            Catalog
	cursors            Cursors
	advanceWithoutQuiz bool
	now                func() time.Time
}

func NewEngine(catalog Catalog, cursors Cursors, advanceWithoutQuiz bool) *Engine {
	return &Engine{
		catalog:            catalog,
		cursors:            cursors,
		advanceWithoutQuiz: advanceWithoutQuiz,
		now:                time.Now,
	}
}

// LessonView returns the lesson's content references if the caller may see
// them. Unlocked lessons may be revisited any number of times. An unknown
// course reports the same error as a missing grant.
func (e *Engine) LessonView(ctx context.Context, account model.Account, courseID string, lessonNumber int) (model.Lesson, error) {
	if err := access.Authorize(account, courseID); err != nil {
		return model.Lesson{}, err
	}
	if _, err := e.catalog.GetCourse(ctx, courseID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Lesson{}, access.ErrDenied
		}
		return model.Lesson{}, err
	}
	if lessonNumber < 1 {
		return model.Lesson{}, ErrNoSuchLesson
	}

	lessons, err := e.catalog.GetLessons(ctx, courseID)
	if err != nil {
		return model.Lesson{}, err
	}
	lesson, found := findLesson(lessons, lessonNumber)

	// Admins may preview any lesson but carry no cursor.
	if account.Role == model.RoleAdmin {
		if !found {
			return model.Lesson{}, ErrNoSuchLesson
		}
		return lesson, nil
	}

	unlockedUpTo, err := e.cursors.EnsureProgress(ctx, account.Email, courseID)
	if err != nil {
		return model.Lesson{}, err
	}
	if lessonNumber > unlockedUpTo {
		return model.Lesson{}, ErrLessonLocked
	}
	if !found {
		return model.Lesson{}, ErrNoSuchLesson
	}

	if e.advanceWithoutQuiz && lessonNumber == unlockedUpTo {
		key, err := e.catalog.GetAnswerKey(ctx, courseID, lessonNumber)
		if err != nil {
			return model.Lesson{}, err
		}
		if len(key) == 0 {
			if _, err := e.cursors.AdvanceProgress(ctx, account.Email, courseID, unlockedUpTo); err != nil {
				return model.Lesson{}, err
			}
		}
	}
	return lesson, nil
}

// SubmitQuiz evaluates the submission and reports per-question results.
// The cursor moves by exactly one, and only when every answer is correct
// and the submission targets the cursor lesson; the store applies the
// increment as a check-and-set, so replays cannot advance twice.
func (e *Engine) SubmitQuiz(ctx context.Context, account model.Account, courseID string, lessonNumber int, answers []string) (QuizResult, error) {
	if err := access.Authorize(account, courseID); err != nil {
		return QuizResult{}, err
	}
	if _, err := e.catalog.GetCourse(ctx, courseID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return QuizResult{}, access.ErrDenied
		}
		return QuizResult{}, err
	}
	if lessonNumber < 1 {
		return QuizResult{}, ErrNoSuchLesson
	}

	unlockedUpTo := 0
	if account.Role != model.RoleAdmin {
		var err error
		unlockedUpTo, err = e.cursors.EnsureProgress(ctx, account.Email, courseID)
		if err != nil {
			return QuizResult{}, err
		}
		// Answer keys for locked lessons are never evaluated: the result
		// would hand out their correct answers.
		if lessonNumber > unlockedUpTo {
			return QuizResult{}, ErrLessonLocked
		}
	}

	key, err := e.catalog.GetAnswerKey(ctx, courseID, lessonNumber)
	if err != nil {
		return QuizResult{}, err
	}
	if len(key) == 0 {
		return QuizResult{}, ErrNoQuizDefined
	}

	correct, err := quiz.Evaluate(key, answers)
	if err != nil {
		return QuizResult{}, err
	}

	result := QuizResult{
		Questions:    make([]QuestionResult, len(key)),
		AllCorrect:   quiz.AllCorrect(correct),
		UnlockedUpTo: unlockedUpTo,
	}
	for i, question := range key {
		result.Questions[i] = QuestionResult{
			Question: question.Question,
			Correct:  correct[i],
		}
		if !correct[i] {
			result.Questions[i].CorrectAnswer = question.Answer
		}
	}

	if account.Role == model.RoleAdmin {
		return result, nil
	}

	if result.AllCorrect && lessonNumber == unlockedUpTo {
		advanced, err := e.cursors.AdvanceProgress(ctx, account.Email, courseID, unlockedUpTo)
		if err != nil {
			return QuizResult{}, err
		}
		result.Advanced = advanced
		if advanced {
			result.UnlockedUpTo = unlockedUpTo + 1
		}
	}
	return result, nil
}

// Progress reports the cursor alongside the course size. Admins carry no
// cursor, so this is a student-only read.
func (e *Engine) Progress(ctx context.Context, account model.Account, courseID string) (Summary, error) {
	if account.Role == model.RoleAdmin {
		return Summary{}, access.ErrDenied
	}
	if err := access.Authorize(account, courseID); err != nil {
		return Summary{}, err
	}
	if _, err := e.catalog.GetCourse(ctx, courseID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return Summary{}, access.ErrDenied
		}
		return Summary{}, err
	}

	lessons, err := e.catalog.GetLessons(ctx, courseID)
	if err != nil {
		return Summary{}, err
	}
	unlockedUpTo, err := e.cursors.EnsureProgress(ctx, account.Email, courseID)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		UnlockedUpTo: unlockedUpTo,
		TotalLessons: len(lessons),
		Completed:    unlockedUpTo > maxLessonNumber(lessons),
	}, nil
}

// SubmitFeedback appends an anonymous feedback entry. Only students who
// completed the course may leave one; entries are never edited or removed.
func (e *Engine) SubmitFeedback(ctx context.Context, account model.Account, courseID, body string) error {
	summary, err := e.Progress(ctx, account, courseID)
	if err != nil {
		return err
	}
	if !summary.Completed {
		return ErrCourseNotCompleted
	}
	return e.catalog.AddFeedback(ctx, model.Feedback{
		ID:        uuid.NewString(),
		CourseID:  courseID,
		Body:      body,
		CreatedAt: e.now().UTC(),
	})
}

func findLesson(lessons []model.Lesson, number int) (model.Lesson, bool) {
	for _, lesson := range lessons {
		if lesson.Number == number {
			return lesson, true
		}
	}
	return model.Lesson{}, false
}

// maxLessonNumber is the completion bar: the cursor must move past the
// highest lesson that has content. A course with no lessons is complete
// at the initial cursor.
func maxLessonNumber(lessons []model.Lesson) int {
	max := 0
	for _, lesson := range lessons {
		if lesson.Number > max {
			max = lesson.Number
		}
	}
	return max
}
