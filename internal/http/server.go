package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"studyhall/courses/internal/access"
	"studyhall/courses/internal/config"
	"studyhall/courses/internal/content"
	"studyhall/courses/internal/model"
	"studyhall/courses/internal/progress"
	"studyhall/courses/internal/quiz"
	"studyhall/courses/internal/repository"
	"studyhall/courses/internal/session"
)

type Server struct {
	cfg      config.Config
	store    *repository.Store
	sessions *session.Manager
	engine   *progress.Engine
	content  *content.Store
}

func NewServer(cfg config.Config, store *repository.Store, sessions *session.Manager, engine *progress.Engine, contentStore *content.Store) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		sessions: sessions,
		engine:   engine,
		content:  contentStore,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/login", s.handleLogin)
	r.With(s.authMiddleware).Post("/auth/logout", s.handleLogout)
	r.With(s.authMiddleware).Get("/auth/me", s.handleMe)

	r.With(s.authMiddleware).Get("/courses", s.handleListCourses)
	r.With(s.authMiddleware).Get("/course/{courseId}", s.handleGetCourse)
	r.With(s.authMiddleware).Get("/course/{courseId}/lesson/{lessonNumber}", s.handleGetLesson)
	r.With(s.authMiddleware).Get("/course/{courseId}/lesson/{lessonNumber}/content/{kind}", s.handleGetLessonContent)
	r.With(s.authMiddleware).Get("/course/{courseId}/lesson/{lessonNumber}/quiz", s.handleGetQuiz)
	r.With(s.authMiddleware).Post("/course/{courseId}/lesson/{lessonNumber}/quiz", s.handleSubmitQuiz)
	r.With(s.authMiddleware).Get("/progress", s.handleOverallProgress)
	r.With(s.authMiddleware).Get("/course/{courseId}/progress", s.handleCourseProgress)
	r.With(s.authMiddleware).Post("/course/{courseId}/feedback", s.handleSubmitFeedback)

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.authMiddleware, s.requireAdmin)
		r.Post("/courses", s.handleCreateCourse)
		r.Patch("/course/{courseId}", s.handlePatchCourse)
		r.Get("/course/{courseId}/feedback", s.handleListCourseFeedback)
		r.Put("/course/{courseId}/lesson/{lessonNumber}/quiz", s.handleReplaceQuiz)
		r.Post("/course/{courseId}/lesson/{lessonNumber}/content/{kind}", s.handleUploadContent)
		r.Get("/users", s.handleListUsers)
		r.Post("/users", s.handleCreateUser)
		r.Put("/users/{email}/grants", s.handleReplaceGrants)
	})

	return r
}

// Auth

type accountKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		email, err := s.sessions.Validate(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, session.ErrExpired):
				writeError(w, http.StatusUnauthorized, "session_expired")
			case errors.Is(err, session.ErrInvalid):
				writeError(w, http.StatusUnauthorized, "session_invalid")
			default:
				writeError(w, http.StatusInternalServerError, "server_error")
			}
			return
		}
		account, err := s.store.GetAccount(r.Context(), email)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				writeError(w, http.StatusUnauthorized, "session_invalid")
				return
			}
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		ctx := context.WithValue(r.Context(), accountKey{}, account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accountFromContext(ctx context.Context) (model.Account, bool) {
	account, ok := ctx.Value(accountKey{}).(model.Account)
	return account, ok
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := accountFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		if account.Role != model.RoleAdmin {
			writeError(w, http.StatusForbidden, "denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Models

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

type accountResponse struct {
	Email  string   `json:"email"`
	Role   string   `json:"role"`
	Grants []string `json:"grants"`
}

type courseResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Topics      string `json:"topics,omitempty"`
}

type courseDetailResponse struct {
	courseResponse
	LessonCount  int  `json:"lessonCount"`
	UnlockedUpTo *int `json:"unlockedUpTo,omitempty"`
}

type lessonResponse struct {
	CourseID string  `json:"course"`
	Number   int     `json:"number"`
	VideoRef *string `json:"videoRef,omitempty"`
	PDFRef   *string `json:"pdfRef,omitempty"`
}

type quizQuestionResponse struct {
	Position int    `json:"position"`
	Question string `json:"question"`
}

type submitQuizRequest struct {
	Answers []string `json:"answers"`
}

type questionResultResponse struct {
	Question      string `json:"question"`
	Correct       bool   `json:"correct"`
	CorrectAnswer string `json:"correctAnswer,omitempty"`
}

type quizResultResponse struct {
	Questions    []questionResultResponse `json:"questions"`
	AllCorrect   bool                     `json:"allCorrect"`
	Advanced     bool                     `json:"advanced"`
	UnlockedUpTo int                      `json:"unlockedUpTo"`
}

type progressResponse struct {
	Course       string `json:"course"`
	UnlockedUpTo int    `json:"unlockedUpTo"`
	TotalLessons int    `json:"totalLessons"`
	Completed    bool   `json:"completed"`
}

type feedbackRequest struct {
	Text string `json:"text"`
}

// Handlers

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	sess, err := s.sessions.Authenticate(r.Context(), email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
		case errors.Is(err, session.ErrConflict):
			writeError(w, http.StatusConflict, "session_conflict")
		default:
			writeError(w, http.StatusInternalServerError, "server_error")
		}
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt.Unix(),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	if err := s.sessions.Revoke(r.Context(), account.Email); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	writeJSON(w, http.StatusOK, mapAccount(account))
}

func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	if account.Role == model.RoleAdmin {
		courses, err := s.store.ListCourses(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		resp := make([]courseResponse, 0, len(courses))
		for _, course := range courses {
			resp = append(resp, mapCourse(course))
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp := make([]courseResponse, 0, len(account.Grants))
	for _, courseID := range account.Grants {
		course, err := s.store.GetCourse(r.Context(), courseID)
		if errors.Is(err, model.ErrNotFound) {
			// Grant to a course that no longer exists.
			continue
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		resp = append(resp, mapCourse(course))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	courseID := chi.URLParam(r, "courseId")
	if err := access.Authorize(account, courseID); err != nil {
		writeError(w, http.StatusForbidden, "denied")
		return
	}

	course, err := s.store.GetCourse(r.Context(), courseID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeError(w, http.StatusForbidden, "denied")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	lessons, err := s.store.GetLessons(r.Context(), courseID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	resp := courseDetailResponse{
		courseResponse: mapCourse(course),
		LessonCount:    len(lessons),
	}
	if account.Role != model.RoleAdmin {
		summary, err := s.engine.Progress(r.Context(), account, courseID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		resp.UnlockedUpTo = &summary.UnlockedUpTo
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetLesson(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	courseID := chi.URLParam(r, "courseId")
	lessonNumber, err := parseLessonNumber(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_lesson_number")
		return
	}

	lesson, err := s.engine.LessonView(r.Context(), account, courseID, lessonNumber)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lessonResponse{
		CourseID: lesson.CourseID,
		Number:   lesson.Number,
		VideoRef: lesson.VideoRef,
		PDFRef:   lesson.PDFRef,
	})
}

func (s *Server) handleGetLessonContent(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	courseID := chi.URLParam(r, "courseId")
	kind := chi.URLParam(r, "kind")
	lessonNumber, err := parseLessonNumber(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_lesson_number")
		return
	}

	lesson, err := s.engine.LessonView(r.Context(), account, courseID, lessonNumber)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var ref *string
	switch kind {
	case content.KindVideo:
		ref = lesson.VideoRef
	case content.KindPDF:
		ref = lesson.PDFRef
	default:
		writeError(w, http.StatusBadRequest, "invalid_kind")
		return
	}
	if ref == nil {
		writeError(w, http.StatusNotFound, "content_not_found")
		return
	}

	f, err := s.content.Open(*ref)
	if err != nil {
		if errors.Is(err, content.ErrBadRef) {
			writeError(w, http.StatusNotFound, "content_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	http.ServeContent(w, r, path.Base(*ref), info.ModTime(), f)
}

func (s *Server) handleGetQuiz(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	courseID := chi.URLParam(r, "courseId")
	lessonNumber, err := parseLessonNumber(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_lesson_number")
		return
	}

	// The same gate as the lesson itself: quizzes for locked lessons stay
	// hidden.
	if _, err := s.engine.LessonView(r.Context(), account, courseID, lessonNumber); err != nil {
		writeDomainError(w, err)
		return
	}
	key, err := s.store.GetAnswerKey(r.Context(), courseID, lessonNumber)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if len(key) == 0 {
		writeError(w, http.StatusNotFound, "no_quiz_defined")
		return
	}

	resp := make([]quizQuestionResponse, 0, len(key))
	for i, question := range key {
		resp = append(resp, quizQuestionResponse{Position: i + 1, Question: question.Question})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubmitQuiz(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	courseID := chi.URLParam(r, "courseId")
	lessonNumber, err := parseLessonNumber(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_lesson_number")
		return
	}

	var req submitQuizRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	result, err := s.engine.SubmitQuiz(r.Context(), account, courseID, lessonNumber, req.Answers)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := quizResultResponse{
		Questions:    make([]questionResultResponse, 0, len(result.Questions)),
		AllCorrect:   result.AllCorrect,
		Advanced:     result.Advanced,
		UnlockedUpTo: result.UnlockedUpTo,
	}
	for _, question := range result.Questions {
		resp.Questions = append(resp.Questions, questionResultResponse{
			Question:      question.Question,
			Correct:       question.Correct,
			CorrectAnswer: question.CorrectAnswer,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOverallProgress(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	if account.Role == model.RoleAdmin {
		writeError(w, http.StatusForbidden, "denied")
		return
	}

	resp := make([]progressResponse, 0, len(account.Grants))
	for _, courseID := range account.Grants {
		summary, err := s.engine.Progress(r.Context(), account, courseID)
		if errors.Is(err, access.ErrDenied) {
			continue
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		resp = append(resp, progressResponse{
			Course:       courseID,
			UnlockedUpTo: summary.UnlockedUpTo,
			TotalLessons: summary.TotalLessons,
			Completed:    summary.Completed,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCourseProgress(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	courseID := chi.URLParam(r, "courseId")

	summary, err := s.engine.Progress(r.Context(), account, courseID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progressResponse{
		Course:       courseID,
		UnlockedUpTo: summary.UnlockedUpTo,
		TotalLessons: summary.TotalLessons,
		Completed:    summary.Completed,
	})
}

func (s *Server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	courseID := chi.URLParam(r, "courseId")

	var req feedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "missing_text")
		return
	}

	if err := s.engine.SubmitFeedback(r.Context(), account, courseID, req.Text); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// Error mapping

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, access.ErrDenied):
		writeError(w, http.StatusForbidden, "denied")
	case errors.Is(err, progress.ErrLessonLocked):
		writeError(w, http.StatusForbidden, "lesson_locked")
	case errors.Is(err, progress.ErrNoSuchLesson):
		writeError(w, http.StatusNotFound, "no_such_lesson")
	case errors.Is(err, progress.ErrNoQuizDefined):
		writeError(w, http.StatusNotFound, "no_quiz_defined")
	case errors.Is(err, progress.ErrCourseNotCompleted):
		writeError(w, http.StatusForbidden, "course_not_completed")
	case errors.Is(err, quiz.ErrMalformedSubmission):
		writeError(w, http.StatusBadRequest, "malformed_submission")
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	default:
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

// Mapping

func mapAccount(account model.Account) accountResponse {
	grants := account.Grants
	if grants == nil {
		grants = []string{}
	}
	return accountResponse{
		Email:  account.Email,
		Role:   string(account.Role),
		Grants: grants,
	}
}

func mapCourse(course model.Course) courseResponse {
	return courseResponse{
		ID:          course.ID,
		DisplayName: course.DisplayName,
		Topics:      course.Topics,
	}
}

// Helpers

func parseLessonNumber(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "lessonNumber")
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseLimit(r *http.Request, fallback int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
