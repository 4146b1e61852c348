package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"studyhall/courses/internal/content"
	"studyhall/courses/internal/crypto"
	"studyhall/courses/internal/model"
	"studyhall/courses/internal/repository"
)

const maxUploadBytes = 512 << 20

type createCourseRequest struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Topics      string `json:"topics"`
}

type patchCourseRequest struct {
	DisplayName *string `json:"displayName"`
	Topics      *string `json:"topics"`
}

type quizKeyRequest struct {
	Questions []quizKeyQuestion `json:"questions"`
}

type quizKeyQuestion struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type createUserRequest struct {
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Role     string   `json:"role"`
	Grants   []string `json:"grants"`
}

type grantsRequest struct {
	Courses []string `json:"courses"`
}

type feedbackResponse struct {
	ID        string `json:"id"`
	Body      string `json:"body"`
	CreatedAt int64  `json:"createdAt"`
}

func (s *Server) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	var req createCourseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	courseID := strings.TrimSpace(req.ID)
	if courseID == "" {
		courseID = uuid.NewString()
	}
	if strings.ContainsAny(courseID, "/\\") {
		writeError(w, http.StatusBadRequest, "invalid_course")
		return
	}

	course := model.Course{
		ID:          courseID,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Topics:      req.Topics,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateCourse(r.Context(), course); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			writeError(w, http.StatusConflict, "course_exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, mapCourse(course))
}

func (s *Server) handlePatchCourse(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseId")

	var req patchCourseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.DisplayName == nil && req.Topics == nil {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if req.DisplayName != nil && strings.TrimSpace(*req.DisplayName) == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	if _, err := s.store.GetCourse(r.Context(), courseID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeError(w, http.StatusNotFound, "course_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	course, err := s.store.UpdateCourse(r.Context(), courseID, repository.CourseUpdate{
		DisplayName: req.DisplayName,
		Topics:      req.Topics,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapCourse(course))
}

func (s *Server) handleListCourseFeedback(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseId")

	if _, err := s.store.GetCourse(r.Context(), courseID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeError(w, http.StatusNotFound, "course_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	entries, err := s.store.ListFeedback(r.Context(), courseID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	resp := make([]feedbackResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, feedbackResponse{
			ID:        entry.ID,
			Body:      entry.Body,
			CreatedAt: entry.CreatedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReplaceQuiz(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseId")
	lessonNumber, err := parseLessonNumber(r)
	if err != nil || lessonNumber < 1 {
		writeError(w, http.StatusBadRequest, "invalid_lesson_number")
		return
	}

	var req quizKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if len(req.Questions) == 0 {
		writeError(w, http.StatusBadRequest, "missing_questions")
		return
	}
	key := make([]model.QuizQuestion, 0, len(req.Questions))
	for _, question := range req.Questions {
		if strings.TrimSpace(question.Question) == "" || strings.TrimSpace(question.Answer) == "" {
			writeError(w, http.StatusBadRequest, "invalid_question")
			return
		}
		key = append(key, model.QuizQuestion{
			Question: strings.TrimSpace(question.Question),
			Answer:   strings.TrimSpace(question.Answer),
		})
	}

	if _, err := s.store.GetCourse(r.Context(), courseID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeError(w, http.StatusNotFound, "course_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	if err := s.store.ReplaceAnswerKey(r.Context(), courseID, lessonNumber, key); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"questions": len(key)})
}

func (s *Server) handleUploadContent(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseId")
	kind := chi.URLParam(r, "kind")
	lessonNumber, err := parseLessonNumber(r)
	if err != nil || lessonNumber < 1 {
		writeError(w, http.StatusBadRequest, "invalid_lesson_number")
		return
	}
	if kind != content.KindVideo && kind != content.KindPDF {
		writeError(w, http.StatusBadRequest, "invalid_kind")
		return
	}

	if _, err := s.store.GetCourse(r.Context(), courseID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeError(w, http.StatusNotFound, "course_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_file")
		return
	}
	defer file.Close()

	ref, err := s.content.Save(courseID, lessonNumber, kind, header.Filename, file)
	if err != nil {
		if errors.Is(err, content.ErrBadRef) || errors.Is(err, content.ErrUnknownKind) {
			writeError(w, http.StatusBadRequest, "invalid_file")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if err := s.store.SetLessonContent(r.Context(), courseID, lessonNumber, kind, ref); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"ref": ref})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 100)
	accounts, err := s.store.ListAccounts(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	resp := make([]accountResponse, 0, len(accounts))
	for _, account := range accounts {
		resp = append(resp, mapAccount(account))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	role := model.Role(req.Role)
	if req.Role == "" {
		role = model.RoleStudent
	}
	if role != model.RoleAdmin && role != model.RoleStudent {
		writeError(w, http.StatusBadRequest, "invalid_role")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	now := time.Now().UTC()
	account := model.Account{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Grants:       req.Grants,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateAccount(r.Context(), account); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			writeError(w, http.StatusConflict, "account_exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if len(req.Grants) > 0 {
		if err := s.store.ReplaceGrants(r.Context(), email, req.Grants); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23503" {
				writeError(w, http.StatusBadRequest, "unknown_course")
				return
			}
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
	}
	writeJSON(w, http.StatusCreated, mapAccount(account))
}

func (s *Server) handleReplaceGrants(w http.ResponseWriter, r *http.Request) {
	email := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "email")))
	if email == "" {
		writeError(w, http.StatusBadRequest, "missing_email")
		return
	}

	var req grantsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	account, err := s.store.GetAccount(r.Context(), email)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeError(w, http.StatusNotFound, "account_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	if err := s.store.ReplaceGrants(r.Context(), email, req.Courses); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			writeError(w, http.StatusBadRequest, "unknown_course")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	account.Grants = req.Courses
	writeJSON(w, http.StatusOK, mapAccount(account))
}
