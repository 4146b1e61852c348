package http

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"studyhall/courses/internal/access"
	"studyhall/courses/internal/model"
	"studyhall/courses/internal/progress"
	"studyhall/courses/internal/quiz"
	"studyhall/courses/internal/session"
)

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"":                  "",
		"Bearer abc":        "abc",
		"bearer abc":        "abc",
		"Bearer  abc ":      "abc",
		"Basic abc":         "",
		"Bearerabc":         "",
		"Bearer abc def gh": "abc def gh",
	}
	for input, expect := range cases {
		if got := bearerToken(input); got != expect {
			t.Fatalf("bearerToken(%q) = %q, expected %q", input, got, expect)
		}
	}
}

func TestParseLimit(t *testing.T) {
	r := httptest.NewRequest("GET", "/admin/users", nil)
	if got := parseLimit(r, 100); got != 100 {
		t.Fatalf("expected fallback 100, got %d", got)
	}
	r = httptest.NewRequest("GET", "/admin/users?limit=25", nil)
	if got := parseLimit(r, 100); got != 25 {
		t.Fatalf("expected 25, got %d", got)
	}
	r = httptest.NewRequest("GET", "/admin/users?limit=-3", nil)
	if got := parseLimit(r, 100); got != 100 {
		t.Fatalf("expected fallback for negative limit, got %d", got)
	}
	r = httptest.NewRequest("GET", "/admin/users?limit=abc", nil)
	if got := parseLimit(r, 100); got != 100 {
		t.Fatalf("expected fallback for junk limit, got %d", got)
	}
}

func TestWriteDomainError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{access.ErrDenied, 403, "denied"},
		{progress.ErrLessonLocked, 403, "lesson_locked"},
		{progress.ErrNoSuchLesson, 404, "no_such_lesson"},
		{progress.ErrNoQuizDefined, 404, "no_quiz_defined"},
		{progress.ErrCourseNotCompleted, 403, "course_not_completed"},
		{quiz.ErrMalformedSubmission, 400, "malformed_submission"},
		{model.ErrNotFound, 404, "not_found"},
		{session.ErrInvalid, 500, "server_error"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeDomainError(rec, tc.err)
		if rec.Code != tc.status {
			t.Fatalf("%v: expected status %d, got %d", tc.err, tc.status, rec.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%v: decode body: %v", tc.err, err)
		}
		if body["error"] != tc.code {
			t.Fatalf("%v: expected code %q, got %q", tc.err, tc.code, body["error"])
		}
	}
}

func TestMapAccountEmptyGrants(t *testing.T) {
	resp := mapAccount(model.Account{Email: "a@b.local", Role: model.RoleStudent})
	if resp.Grants == nil {
		t.Fatalf("expected non-nil grants slice")
	}
	if len(resp.Grants) != 0 {
		t.Fatalf("expected empty grants, got %v", resp.Grants)
	}
}
