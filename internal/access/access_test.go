package access

import (
	"errors"
	"testing"

	"studyhall/courses/internal/model"
)

func TestAuthorize(t *testing.T) {
	student := model.Account{
		Email:  "student1@example.local",
		Role:   model.RoleStudent,
		Grants: []string{"c1", "c2"},
	}
	if err := Authorize(student, "c1"); err != nil {
		t.Fatalf("expected grant to authorize, got %v", err)
	}
	if err := Authorize(student, "c3"); !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}

	admin := model.Account{Email: "admin@example.local", Role: model.RoleAdmin}
	if err := Authorize(admin, "c3"); err != nil {
		t.Fatalf("expected admin to bypass grants, got %v", err)
	}
}
