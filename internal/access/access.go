// Package access decides whether an account may view a course. It is a
// pure function of the account's role and grant set; admins bypass the
// grant check.
package access

import (
	"errors"

	"studyhall/courses/internal/model"
)

var ErrDenied = errors.New("denied")

func Authorize(account model.Account, courseID string) error {
	if account.Role == model.RoleAdmin {
		return nil
	}
	if account.HasGrant(courseID) {
		return nil
	}
	return ErrDenied
}
