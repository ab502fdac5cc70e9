package service

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"codearena/internal/user/repository"
	pkgerrors "codearena/pkg/errors"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

const (
	minNameLen     = 3
	maxNameLen     = 20
	minPasswordLen = 8
	maxPasswordLen = 72
	minAge         = 6
	maxAge         = 80
	maxBioLen      = 300
	maxLocationLen = 100
	maxGitHubLen   = 255
	maxImageURLLen = 1024
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateFirstName(name string) error {
	if n := utf8.RuneCountInString(name); n < minNameLen || n > maxNameLen {
		return pkgerrors.New(pkgerrors.InvalidName).WithMessage("firstName must be 3 to 20 characters")
	}
	return nil
}

// lastName is optional; when given it follows the same bounds as firstName.
func validateLastName(name string) error {
	if name == "" {
		return nil
	}
	if n := utf8.RuneCountInString(name); n < minNameLen || n > maxNameLen {
		return pkgerrors.New(pkgerrors.InvalidName).WithMessage("lastName must be 3 to 20 characters")
	}
	return nil
}

func validateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return pkgerrors.New(pkgerrors.InvalidEmail)
	}
	return nil
}

// A strong password has at least 8 characters with a lowercase letter,
// an uppercase letter, a digit and a symbol.
func validatePassword(password string) error {
	if len(password) > maxPasswordLen {
		return pkgerrors.New(pkgerrors.InvalidPassword)
	}
	if len(password) < minPasswordLen {
		return pkgerrors.New(pkgerrors.PasswordTooWeak)
	}
	var lower, upper, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	if !lower || !upper || !digit || !symbol {
		return pkgerrors.New(pkgerrors.PasswordTooWeak)
	}
	return nil
}

func validateRole(role repository.UserRole) error {
	if !role.Valid() {
		return pkgerrors.New(pkgerrors.InvalidRole)
	}
	return nil
}

func validateUpdate(update repository.UserUpdate) error {
	if update.FirstName != nil {
		if err := validateFirstName(*update.FirstName); err != nil {
			return err
		}
	}
	if update.LastName != nil {
		if err := validateLastName(*update.LastName); err != nil {
			return err
		}
	}
	if update.Age != nil && (*update.Age < minAge || *update.Age > maxAge) {
		return pkgerrors.ValidationError("age", "must be between 6 and 80")
	}
	if update.Bio != nil && utf8.RuneCountInString(*update.Bio) > maxBioLen {
		return pkgerrors.ValidationError("bio", "must be at most 300 characters")
	}
	if update.Location != nil && utf8.RuneCountInString(*update.Location) > maxLocationLen {
		return pkgerrors.ValidationError("location", "must be at most 100 characters")
	}
	if update.GitHub != nil && len(*update.GitHub) > maxGitHubLen {
		return pkgerrors.ValidationError("github", "is too long")
	}
	if update.ProfileImage != nil && len(*update.ProfileImage) > maxImageURLLen {
		return pkgerrors.ValidationError("profileImage", "is too long")
	}
	return nil
}
