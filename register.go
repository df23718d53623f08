package main

import (
	"errors"
	"regexp"
	"strings"
)

// RegistrationInput is the payload accepted by /auth/register.
// PasswordConfirm is validated and discarded, never persisted.
type RegistrationInput struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
}

// FieldErrors maps a field name to every violation found on it.
type FieldErrors map[string][]string

func (f FieldErrors) add(field, msg string) { f[field] = append(f[field], msg) }

var (
	usernameRe   = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	hasLetterRe  = regexp.MustCompile(`[A-Za-z]`)
	hasDigitRe   = regexp.MustCompile(`[0-9]`)
	emailShapeRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// commonPasswords rejects passwords that pass the letter/digit rule but
// are still guessable. Matching is case-insensitive.
var commonPasswords = map[string]struct{}{
	"password1":   {},
	"password123": {},
	"qwerty123":   {},
	"abc12345":    {},
	"letmein1":    {},
	"welcome1":    {},
	"iloveyou1":   {},
	"admin123":    {},
	"12345678a":   {},
	"1q2w3e4r":    {},
	"monkey123":   {},
	"dragon123":   {},
	"sunshine1":   {},
	"princess1":   {},
	"football1":   {},
	"baseball1":   {},
	"trustno1":    {},
	"passw0rd1":   {},
}

// registerIdentity validates a registration candidate and, on success,
// creates the identity with a bcrypt-hashed password. All field
// violations are collected and reported together rather than stopping
// at the first one. A non-nil error means the store failed; field
// errors alone mean the input was bad and nothing was created.
func (a *App) registerIdentity(in RegistrationInput) (*Identity, FieldErrors, error) {
	fields := FieldErrors{}

	switch {
	case in.Username == "":
		fields.add("username", "username is required")
	case len(in.Username) < 3:
		fields.add("username", "username must be at least 3 characters")
	case !usernameRe.MatchString(in.Username):
		fields.add("username", "username may only contain letters, digits and underscores")
	default:
		if _, err := a.store.GetIdentityByUsername(in.Username); err == nil {
			fields.add("username", "username is already taken")
		} else if !errors.Is(err, ErrNotFound) {
			return nil, nil, err
		}
	}

	switch {
	case in.Email == "":
		fields.add("email", "email is required")
	case !emailShapeRe.MatchString(in.Email):
		fields.add("email", "email is not a valid address")
	default:
		if _, err := a.store.GetIdentityByEmail(in.Email); err == nil {
			fields.add("email", "email is already in use")
		} else if !errors.Is(err, ErrNotFound) {
			return nil, nil, err
		}
	}

	for _, msg := range passwordViolations(in.Password, in.Username) {
		fields.add("password", msg)
	}

	if in.PasswordConfirm != in.Password {
		fields.add("password_confirm", "passwords do not match")
	}

	if len(fields) > 0 {
		return nil, fields, nil
	}

	hashed, err := hashPassword(in.Password)
	if err != nil {
		return nil, nil, err
	}
	identity, err := a.store.CreateIdentity(in.Username, in.Email, hashed, in.FirstName, in.LastName)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			// lost a race with a concurrent registration
			fields.add("username", "username or email is already taken")
			return nil, fields, nil
		}
		return nil, nil, err
	}
	return identity, nil, nil
}

// passwordViolations enforces the strength policy: length, at least one
// letter and one digit, not a known-common password, not derived from
// the username.
func passwordViolations(password, username string) []string {
	var msgs []string
	if password == "" {
		return []string{"password is required"}
	}
	if len(password) < 8 {
		msgs = append(msgs, "password must be at least 8 characters")
	}
	if !hasLetterRe.MatchString(password) {
		msgs = append(msgs, "password must contain at least one letter")
	}
	if !hasDigitRe.MatchString(password) {
		msgs = append(msgs, "password must contain at least one digit")
	}
	lower := strings.ToLower(password)
	if _, ok := commonPasswords[lower]; ok {
		msgs = append(msgs, "password is too common")
	}
	if username != "" && strings.Contains(lower, strings.ToLower(username)) {
		msgs = append(msgs, "password must not contain the username")
	}
	return msgs
}
