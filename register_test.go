package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validRegistration() RegistrationInput {
	return RegistrationInput{
		Username:        "alice",
		Email:           "alice@x.com",
		Password:        "passw0rd",
		PasswordConfirm: "passw0rd",
		FirstName:       "Alice",
		LastName:        "Liddell",
	}
}

func TestRegisterSuccess(t *testing.T) {
	a := newTestApp(t)

	identity, fields, err := a.registerIdentity(validRegistration())
	require.NoError(t, err)
	require.Empty(t, fields)
	require.NotNil(t, identity)
	require.Equal(t, int64(1), identity.ID)
	require.Equal(t, "alice", identity.Username)

	// plaintext never reaches the store
	stored, err := a.store.GetIdentityByUsername("alice")
	require.NoError(t, err)
	require.NotEqual(t, "passw0rd", stored.PasswordHash)
	require.True(t, comparePassword(stored.PasswordHash, "passw0rd"))
}

func TestRegisterReportsAllViolationsTogether(t *testing.T) {
	a := newTestApp(t)

	_, fields, err := a.registerIdentity(RegistrationInput{
		Username:        "a!",
		Email:           "not-an-email",
		Password:        "short",
		PasswordConfirm: "different",
	})
	require.NoError(t, err)
	require.Contains(t, fields, "username")
	require.Contains(t, fields, "email")
	require.Contains(t, fields, "password")
	require.Contains(t, fields, "password_confirm")
}

func TestRegisterUsernameRules(t *testing.T) {
	a := newTestApp(t)

	cases := []struct {
		name     string
		username string
	}{
		{"empty", ""},
		{"too short", "ab"},
		{"bad characters", "bad name!"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validRegistration()
			in.Username = tc.username
			_, fields, err := a.registerIdentity(in)
			require.NoError(t, err)
			require.Contains(t, fields, "username")
		})
	}

	// underscores and digits are fine
	in := validRegistration()
	in.Username = "alice_2"
	in.Email = "alice2@x.com"
	_, fields, err := a.registerIdentity(in)
	require.NoError(t, err)
	require.Empty(t, fields)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	a := newTestApp(t)

	_, fields, err := a.registerIdentity(validRegistration())
	require.NoError(t, err)
	require.Empty(t, fields)

	in := validRegistration()
	in.Email = "other@x.com"
	_, fields, err = a.registerIdentity(in)
	require.NoError(t, err)
	require.Contains(t, fields, "username")

	in = validRegistration()
	in.Username = "bob"
	in.Password, in.PasswordConfirm = "hunter22b", "hunter22b"
	_, fields, err = a.registerIdentity(in)
	require.NoError(t, err)
	require.Contains(t, fields, "email")
}

func TestRegisterPasswordPolicy(t *testing.T) {
	a := newTestApp(t)

	cases := []struct {
		name     string
		password string
	}{
		{"too short", "ab1"},
		{"no digit", "onlyletters"},
		{"no letter", "12345678"},
		{"common", "password123"},
		{"contains username", "alice1234"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validRegistration()
			in.Password = tc.password
			in.PasswordConfirm = tc.password
			_, fields, err := a.registerIdentity(in)
			require.NoError(t, err)
			require.Contains(t, fields, "password")
		})
	}
}

func TestRegisterConfirmMismatchCreatesNothing(t *testing.T) {
	a := newTestApp(t)

	in := validRegistration()
	in.PasswordConfirm = "passw0rd2"
	_, fields, err := a.registerIdentity(in)
	require.NoError(t, err)
	require.Contains(t, fields, "password_confirm")
	require.Len(t, fields, 1)

	_, err = a.store.GetIdentityByUsername("alice")
	require.ErrorIs(t, err, ErrNotFound)

	// retry with corrected input succeeds
	identity, fields, err := a.registerIdentity(validRegistration())
	require.NoError(t, err)
	require.Empty(t, fields)
	require.NotNil(t, identity)
}
