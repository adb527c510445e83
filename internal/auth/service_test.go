package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal/internal/auth"
	"portal/internal/domain"
)

type validatorCall struct {
	username, password string
	orgID              int64
}

type fakeValidator struct {
	mu    sync.Mutex
	calls []validatorCall
	id    domain.Identity
	err   error
}

func (f *fakeValidator) ValidateCredentials(_ context.Context, username, password string, orgID int64) (domain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, validatorCall{username, password, orgID})
	return f.id, f.err
}

type loginRecorder struct{ results []string }

func (r *loginRecorder) RecordLogin(_ context.Context, result string) {
	r.results = append(r.results, result)
}

func TestAuthenticateSuccess(t *testing.T) {
	cases := []struct {
		profileID int64
		userName  string
		orgID     int64
	}{
		{42, "jdoe", 3},
		{1, "a", 1},
		{77, "Mrs. Okafor", 12},
	}
	for _, tc := range cases {
		v := &fakeValidator{id: domain.Identity{ProfileID: tc.profileID, UserName: tc.userName}}
		rec := &loginRecorder{}
		svc := auth.NewService(v, nil, rec)

		p, err := svc.Authenticate(context.Background(), "  jdoe ", "secret", tc.orgID)
		require.NoError(t, err)

		assert.Equal(t, tc.orgID, p.OrgID)
		assert.Equal(t, tc.profileID, p.ProfileID)
		assert.Equal(t, tc.userName, p.UserName)
		assert.True(t, p.Valid())

		require.Len(t, v.calls, 1)
		assert.Equal(t, validatorCall{"jdoe", "secret", tc.orgID}, v.calls[0])
		assert.Equal(t, []string{"success"}, rec.results)
	}
}

func TestAuthenticateMalformedMakesNoCall(t *testing.T) {
	cases := map[string]struct {
		username, password string
		orgID              int64
	}{
		"empty username":     {"", "secret", 3},
		"blank username":     {"   ", "secret", 3},
		"empty password":     {"jdoe", "", 3},
		"zero org":           {"jdoe", "secret", 0},
		"negative org":       {"jdoe", "secret", -5},
		"everything missing": {"", "", 0},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			v := &fakeValidator{id: domain.Identity{ProfileID: 1, UserName: "x"}}
			svc := auth.NewService(v, nil, nil)

			_, err := svc.Authenticate(context.Background(), tc.username, tc.password, tc.orgID)

			assert.ErrorIs(t, err, domain.ErrInvalidCredentialsFormat)
			assert.True(t, auth.IsInputError(err))
			assert.Empty(t, v.calls)
		})
	}
}

func TestAuthenticateBackendRejection(t *testing.T) {
	v := &fakeValidator{err: &domain.BackendError{Op: "ValidateCredentials", Status: 401, Message: "user jdoe not found"}}
	rec := &loginRecorder{}
	svc := auth.NewService(v, nil, rec)

	_, err := svc.Authenticate(context.Background(), "jdoe", "secret", 3)

	require.ErrorIs(t, err, domain.ErrAuthFailure)
	assert.NotContains(t, err.Error(), "not found")
	var be *domain.BackendError
	assert.False(t, errors.As(err, &be), "backend detail must not leak")
	assert.Len(t, v.calls, 1)
	assert.Equal(t, []string{"failure"}, rec.results)
}

func TestAuthenticateUnusableIdentity(t *testing.T) {
	for _, id := range []domain.Identity{
		{ProfileID: 0, UserName: "jdoe"},
		{ProfileID: 42, UserName: ""},
	} {
		v := &fakeValidator{id: id}
		svc := auth.NewService(v, nil, nil)

		_, err := svc.Authenticate(context.Background(), "jdoe", "secret", 3)
		assert.ErrorIs(t, err, domain.ErrAuthFailure)
	}
}

func TestParseOrgID(t *testing.T) {
	valid := map[string]int64{"3": 3, " 12 ": 12, "9000000000": 9000000000}
	for in, want := range valid {
		got, err := auth.ParseOrgID(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, in := range []string{"", "0", "-1", "abc", "3.5", "NaN", "Inf", "1e3", "99999999999999999999"} {
		_, err := auth.ParseOrgID(in)
		assert.ErrorIs(t, err, domain.ErrInvalidCredentialsFormat, in)
	}
}
