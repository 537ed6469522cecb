package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traeumen927/chatGPT-sub000/pkg/config"
)

func TestRequire_NoUser(t *testing.T) {
	s := NewSession()
	defer s.Close()

	_, err := Require(s)
	assert.True(t, errors.Is(err, ErrNoCurrentUser))

	_, err = Require(nil)
	assert.True(t, errors.Is(err, ErrNoCurrentUser))
}

func TestSession_SignInOut(t *testing.T) {
	s := NewSession()
	defer s.Close()

	sub := s.Subscribe()
	defer sub.Unsubscribe()
	assert.Nil(t, <-sub.C)

	s.SignIn(User{UID: "u1", DisplayName: "Mina"})
	u, err := Require(s)
	require.NoError(t, err)
	assert.Equal(t, "u1", u.UID)
	got := <-sub.C
	require.NotNil(t, got)
	assert.Equal(t, "Mina", got.DisplayName)

	s.SignOut()
	_, ok := s.CurrentUser()
	assert.False(t, ok)
	assert.Nil(t, <-sub.C)
}

func TestSessionFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	s := SessionFromConfig(cfg)
	defer s.Close()
	u, ok := s.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "local", u.UID)

	cfg.User.UID = "  "
	empty := SessionFromConfig(cfg)
	defer empty.Close()
	_, ok = empty.CurrentUser()
	assert.False(t, ok)
}
