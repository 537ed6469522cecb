// Package auth tracks the signed-in user.
package auth

import (
	"errors"
	"strings"

	"github.com/traeumen927/chatGPT-sub000/pkg/bus"
	"github.com/traeumen927/chatGPT-sub000/pkg/config"
)

// ErrNoCurrentUser is returned by operations that need a signed-in user.
var ErrNoCurrentUser = errors.New("no current user")

type User struct {
	UID         string
	DisplayName string
	PhotoURL    string
}

// Accessor reports the signed-in user, if any.
type Accessor interface {
	CurrentUser() (User, bool)
}

// Require returns the current user or ErrNoCurrentUser.
func Require(a Accessor) (User, error) {
	if a == nil {
		return User{}, ErrNoCurrentUser
	}
	u, ok := a.CurrentUser()
	if !ok {
		return User{}, ErrNoCurrentUser
	}
	return u, nil
}

// Session is an Accessor whose user changes over time. Subscribers receive
// the current state on subscribe and every change after that; a nil value
// means signed out.
type Session struct {
	state *bus.Relay[*User]
}

func NewSession() *Session {
	return &Session{state: bus.NewRelayWith[*User](nil)}
}

// SessionFromConfig signs in the configured local user when a uid is set.
func SessionFromConfig(cfg *config.Config) *Session {
	s := NewSession()
	if uid := strings.TrimSpace(cfg.User.UID); uid != "" {
		s.SignIn(User{UID: uid, DisplayName: cfg.User.DisplayName, PhotoURL: cfg.User.PhotoURL})
	}
	return s
}

func (s *Session) SignIn(u User) {
	s.state.Publish(&u)
}

func (s *Session) SignOut() {
	s.state.Publish(nil)
}

func (s *Session) CurrentUser() (User, bool) {
	u, _ := s.state.Value()
	if u == nil {
		return User{}, false
	}
	return *u, true
}

func (s *Session) Subscribe() *bus.Subscription[*User] {
	return s.state.Subscribe()
}

func (s *Session) Close() {
	s.state.Close()
}
