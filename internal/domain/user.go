// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 100
)

var (
	ErrUserIDEmpty     = errors.New("user id empty")
	ErrUserIDTooLong   = errors.New("user id too long")
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

type UserID string

func (id *UserID) UnmarshalJSON(data []byte) error {
	s, err := decodeID(data)
	if err != nil {
		return err
	}
	*id = UserID(s)
	return nil
}

// Identity is what a connection announces with user_connect.
type Identity struct {
	ID      UserID `json:"userId"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	College string `json:"college,omitempty"`
}

func NewIdentity(id UserID, name, email, college string) (*Identity, error) {
	if id == "" {
		return nil, ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return nil, ErrUserIDTooLong
	}
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return nil, ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		return nil, ErrUsernameTooLong
	}
	return &Identity{ID: id, Name: name, Email: email, College: college}, nil
}
