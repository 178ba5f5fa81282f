package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIDs_Accept_Numbers_And_Strings(t *testing.T) {
	req := require.New(t)

	var p struct {
		User  UserID  `json:"user"`
		Group GroupID `json:"group"`
		None  UserID  `json:"none"`
	}
	req.NoError(json.Unmarshal([]byte(`{"user": 42, "group": "g-7", "none": null}`), &p))

	req.Equal(UserID("42"), p.User)
	req.Equal(GroupID("g-7"), p.Group)
	req.Empty(p.None)

	req.Error(json.Unmarshal([]byte(`{"user": true}`), &p))
}

func TestNewIdentity(t *testing.T) {
	req := require.New(t)

	id, err := NewIdentity("u1", "  Alice ", "a@uni.edu", "MIT")
	req.NoError(err)
	req.Equal("Alice", id.Name)

	_, err = NewIdentity("", "Alice", "", "")
	req.ErrorIs(err, ErrUserIDEmpty)
	_, err = NewIdentity(UserID(strings.Repeat("1", MaxUserIDLen+1)), "Alice", "", "")
	req.ErrorIs(err, ErrUserIDTooLong)
	_, err = NewIdentity("u1", "   ", "", "")
	req.ErrorIs(err, ErrUsernameEmpty)
	_, err = NewIdentity("u1", strings.Repeat("a", MaxUsernameLen+1), "", "")
	req.ErrorIs(err, ErrUsernameTooLong)
}

func TestParseCallKind(t *testing.T) {
	req := require.New(t)

	k, err := ParseCallKind("video")
	req.NoError(err)
	req.Equal(CallVideo, k)

	_, err = ParseCallKind("VIDEO")
	req.ErrorIs(err, ErrUnknownCallKind)
}

func TestSeconds(t *testing.T) {
	req := require.New(t)
	req.EqualValues(0, Seconds(-time.Second))
	req.EqualValues(2, Seconds(2900*time.Millisecond))
}

func TestRoomKeys(t *testing.T) {
	req := require.New(t)
	req.Equal("group_g1", GroupRoom("g1").String())
	req.Equal("call_g1", CallRoom("g1").String())
	req.NotEqual(GroupRoom("g1"), CallRoom("g1"))
}

func TestErrorCode(t *testing.T) {
	req := require.New(t)
	req.Equal("unauthorized", ErrorCode(fmt.Errorf("%w: nope", ErrUnauthorized)))
	req.Equal("unavailable", ErrorCode(ErrMembershipUnavailable))
	req.Equal("call_id_conflict", ErrorCode(ErrCallIDConflict))
	req.Equal("rate_limited", ErrorCode(ErrRateLimited))
	req.Equal("internal", ErrorCode(fmt.Errorf("boom")))
}
