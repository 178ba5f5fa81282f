//go:generate go run go.uber.org/mock/mockgen -source=collaborators.go -destination=../mocks/mock_collaborators.go -package=mocks
package core

import (
	"context"

	"github.com/dkeye/Huddle/internal/domain"
)

// MembershipChecker is the external authority on group membership.
type MembershipChecker interface {
	IsMember(ctx context.Context, groupID domain.GroupID, userID domain.UserID) (bool, error)
}

// MessageStore persists chat messages and assigns their id and timestamp.
type MessageStore interface {
	PersistMessage(ctx context.Context, groupID domain.GroupID, senderID domain.UserID, text string) (*domain.Message, error)
}
