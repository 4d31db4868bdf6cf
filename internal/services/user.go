package services

import (
	"context"
	"errors"

	"github.com/recdfyi/recd-server/internal/identity"
	"github.com/recdfyi/recd-server/internal/models"
	"github.com/recdfyi/recd-server/internal/policy"
	"github.com/recdfyi/recd-server/internal/store"
)

var ErrUsernameTaken = errors.New("username already taken")

type UserService struct {
	users store.UserStore
}

func NewUserService(users store.UserStore) *UserService {
	return &UserService{users: users}
}

// Get returns the principal's own user document. User documents are
// owner-only in both directions.
func (s *UserService) Get(ctx context.Context, p identity.Principal, uid string) (models.User, error) {
	if d := policy.EvaluateUser(policy.OpRead, p, uid); !d.Allowed {
		return models.User{}, d.Reason
	}
	return s.users.UserByID(ctx, uid)
}

// SetUsername claims or changes the principal's username. Usernames are
// globally unique and at most 20 characters; they are the only
// user-facing identifier in profile and marketplace URLs.
func (s *UserService) SetUsername(ctx context.Context, p identity.Principal, uid, username string) error {
	if d := policy.EvaluateUser(policy.OpUpdate, p, uid); !d.Allowed {
		return d.Reason
	}
	if username == "" || len(username) > 20 {
		return errors.New("username must be 1-20 characters")
	}
	if err := s.users.SetUsername(ctx, uid, username); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return ErrUsernameTaken
		}
		return err
	}
	return nil
}
