package users

import (
	"context"
	"errors"
	"sort"

	"github.com/storedesk/storedesk/internal/access"
	"github.com/storedesk/storedesk/internal/apiclient"
)

var (
	// ErrSelfDelete is returned when an account tries to delete itself.
	ErrSelfDelete = errors.New("users: cannot delete own account")
	// ErrSelfLockout is returned when an account would deactivate or demote itself.
	ErrSelfLockout = errors.New("users: cannot deactivate or demote own account")
)

// DirectoryPort defines the account operations of the store API.
type DirectoryPort interface {
	ListUsers(ctx context.Context, creds apiclient.Credentials) ([]access.UserProfile, error)
	GetUser(ctx context.Context, creds apiclient.Credentials, id int64) (access.UserProfile, error)
	CreateUser(ctx context.Context, creds apiclient.Credentials, in apiclient.NewUser) (access.UserProfile, error)
	UpdateUser(ctx context.Context, creds apiclient.Credentials, id int64, in apiclient.UserChanges) (access.UserProfile, error)
	DeleteUser(ctx context.Context, creds apiclient.Credentials, id int64) error
}

// Service handles account management rules.
type Service struct {
	dir DirectoryPort
}

// NewService builds Service instance.
func NewService(dir DirectoryPort) *Service {
	return &Service{dir: dir}
}

// ListUsers returns all accounts ordered by id.
func (s *Service) ListUsers(ctx context.Context, creds apiclient.Credentials) ([]access.UserProfile, error) {
	users, err := s.dir.ListUsers(ctx, creds)
	if err != nil {
		return nil, err
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// GetUser returns one account.
func (s *Service) GetUser(ctx context.Context, creds apiclient.Credentials, id int64) (access.UserProfile, error) {
	return s.dir.GetUser(ctx, creds, id)
}

// CreateUser registers a new account.
func (s *Service) CreateUser(ctx context.Context, creds apiclient.Credentials, in apiclient.NewUser) (access.UserProfile, error) {
	return s.dir.CreateUser(ctx, creds, in)
}

// UpdateUser applies changes to account id on behalf of actor.
func (s *Service) UpdateUser(ctx context.Context, creds apiclient.Credentials, actor access.UserProfile, id int64, in apiclient.UserChanges) (access.UserProfile, error) {
	if id == actor.ID {
		if in.IsActive != nil && !*in.IsActive {
			return access.UserProfile{}, ErrSelfLockout
		}
		if in.Role != nil && *in.Role != actor.Role {
			return access.UserProfile{}, ErrSelfLockout
		}
	}
	return s.dir.UpdateUser(ctx, creds, id, in)
}

// DeleteUser removes account id on behalf of actor.
func (s *Service) DeleteUser(ctx context.Context, creds apiclient.Credentials, actor access.UserProfile, id int64) error {
	if id == actor.ID {
		return ErrSelfDelete
	}
	return s.dir.DeleteUser(ctx, creds, id)
}
