package users

import (
	"context"
)

// RepositoryPort defines data access methods for the directory.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUsersByIDs(ctx context.Context, ids []int64) ([]User, error)
}

// Service handles directory lookups.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListUsers returns all directory entries.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser returns one directory entry.
func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.repo.GetUser(ctx, id)
}

// DisplayNames resolves ids to display names for list enrichment.
func (s *Service) DisplayNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	list, err := s.repo.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(list))
	for _, u := range list {
		names[u.ID] = u.DisplayName()
	}
	return names, nil
}
