package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	users map[int64]User
}

func (m *mockRepository) ListUsers(_ context.Context) ([]User, error) {
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *mockRepository) GetUser(_ context.Context, id int64) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *mockRepository) GetUsersByIDs(_ context.Context, ids []int64) ([]User, error) {
	var out []User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func TestDisplayNamesFallsBackToEmail(t *testing.T) {
	repo := &mockRepository{users: map[int64]User{
		1: {ID: 1, Name: "Alex Chen", Email: "alex@example.com"},
		2: {ID: 2, Email: "no-name@example.com"},
	}}
	svc := NewService(repo)

	names, err := svc.DisplayNames(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{
		1: "Alex Chen",
		2: "no-name@example.com",
	}, names)
}
