package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdminStore struct {
	admins map[int64]bool
}

func newFakeAdminStore() *fakeAdminStore {
	return &fakeAdminStore{admins: make(map[int64]bool)}
}

func (f *fakeAdminStore) IsAdmin(_ context.Context, userID int64) (bool, error) {
	return f.admins[userID], nil
}

func (f *fakeAdminStore) List(_ context.Context) ([]int64, error) {
	out := make([]int64, 0, len(f.admins))
	for id := range f.admins {
		out = append(out, id)
	}
	return out, nil
}

func (f *fakeAdminStore) Add(_ context.Context, userID int64) error {
	f.admins[userID] = true
	return nil
}

func (f *fakeAdminStore) Remove(_ context.Context, userID int64) error {
	delete(f.admins, userID)
	return nil
}

func TestAdminBootstrap(t *testing.T) {
	store := newFakeAdminStore()
	svc := NewAdminService(store, 42)
	require.NoError(t, svc.Bootstrap(context.Background()))

	isAdmin, err := svc.IsAdmin(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, isAdmin)
}

func TestAdminAddRemove(t *testing.T) {
	store := newFakeAdminStore()
	svc := NewAdminService(store, 42)
	ctx := context.Background()
	require.NoError(t, svc.Bootstrap(ctx))

	require.NoError(t, svc.Add(ctx, 100))
	isAdmin, err := svc.IsAdmin(ctx, 100)
	require.NoError(t, err)
	assert.True(t, isAdmin)

	require.NoError(t, svc.Remove(ctx, 100))
	isAdmin, err = svc.IsAdmin(ctx, 100)
	require.NoError(t, err)
	assert.False(t, isAdmin)
}

func TestAdminSuperAdminCannotBeRemoved(t *testing.T) {
	store := newFakeAdminStore()
	svc := NewAdminService(store, 42)
	ctx := context.Background()
	require.NoError(t, svc.Bootstrap(ctx))

	err := svc.Remove(ctx, 42)
	assert.ErrorIs(t, err, ErrSuperAdmin)

	isAdmin, err := svc.IsAdmin(ctx, 42)
	require.NoError(t, err)
	assert.True(t, isAdmin)
}
