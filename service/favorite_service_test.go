package service

import (
	"context"
	"testing"

	"github.com/adelegard/TouchrServer/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func favoriteOrders(favorites []model.UserTouchType) map[uuid.UUID]int {
	orders := make(map[uuid.UUID]int, len(favorites))
	for _, f := range favorites {
		orders[f.TouchTypeID] = f.Order
	}
	return orders
}

func TestFavoriteService_AddAppendsFromOne(t *testing.T) {
	db := newTestDB(t)
	svc := NewFavoriteService(db, nil, NewTouchTypeService(db))
	ctx := context.Background()

	user := createUser(t, db, "")
	a := createTouchType(t, db, nil, false)
	b := createTouchType(t, db, nil, false)

	first, err := svc.Add(ctx, user.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Order)
	require.NotNil(t, first.TouchType)
	assert.Equal(t, a.Name, first.TouchType.Name)

	second, err := svc.Add(ctx, user.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Order)

	_, err = svc.Add(ctx, user.ID, a.ID)
	assert.ErrorIs(t, err, ErrConflict)

	list, err := svc.List(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].TouchTypeID)
	assert.Equal(t, b.ID, list[1].TouchTypeID)
	require.NotNil(t, list[0].TouchType)
}

func TestFavoriteService_AddRejectsInvisible(t *testing.T) {
	db := newTestDB(t)
	svc := NewFavoriteService(db, nil, NewTouchTypeService(db))
	ctx := context.Background()

	user := createUser(t, db, "")
	owner := createUser(t, db, "")
	private := createTouchType(t, db, owner, true)

	_, err := svc.Add(ctx, user.ID, private.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Add(ctx, user.ID, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Add(ctx, owner.ID, private.ID)
	assert.NoError(t, err, "owners may favorite their private types")
}

func TestFavoriteService_Remove(t *testing.T) {
	db := newTestDB(t)
	svc := NewFavoriteService(db, nil, NewTouchTypeService(db))
	ctx := context.Background()

	user := createUser(t, db, "")
	tt := createTouchType(t, db, nil, false)
	_, err := svc.Add(ctx, user.ID, tt.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, user.ID, tt.ID))
	assert.ErrorIs(t, svc.Remove(ctx, user.ID, tt.ID), ErrNotFound)
}

func TestFavoriteService_SetReplacesWithZeroBasedOrder(t *testing.T) {
	db := newTestDB(t)
	svc := NewFavoriteService(db, nil, NewTouchTypeService(db))
	ctx := context.Background()

	user := createUser(t, db, "")
	stranger := createUser(t, db, "")
	a := createTouchType(t, db, nil, false)
	b := createTouchType(t, db, nil, false)
	c := createTouchType(t, db, nil, false)
	foreign := createTouchType(t, db, stranger, true)

	_, err := svc.Add(ctx, user.ID, a.ID)
	require.NoError(t, err)

	list, err := svc.Set(ctx, user.ID, []uuid.UUID{c.ID, uuid.New(), b.ID, foreign.ID, c.ID})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, map[uuid.UUID]int{c.ID: 0, b.ID: 1}, favoriteOrders(list))
	assert.Equal(t, c.ID, list[0].TouchTypeID)

	_, err = svc.Set(ctx, user.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	next, err := svc.Add(ctx, user.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, next.Order, "add continues after the bulk order")
}

func TestFavoriteService_RemoveAll(t *testing.T) {
	db := newTestDB(t)
	svc := NewFavoriteService(db, nil, NewTouchTypeService(db))
	ctx := context.Background()

	user := createUser(t, db, "")
	other := createUser(t, db, "")
	tt := createTouchType(t, db, nil, false)
	_, err := svc.Add(ctx, user.ID, tt.ID)
	require.NoError(t, err)
	_, err = svc.Add(ctx, other.ID, tt.ID)
	require.NoError(t, err)

	require.NoError(t, svc.RemoveAll(ctx, user.ID))
	list, err := svc.List(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, int64(1), countRows(t, db, &model.UserTouchType{}, "user_id = ?", other.ID))
}
