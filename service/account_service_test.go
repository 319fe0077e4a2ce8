package service

import (
	"context"
	"testing"

	"github.com/adelegard/TouchrServer/model"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func stubIssuer(userID uuid.UUID) (string, error) {
	return "token-" + userID.String(), nil
}

func newAccountService(t *testing.T) (*gorm.DB, *AccountService) {
	t.Helper()
	db := newTestDB(t)
	return db, NewAccountService(db, stubIssuer)
}

func TestAccountService_SignupAndLogin(t *testing.T) {
	_, svc := newAccountService(t)
	ctx := context.Background()
	creds := Credentials{Username: gofakeit.Username(), Password: gofakeit.Password(true, true, true, false, false, 12)}

	session, err := svc.Signup(ctx, creds)
	require.NoError(t, err)
	assert.Equal(t, creds.Username, session.User.Username)
	assert.Equal(t, "token-"+session.User.ID.String(), session.Token)
	assert.NotEqual(t, creds.Password, session.User.PasswordHash)

	_, err = svc.Signup(ctx, creds)
	assert.ErrorIs(t, err, ErrConflict)

	login, err := svc.Login(ctx, creds)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, login.User.ID)

	_, err = svc.Login(ctx, Credentials{Username: creds.Username, Password: "wrong"})
	assert.ErrorIs(t, err, ErrNotAuthorized)
	_, err = svc.Login(ctx, Credentials{Username: "nobody", Password: "x"})
	assert.ErrorIs(t, err, ErrNotAuthorized)
	_, err = svc.Login(ctx, Credentials{Username: creds.Username})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAccountService_Roles(t *testing.T) {
	_, svc := newAccountService(t)
	ctx := context.Background()
	require.NoError(t, svc.InitDefaultRoles(ctx))
	require.NoError(t, svc.InitDefaultRoles(ctx))

	session, err := svc.Signup(ctx, Credentials{Username: "root", Password: "s3cret"})
	require.NoError(t, err)

	has, err := svc.HasRole(ctx, session.User.ID, RoleAdmin)
	require.NoError(t, err)
	assert.False(t, has)

	assert.ErrorIs(t, svc.GiveRole(ctx, "root", ""), ErrInvalidInput)
	assert.ErrorIs(t, svc.GiveRole(ctx, "", RoleAdmin), ErrInvalidInput)
	assert.ErrorIs(t, svc.GiveRole(ctx, "root", "wizard"), ErrNotFound)
	assert.ErrorIs(t, svc.GiveRole(ctx, "nobody", RoleAdmin), ErrNotFound)

	require.NoError(t, svc.GiveRole(ctx, "root", RoleAdmin))
	require.NoError(t, svc.GiveRole(ctx, "root", RoleAdmin), "granting twice is a no-op")

	has, err = svc.HasRole(ctx, session.User.ID, RoleAdmin)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestAccountService_BootstrapAdmins(t *testing.T) {
	_, svc := newAccountService(t)
	ctx := context.Background()

	ops, err := svc.Signup(ctx, Credentials{Username: "ops", Password: "s3cret"})
	require.NoError(t, err)
	other, err := svc.Signup(ctx, Credentials{Username: "other", Password: "s3cret"})
	require.NoError(t, err)

	require.NoError(t, svc.InitDefaultRoles(ctx, "ops", "not-signed-up"))

	has, err := svc.HasRole(ctx, ops.User.ID, RoleAdmin)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = svc.HasRole(ctx, other.User.ID, RoleAdmin)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestAccountService_DeleteAccount(t *testing.T) {
	db, svc := newAccountService(t)
	ctx := context.Background()

	me := createUser(t, db, "")
	friend := createUser(t, db, "")
	makeFriends(t, db, me, friend)
	mine := createTouchType(t, db, me, false)
	createTouch(t, db, me, friend, mine, 0)
	createTouch(t, db, friend, me, mine, 1)
	require.NoError(t, db.Create(&model.UserTouchType{UserID: me.ID, TouchTypeID: mine.ID, Order: 1}).Error)
	require.NoError(t, db.Create(&model.UserTouchType{UserID: friend.ID, TouchTypeID: mine.ID, Order: 1}).Error)
	require.NoError(t, db.Create(&model.Installation{UserID: me.ID, DeviceType: "android", DeviceToken: "t"}).Error)
	require.NoError(t, db.Create(&model.Notification{UserID: me.ID, Title: "x"}).Error)

	require.NoError(t, svc.DeleteAccount(ctx, me.ID))

	assert.Zero(t, countRows(t, db, &model.User{}, "id = ?", me.ID))
	assert.Zero(t, countRows(t, db, &model.Touch{}, "1 = 1"))
	assert.Zero(t, countRows(t, db, &model.FriendRequest{}, "1 = 1"))
	assert.Zero(t, countRows(t, db, &model.UserTouchType{}, "user_id = ?", me.ID))
	assert.Zero(t, countRows(t, db, &model.Installation{}, "1 = 1"))
	assert.Zero(t, countRows(t, db, &model.Notification{}, "1 = 1"))

	assert.Equal(t, int64(1), countRows(t, db, &model.TouchType{}, "id = ?", mine.ID), "created touch types are kept")
	assert.Equal(t, int64(1), countRows(t, db, &model.UserTouchType{}, "user_id = ?", friend.ID))
	assert.Equal(t, int64(1), countRows(t, db, &model.User{}, "id = ?", friend.ID))

	assert.ErrorIs(t, svc.DeleteAccount(ctx, me.ID), ErrNotFound)
}

func TestAccountService_DeleteAccountReportsPartialFailure(t *testing.T) {
	db, svc := newAccountService(t)
	ctx := context.Background()

	me := createUser(t, db, "")
	friend := createUser(t, db, "")
	makeFriends(t, db, me, friend)
	require.NoError(t, db.Migrator().DropTable(&model.Installation{}))

	err := svc.DeleteAccount(ctx, me.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialFailure)
	assert.Contains(t, err.Error(), "installations")

	assert.Zero(t, countRows(t, db, &model.FriendRequest{}, "1 = 1"), "completed parts stay deleted")
	assert.Zero(t, countRows(t, db, &model.User{}, "id = ?", me.ID))
}
