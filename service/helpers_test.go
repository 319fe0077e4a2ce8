package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/adelegard/TouchrServer/model"
	"github.com/adelegard/TouchrServer/utils"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// newTestDB opens a private in-memory database with the full schema.
// One connection keeps every query on the same in-memory database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), utils.NewGormConfig())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, utils.Migrate(db))
	return db
}

func createUser(t *testing.T, db *gorm.DB, username string) *model.User {
	t.Helper()
	if username == "" {
		username = fmt.Sprintf("%s_%s", gofakeit.Username(), uuid.NewString()[:8])
	}
	user := &model.User{Username: username, PasswordHash: "x"}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createFriendRequest(t *testing.T, db *gorm.DB, requester, target uuid.UUID, status string) *model.FriendRequest {
	t.Helper()
	req := &model.FriendRequest{RequesterID: requester, TargetID: target, Status: status}
	require.NoError(t, db.Create(req).Error)
	return req
}

func makeFriends(t *testing.T, db *gorm.DB, a, b *model.User) {
	t.Helper()
	createFriendRequest(t, db, a.ID, b.ID, model.FriendRequestAccepted)
}

func createTouchType(t *testing.T, db *gorm.DB, owner *model.User, private bool) *model.TouchType {
	t.Helper()
	tt := &model.TouchType{
		Name:      gofakeit.HipsterWord(),
		BgColor:   "#000000",
		TextColor: "#FFFFFF",
		IsPrivate: private,
		Steps:     threeSteps(),
	}
	if owner != nil {
		id := owner.ID
		tt.CreatedByID = &id
	}
	require.NoError(t, db.Create(tt).Error)
	return tt
}

func createTouch(t *testing.T, db *gorm.DB, from, to *model.User, tt *model.TouchType, stepIndex int) *model.Touch {
	t.Helper()
	touch := &model.Touch{FromUserID: from.ID, ToUserID: to.ID, TouchTypeID: tt.ID, StepIndex: stepIndex}
	require.NoError(t, db.Create(touch).Error)
	return touch
}

func countRows(t *testing.T, db *gorm.DB, m interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(m).Where(query, args...).Count(&n).Error)
	return n
}

// recordingNotifier captures the touches handed to the push side effect.
type recordingNotifier struct {
	mu      sync.Mutex
	touches []model.Touch
}

func (r *recordingNotifier) NotifyTouch(ctx context.Context, touchID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touches = append(r.touches, model.Touch{ID: touchID})
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.touches)
}

// recordingTransport captures dispatched pushes.
type recordingTransport struct {
	mu     sync.Mutex
	pushes []PushMessage
	err    error
}

func (r *recordingTransport) Name() string { return "recording" }

func (r *recordingTransport) Deliver(ctx context.Context, msg PushMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes = append(r.pushes, msg)
	return r.err
}

func (r *recordingTransport) sent() []PushMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PushMessage(nil), r.pushes...)
}
