package handler

import (
	"net/http"
	"testing"

	"github.com/adelegard/TouchrServer/model"
	"github.com/adelegard/TouchrServer/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signup -> friend -> touch -> both feeds, checked through the HTTP API only.
func TestAPI_SignupFriendTouchFeeds(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t)
	bob := env.signup(t)
	tt := env.createTouchType(t, alice, false)

	// 1. strangers cannot touch
	status, resp := env.touch(t, alice, bob, tt, 0)
	assert.Equal(t, http.StatusForbidden, status, resp.Message)

	// 2. request shows up as pending for bob
	status, resp = env.request(t, http.MethodPost, "/api/v1/friends/"+bob.ID.String()+"/request", alice.Token, nil)
	require.Equal(t, http.StatusOK, status, resp.Message)

	status, resp = env.request(t, http.MethodGet, "/api/v1/friends/requests", bob.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var pending struct {
		Results []model.FriendRequest `json:"results"`
	}
	resp.decode(t, &pending)
	require.Len(t, pending.Results, 1)
	assert.Equal(t, alice.ID, pending.Results[0].RequesterID)

	status, _ = env.request(t, http.MethodPost, "/api/v1/friends/"+alice.ID.String()+"/accept", bob.Token, nil)
	require.Equal(t, http.StatusOK, status)

	// 3. friendship is visible from both sides
	for _, pair := range [][2]*testUser{{alice, bob}, {bob, alice}} {
		status, resp = env.request(t, http.MethodGet, "/api/v1/friends", pair[0].Token, nil)
		require.Equal(t, http.StatusOK, status)
		var friends service.FriendsPage
		resp.decode(t, &friends)
		assert.True(t, friends.HasFriends)
		require.Len(t, friends.Results, 1)
		assert.Equal(t, pair[1].ID, friends.Results[0].ID)
	}

	// 4. touch now succeeds
	status, resp = env.touch(t, alice, bob, tt, 0)
	require.Equal(t, http.StatusOK, status, resp.Message)
	env.touches.Wait()

	// 5. bob's inbox and alice's sent feed both show it
	status, resp = env.request(t, http.MethodGet, "/api/v1/touches/inbox", bob.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var inbox service.FeedPage
	resp.decode(t, &inbox)
	require.Len(t, inbox.Results, 1)
	assert.Equal(t, alice.Username, inbox.Results[0].User.Username)
	assert.Equal(t, "poked you", inbox.Results[0].TouchType.Step.TextNotif)
	assert.Equal(t, "#112233", inbox.Results[0].TouchType.BgColor)

	status, resp = env.request(t, http.MethodGet, "/api/v1/touches/sent", alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var sent service.FeedPage
	resp.decode(t, &sent)
	require.Len(t, sent.Results, 1)
	assert.Equal(t, bob.Username, sent.Results[0].User.Username)

	// 6. the push left an unread notification for bob
	status, resp = env.request(t, http.MethodGet, "/api/v1/notifications", bob.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var notifs struct {
		Notifications []model.Notification `json:"notifications"`
		UnreadCount   int64                `json:"unread_count"`
	}
	resp.decode(t, &notifs)
	require.Len(t, notifs.Notifications, 1)
	assert.Equal(t, alice.Username+" poked you", notifs.Notifications[0].Content)
	assert.Equal(t, int64(1), notifs.UnreadCount)

	// 7. friend detail counts the touch on the sender's "to" side
	status, resp = env.request(t, http.MethodGet, "/api/v1/friends/"+bob.ID.String(), alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var detail service.FriendDetail
	resp.decode(t, &detail)
	assert.Equal(t, int64(1), detail.NumTouchesTo)
	assert.Equal(t, int64(0), detail.NumTouchesFrom)
	assert.Equal(t, int64(1000), detail.TouchesToMs)
}

func TestAPI_OnlyTargetAcceptsRequest(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t)
	bob := env.signup(t)
	tt := env.createTouchType(t, alice, false)

	status, resp := env.request(t, http.MethodPost, "/api/v1/friends/"+bob.ID.String()+"/request", alice.Token, nil)
	require.Equal(t, http.StatusOK, status, resp.Message)

	status, _ = env.request(t, http.MethodPost, "/api/v1/friends/"+bob.ID.String()+"/accept", alice.Token, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, resp = env.touch(t, alice, bob, tt, 0)
	assert.Equal(t, http.StatusForbidden, status, resp.Message)

	status, resp = env.request(t, http.MethodGet, "/api/v1/friends/requests", bob.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var pending struct {
		Results []model.FriendRequest `json:"results"`
	}
	resp.decode(t, &pending)
	require.Len(t, pending.Results, 1, "the request is still pending for bob")
}

func TestAPI_HideForRecipientKeepsSenderView(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t)
	bob := env.signup(t)
	env.befriend(t, alice, bob)
	tt := env.createTouchType(t, alice, false)

	status, resp := env.touch(t, alice, bob, tt, 1)
	require.Equal(t, http.StatusOK, status, resp.Message)
	env.touches.Wait()
	var touch model.Touch
	resp.decode(t, &touch)

	status, resp = env.request(t, http.MethodPut, "/api/v1/touches/"+touch.ID.String()+"/hide", alice.Token,
		map[string]bool{"hideForUserTo": true})
	assert.Equal(t, http.StatusForbidden, status, "the sender cannot hide the recipient's view")

	status, resp = env.request(t, http.MethodPut, "/api/v1/touches/"+touch.ID.String()+"/hide", bob.Token,
		map[string]bool{"hideForUserTo": true})
	require.Equal(t, http.StatusOK, status, resp.Message)
	resp.decode(t, &touch)
	assert.True(t, touch.HideForUserTo)
	assert.False(t, touch.HideForUserFrom)

	_, resp = env.request(t, http.MethodGet, "/api/v1/touches/inbox", bob.Token, nil)
	var inbox service.FeedPage
	resp.decode(t, &inbox)
	assert.Empty(t, inbox.Results)

	_, resp = env.request(t, http.MethodGet, "/api/v1/touches/sent", alice.Token, nil)
	var sent service.FeedPage
	resp.decode(t, &sent)
	assert.Len(t, sent.Results, 1)
}

func TestAPI_RemoveTouchesWithPeer(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t)
	bob := env.signup(t)
	carol := env.signup(t)
	env.befriend(t, alice, bob)
	env.befriend(t, alice, carol)
	tt := env.createTouchType(t, alice, false)

	for _, pair := range [][2]*testUser{{alice, bob}, {bob, alice}, {alice, carol}} {
		status, resp := env.touch(t, pair[0], pair[1], tt, 0)
		require.Equal(t, http.StatusOK, status, resp.Message)
	}
	env.touches.Wait()

	status, resp := env.request(t, http.MethodDelete, "/api/v1/touches/peer/"+bob.ID.String(), alice.Token, nil)
	require.Equal(t, http.StatusOK, status, resp.Message)
	var removed struct {
		Removed int64 `json:"removed"`
	}
	resp.decode(t, &removed)
	assert.Equal(t, int64(2), removed.Removed)

	var left []model.Touch
	require.NoError(t, env.db.Find(&left).Error)
	require.Len(t, left, 1)
	assert.Equal(t, carol.ID, left[0].ToUserID)
}

func TestAPI_FavoritesOrdering(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t)
	x := env.createTouchType(t, alice, false)
	y := env.createTouchType(t, alice, false)
	z := env.createTouchType(t, alice, true)

	status, resp := env.request(t, http.MethodPost, "/api/v1/favorites/"+x.String(), alice.Token, nil)
	require.Equal(t, http.StatusOK, status, resp.Message)
	var fav model.UserTouchType
	resp.decode(t, &fav)
	assert.Equal(t, 1, fav.Order)

	status, _ = env.request(t, http.MethodPost, "/api/v1/favorites/"+x.String(), alice.Token, nil)
	assert.Equal(t, http.StatusConflict, status)

	status, resp = env.request(t, http.MethodPut, "/api/v1/favorites", alice.Token, map[string][]string{
		"touchTypeIds": {z.String(), y.String(), x.String()},
	})
	require.Equal(t, http.StatusOK, status, resp.Message)
	var list struct {
		Results []model.UserTouchType `json:"results"`
	}
	resp.decode(t, &list)
	require.Len(t, list.Results, 3)
	for i, want := range []uuid.UUID{z, y, x} {
		assert.Equal(t, want, list.Results[i].TouchTypeID)
		assert.Equal(t, i, list.Results[i].Order)
	}

	status, _ = env.request(t, http.MethodDelete, "/api/v1/favorites", alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	_, resp = env.request(t, http.MethodGet, "/api/v1/favorites", alice.Token, nil)
	resp.decode(t, &list)
	assert.Empty(t, list.Results)
}

func TestAPI_TouchTypeDeletionCascades(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t)
	bob := env.signup(t)
	env.befriend(t, alice, bob)
	tt := env.createTouchType(t, alice, false)

	status, _ := env.touch(t, alice, bob, tt, 0)
	require.Equal(t, http.StatusOK, status)
	env.touches.Wait()
	status, _ = env.request(t, http.MethodPost, "/api/v1/favorites/"+tt.String(), bob.Token, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = env.request(t, http.MethodDelete, "/api/v1/touch-types/"+tt.String(), bob.Token, nil)
	assert.Equal(t, http.StatusForbidden, status, "only the creator may delete")

	status, resp := env.request(t, http.MethodDelete, "/api/v1/touch-types/"+tt.String(), alice.Token, nil)
	require.Equal(t, http.StatusOK, status, resp.Message)

	var touches, favorites int64
	require.NoError(t, env.db.Model(&model.Touch{}).Where("touch_type_id = ?", tt).Count(&touches).Error)
	require.NoError(t, env.db.Model(&model.UserTouchType{}).Where("touch_type_id = ?", tt).Count(&favorites).Error)
	assert.Zero(t, touches)
	assert.Zero(t, favorites)
}

func TestAPI_AuthAndErrors(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t)

	status, _ := env.request(t, http.MethodGet, "/api/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = env.request(t, http.MethodGet, "/api/v1/me", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, resp := env.request(t, http.MethodGet, "/api/v1/me", alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var me model.User
	resp.decode(t, &me)
	assert.Equal(t, alice.Username, me.Username)

	status, _ = env.request(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"username": alice.Username, "password": "other",
	})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = env.request(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": alice.Username, "password": "wrong",
	})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = env.request(t, http.MethodGet, "/api/v1/friends/not-a-uuid", alice.Token, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, resp = env.request(t, http.MethodPost, "/api/v1/touch-types", alice.Token, map[string]interface{}{
		"name": "no colors",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bgColor must be a valid hex color", resp.Message)
}

func TestAPI_DeleteAccount(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t)
	bob := env.signup(t)
	env.befriend(t, alice, bob)
	tt := env.createTouchType(t, alice, false)
	status, _ := env.touch(t, alice, bob, tt, 0)
	require.Equal(t, http.StatusOK, status)
	env.touches.Wait()

	status, resp := env.request(t, http.MethodDelete, "/api/v1/me", alice.Token, nil)
	require.Equal(t, http.StatusOK, status, resp.Message)

	status, _ = env.request(t, http.MethodGet, "/api/v1/me", alice.Token, nil)
	assert.Equal(t, http.StatusNotFound, status)

	_, resp = env.request(t, http.MethodGet, "/api/v1/friends", bob.Token, nil)
	var friends service.FriendsPage
	resp.decode(t, &friends)
	assert.False(t, friends.HasFriends)

	var types int64
	require.NoError(t, env.db.Model(&model.TouchType{}).Where("id = ?", tt).Count(&types).Error)
	assert.Equal(t, int64(1), types, "touch types outlive their creator")
}
