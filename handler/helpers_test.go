package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/adelegard/TouchrServer/job"
	"github.com/adelegard/TouchrServer/middleware"
	"github.com/adelegard/TouchrServer/service"
	"github.com/adelegard/TouchrServer/utils"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testJWTSecret = "test-secret"

// testEnv is a full server on an in-memory database, without Redis.
type testEnv struct {
	srv      *httptest.Server
	db       *gorm.DB
	hub      *Hub
	accounts *service.AccountService
	touches  *service.TouchService
	settings *service.SystemSettingsService
}

// testUser is a signed-up account and its session token.
type testUser struct {
	ID       uuid.UUID
	Username string
	Token    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	middleware.InitAuth(testJWTSecret, time.Hour)

	db, err := gorm.Open(sqlite.Open(":memory:"), utils.NewGormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, utils.Migrate(db))

	ctx := context.Background()
	settings := service.NewSystemSettingsService(db)
	require.NoError(t, settings.InitDefaultSettings(ctx))
	templates := service.NewNotificationTemplateService(db)
	require.NoError(t, templates.InitDefaultTemplates(ctx))
	accounts := service.NewAccountService(db, middleware.GenerateToken)
	require.NoError(t, accounts.InitDefaultRoles(ctx))

	friends := service.NewFriendshipService(db)
	types := service.NewTouchTypeService(db)
	touches := service.NewTouchService(db, friends, types, settings)
	pushes := service.NewPushService(db, templates, settings)
	touches.SetNotifier(pushes)

	hub := NewHub(nil)
	pushes.AddTransport(hub)

	srv := httptest.NewServer(NewRouter(Services{
		Accounts:  accounts,
		Friends:   friends,
		Types:     types,
		Touches:   touches,
		Feeds:     service.NewFeedService(db, friends),
		Favorites: service.NewFavoriteService(db, nil, types),
		Pushes:    pushes,
		Templates: templates,
		Settings:  settings,
		Jobs:      job.NewRunner(db, types, settings),
		Hub:       hub,
	}))

	env := &testEnv{srv: srv, db: db, hub: hub, accounts: accounts, touches: touches, settings: settings}
	t.Cleanup(func() {
		srv.Close()
		touches.Wait()
		sqlDB.Close()
	})
	return env
}

// request sends a JSON request and decodes the response envelope.
func (e *testEnv) request(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, bodyReader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env), "body: %s", raw)
	return resp.StatusCode, env
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) decode(t *testing.T, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(e.Data, v))
}

func (e *testEnv) signup(t *testing.T) *testUser {
	t.Helper()
	username := fmt.Sprintf("%s_%s", gofakeit.Username(), uuid.NewString()[:8])
	status, resp := e.request(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"username": username,
		"password": "hunter22",
	})
	require.Equal(t, http.StatusOK, status, resp.Message)

	var session service.Session
	resp.decode(t, &session)
	return &testUser{ID: session.User.ID, Username: username, Token: session.Token}
}

// befriend runs the request and accept round trip between a and b.
func (e *testEnv) befriend(t *testing.T, a, b *testUser) {
	t.Helper()
	status, resp := e.request(t, http.MethodPost, "/api/v1/friends/"+b.ID.String()+"/request", a.Token, nil)
	require.Equal(t, http.StatusOK, status, resp.Message)
	status, resp = e.request(t, http.MethodPost, "/api/v1/friends/"+a.ID.String()+"/accept", b.Token, nil)
	require.Equal(t, http.StatusOK, status, resp.Message)
}

func (e *testEnv) createTouchType(t *testing.T, owner *testUser, private bool) uuid.UUID {
	t.Helper()
	status, resp := e.request(t, http.MethodPost, "/api/v1/touch-types", owner.Token, map[string]interface{}{
		"name":       gofakeit.HipsterWord(),
		"bg_color":   "#112233",
		"text_color": "#FFFFFF",
		"is_default": false,
		"is_private": private,
		"steps": []map[string]interface{}{
			{"durationMs": 1000, "textLong": "a poke", "textLongAfter": "poked", "textNotif": "poked you", "textShort": "poke"},
			{"durationMs": 2000, "textLong": "a hug", "textLongAfter": "hugged", "textNotif": "hugged you", "textShort": "hug"},
		},
	})
	require.Equal(t, http.StatusOK, status, resp.Message)

	var tt struct {
		ID uuid.UUID `json:"id"`
	}
	resp.decode(t, &tt)
	return tt.ID
}

func (e *testEnv) touch(t *testing.T, from, to *testUser, touchTypeID uuid.UUID, step int) (int, envelope) {
	t.Helper()
	return e.request(t, http.MethodPost, "/api/v1/touches", from.Token, map[string]interface{}{
		"toUserId":    to.ID.String(),
		"touchTypeId": touchTypeID.String(),
		"stepIndex":   step,
	})
}

func (e *testEnv) connectWebSocket(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitOnline polls until the hub has registered userID.
func (e *testEnv) waitOnline(t *testing.T, userID uuid.UUID) {
	t.Helper()
	require.Eventually(t, func() bool { return e.hub.IsOnline(userID) }, 2*time.Second, 20*time.Millisecond)
}

func wsReceive(conn *websocket.Conn, timeout time.Duration) (WSMessage, error) {
	conn.SetReadDeadline(time.Now().Add(timeout))
	var msg WSMessage
	err := conn.ReadJSON(&msg)
	return msg, err
}
