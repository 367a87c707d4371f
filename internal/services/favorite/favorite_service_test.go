package favorite

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rajivgeraev/rewear-api/internal/apperr"
	"github.com/rajivgeraev/rewear-api/internal/db/memory"
	"github.com/rajivgeraev/rewear-api/internal/middleware"
	"github.com/rajivgeraev/rewear-api/internal/models"
	"github.com/rajivgeraev/rewear-api/internal/services/item"
	"github.com/rajivgeraev/rewear-api/internal/utils"
)

type testEnv struct {
	store *memory.Store
	svc   *FavoriteService
	app   *fiber.App
	jwt   *utils.JWTService
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New()
	jwtService := utils.NewJWTService("secret")
	catalog := item.NewCatalog(store, nil, nil, nil, nil, zap.NewNop())
	svc := NewFavoriteService(store, catalog, nil, jwtService, zap.NewNop())

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(zap.NewNop())})
	svc.SetupRoutes(app)
	return &testEnv{store: store, svc: svc, app: app, jwt: jwtService}
}

func (e *testEnv) item(t *testing.T) uuid.UUID {
	t.Helper()
	owner := e.store.PutUser(models.User{}).ID
	it := &models.Item{UserID: owner, Title: "Кеды", Category: "shoes", IsAvailable: true, IsApproved: true, Status: models.ItemStatusApproved}
	require.NoError(t, e.store.CreateItem(context.Background(), it))
	return it.ID
}

func (e *testEnv) call(t *testing.T, method, path string, userID uuid.UUID, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token, err := e.jwt.GenerateToken(userID, "")
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := e.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestToggle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	itemID := e.item(t)
	user := uuid.New()

	liked, count, err := e.svc.Toggle(ctx, user, itemID)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, 1, count)

	liked, count, err = e.svc.Toggle(ctx, user, itemID)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Equal(t, 0, count)

	_, _, err = e.svc.Toggle(ctx, user, uuid.New())
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestFavoritesAPI(t *testing.T) {
	e := newEnv(t)
	itemID := e.item(t)
	user := e.store.PutUser(models.User{}).ID

	status, body := e.call(t, http.MethodPost, "/api/favorites", user, fiber.Map{"item_id": itemID.String()})
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.EqualValues(t, 1, body["likes_count"])

	status, _ = e.call(t, http.MethodPost, "/api/favorites", user, fiber.Map{"item_id": itemID.String()})
	assert.Equal(t, fiber.StatusConflict, status)

	status, body = e.call(t, http.MethodGet, "/api/favorites/"+itemID.String()+"/check", user, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["is_favorite"])

	status, body = e.call(t, http.MethodGet, "/api/favorites", user, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["items"], 1)

	status, _ = e.call(t, http.MethodDelete, "/api/favorites/"+itemID.String(), user, nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = e.call(t, http.MethodDelete, "/api/favorites/"+itemID.String(), user, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = e.call(t, http.MethodPost, "/api/favorites/"+itemID.String()+"/toggle", user, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["is_liked"])

	status, _ = e.call(t, http.MethodPost, "/api/favorites", user, fiber.Map{"item_id": "nope"})
	assert.Equal(t, fiber.StatusBadRequest, status)
}
