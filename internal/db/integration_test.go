//go:build integration
// +build integration

package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rajivgeraev/rewear-api/internal/apperr"
	"github.com/rajivgeraev/rewear-api/internal/db"
	"github.com/rajivgeraev/rewear-api/internal/models"
	"github.com/rajivgeraev/rewear-api/internal/repository"
)

// setupStore поднимает PostgreSQL в контейнере и применяет схему
func setupStore(t *testing.T) *db.Store {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("rewear"),
		postgres.WithUsername("rewear"),
		postgres.WithPassword("rewear"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("не удалось остановить контейнер: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool))
	// Повторное применение схемы не должно падать
	require.NoError(t, db.Migrate(ctx, pool))

	return db.NewStore(pool, 5*time.Second)
}

func newUser(t *testing.T, s *db.Store, telegramID int64, points int) *models.User {
	t.Helper()
	ctx := context.Background()
	u, err := s.UpsertTelegramUser(ctx, models.TelegramProfile{TelegramID: telegramID, FirstName: "Тест"})
	require.NoError(t, err)
	if points > 0 {
		u.Points, err = s.AdjustPoints(ctx, u.ID, points)
		require.NoError(t, err)
	}
	return u
}

func newItem(t *testing.T, s *db.Store, owner uuid.UUID, title string) *models.Item {
	t.Helper()
	item := &models.Item{
		UserID:      owner,
		Title:       title,
		Description: "описание",
		Category:    "women",
		Type:        "shirt",
		Size:        "M",
		Condition:   "good",
		Color:       "blue",
		Tags:        []string{"cotton"},
		Images:      []models.Image{{URL: "https://example.com/a.jpg", PublicID: "rewear/a", IsPrimary: true}},
		PointsValue: 20,
		IsAvailable: true,
		IsApproved:  true,
		Status:      models.ItemStatusApproved,
	}
	require.NoError(t, s.CreateItem(context.Background(), item))
	return item
}

func TestStoreIntegration(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	alice := newUser(t, s, 1001, 50)
	bob := newUser(t, s, 1002, 0)

	t.Run("repeat login updates profile", func(t *testing.T) {
		again, err := s.UpsertTelegramUser(ctx, models.TelegramProfile{TelegramID: 1001, FirstName: "Алиса"})
		require.NoError(t, err)
		assert.Equal(t, alice.ID, again.ID)
		assert.Equal(t, "Алиса", again.FirstName)
		assert.Equal(t, 50, again.Points)
	})

	t.Run("balance never goes negative", func(t *testing.T) {
		_, err := s.AdjustPoints(ctx, bob.ID, -1)
		assert.Equal(t, apperr.InsufficientFunds, apperr.KindOf(err))

		_, err = s.AdjustPoints(ctx, uuid.New(), 5)
		assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	})

	jacket := newItem(t, s, bob.ID, "Куртка")
	shirt := newItem(t, s, alice.ID, "Рубашка")

	t.Run("items round trip jsonb columns", func(t *testing.T) {
		got, err := s.GetItem(ctx, jacket.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"cotton"}, got.Tags)
		require.Len(t, got.Images, 1)
		assert.Equal(t, "rewear/a", got.Images[0].PublicID)

		items, total, err := s.ListItems(ctx, models.ItemFilter{OwnerID: &bob.ID, OnlyListed: true})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Len(t, items, 1)

		_, total, err = s.ListItems(ctx, models.ItemFilter{Search: "Рубаш"})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("likes toggle", func(t *testing.T) {
		liked, count, err := s.ToggleFavorite(ctx, alice.ID, jacket.ID)
		require.NoError(t, err)
		assert.True(t, liked)
		assert.Equal(t, 1, count)

		items, _, err := s.ListItems(ctx, models.ItemFilter{LikedBy: &alice.ID})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, 1, items[0].LikesCount)

		liked, count, err = s.ToggleFavorite(ctx, alice.ID, jacket.ID)
		require.NoError(t, err)
		assert.False(t, liked)
		assert.Equal(t, 0, count)
	})

	var swap *models.SwapRequest
	t.Run("duplicate outstanding request conflicts", func(t *testing.T) {
		offered := shirt.ID
		swap = &models.SwapRequest{
			RequesterID:      alice.ID,
			RequestedItemID:  jacket.ID,
			RequestedOwnerID: bob.ID,
			OfferedItemID:    &offered,
			OfferedOwnerID:   &alice.ID,
			Message:          "Меняемся?",
		}
		require.NoError(t, s.CreateSwap(ctx, swap))
		assert.Equal(t, models.SwapPending, swap.Status)

		has, err := s.HasOutstandingSwap(ctx, alice.ID, jacket.ID)
		require.NoError(t, err)
		assert.True(t, has)

		dup := &models.SwapRequest{RequesterID: alice.ID, RequestedItemID: jacket.ID, RequestedOwnerID: bob.ID}
		err = s.CreateSwap(ctx, dup)
		assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
	})

	t.Run("failed tx rolls back every write", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
			locked, err := repos.GetSwapForUpdate(ctx, swap.ID)
			require.NoError(t, err)
			locked.Status = models.SwapAccepted
			require.NoError(t, repos.UpdateSwap(ctx, locked))
			require.NoError(t, repos.SetItemsAvailability(ctx, false, locked.ItemIDs()...))
			_, err = repos.AdjustPoints(ctx, alice.ID, -10)
			require.NoError(t, err)
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := s.GetSwap(ctx, swap.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SwapPending, got.Status)

		item, err := s.GetItem(ctx, jacket.ID)
		require.NoError(t, err)
		assert.True(t, item.IsAvailable)

		user, err := s.GetUser(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, 50, user.Points)
	})

	t.Run("cancel pending for item", func(t *testing.T) {
		n, err := s.CancelPendingForItem(ctx, shirt.ID, alice.ID, "вещь удалена", time.Now())
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := s.GetSwap(ctx, swap.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SwapCancelled, got.Status)
		require.NotNil(t, got.CancelledBy)
		assert.Equal(t, alice.ID, *got.CancelledBy)

		stats, err := s.SwapStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.TotalRequests)
		assert.Equal(t, 1, stats.CancelledRequests)

		swaps, total, err := s.ListSwaps(ctx, models.SwapFilter{ParticipantID: &bob.ID})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Len(t, swaps, 1)
	})

	t.Run("item stats", func(t *testing.T) {
		require.NoError(t, s.IncrementViews(ctx, jacket.ID))
		stats, err := s.ItemStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.TotalItems)
		assert.Equal(t, 2, stats.ApprovedItems)
		assert.Equal(t, 1, stats.TotalViews)
		assert.Equal(t, 2, stats.ByCategory["women"])
	})

	t.Run("delete item", func(t *testing.T) {
		require.NoError(t, s.DeleteItem(ctx, shirt.ID))
		_, err := s.GetItem(ctx, shirt.ID)
		assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
		assert.Equal(t, apperr.NotFound, apperr.KindOf(s.DeleteItem(ctx, shirt.ID)))
	})
}
