package swap

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rajivgeraev/rewear-api/internal/apperr"
	"github.com/rajivgeraev/rewear-api/internal/db/memory"
	"github.com/rajivgeraev/rewear-api/internal/models"
	"github.com/rajivgeraev/rewear-api/internal/notify"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingEmitter) Emit(e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEmitter) ofType(t notify.EventType) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *memory.Store
	events *recordingEmitter
	engine *Engine
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := memory.New()
	events := &recordingEmitter{}
	opts = append([]Option{WithRetry(3, 0)}, opts...)
	return &fixture{
		t:      t,
		ctx:    context.Background(),
		store:  store,
		events: events,
		engine: NewEngine(store, events, zap.NewNop(), opts...),
	}
}

func (f *fixture) user(points int) uuid.UUID {
	return f.store.PutUser(models.User{Points: points}).ID
}

func (f *fixture) item(owner uuid.UUID) uuid.UUID {
	f.t.Helper()
	it := &models.Item{
		UserID:      owner,
		Title:       "Джинсовая куртка",
		Category:    "women",
		IsAvailable: true,
		IsApproved:  true,
		Status:      models.ItemStatusApproved,
	}
	require.NoError(f.t, f.store.CreateItem(f.ctx, it))
	return it.ID
}

func (f *fixture) balance(id uuid.UUID) int {
	f.t.Helper()
	u, err := f.store.GetUser(f.ctx, id)
	require.NoError(f.t, err)
	return u.Points
}

func (f *fixture) available(id uuid.UUID) bool {
	f.t.Helper()
	it, err := f.store.GetItem(f.ctx, id)
	require.NoError(f.t, err)
	return it.IsAvailable
}

func (f *fixture) swap(id uuid.UUID) *models.SwapRequest {
	f.t.Helper()
	s, err := f.store.GetSwap(f.ctx, id)
	require.NoError(f.t, err)
	return s
}

// itemSwap создает запрос обмена вещи на вещь между двумя новыми пользователями
func (f *fixture) itemSwap() (s *models.SwapRequest, requester, owner uuid.UUID) {
	f.t.Helper()
	requester, owner = f.user(0), f.user(0)
	requested, offered := f.item(owner), f.item(requester)
	s, err := f.engine.Create(f.ctx, CreateInput{
		RequesterID:     requester,
		RequestedItemID: requested,
		OfferedItemID:   &offered,
		Message:         "Давай меняться",
	})
	require.NoError(f.t, err)
	return s, requester, owner
}

// pointsSwap создает запрос обмена на баллы
func (f *fixture) pointsSwap(balance, points int) (s *models.SwapRequest, requester, owner uuid.UUID) {
	f.t.Helper()
	requester, owner = f.user(balance), f.user(0)
	requested := f.item(owner)
	s, err := f.engine.Create(f.ctx, CreateInput{
		RequesterID:        requester,
		RequestedItemID:    requested,
		IsPointsRedemption: true,
		PointsOffered:      points,
	})
	require.NoError(f.t, err)
	return s, requester, owner
}

func requireKind(t *testing.T, want apperr.Kind, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want, apperr.KindOf(err), "error: %v", err)
}

func TestCreate_ItemSwap(t *testing.T) {
	f := newFixture(t)
	s, requester, owner := f.itemSwap()

	assert.Equal(t, models.SwapPending, s.Status)
	assert.Equal(t, requester, s.RequesterID)
	assert.Equal(t, owner, s.RequestedOwnerID)
	require.NotNil(t, s.OfferedOwnerID)
	assert.Equal(t, requester, *s.OfferedOwnerID)
	assert.False(t, s.IsPointsRedemption)

	created := f.events.ofType(notify.EventSwapCreated)
	require.Len(t, created, 1)
	assert.Equal(t, owner, created[0].RecipientID)
	assert.Equal(t, s.ID, *created[0].SwapID)

	assert.True(t, f.available(s.RequestedItemID), "pending swap does not lock items")
	assert.True(t, f.available(*s.OfferedItemID))
}

func TestCreate_ItemSwapIgnoresPoints(t *testing.T) {
	f := newFixture(t)
	requester, owner := f.user(0), f.user(0)
	requested, offered := f.item(owner), f.item(requester)

	s, err := f.engine.Create(f.ctx, CreateInput{
		RequesterID:     requester,
		RequestedItemID: requested,
		OfferedItemID:   &offered,
		PointsOffered:   3,
	})
	require.NoError(t, err)
	assert.False(t, s.IsPointsRedemption)
	assert.Zero(t, s.PointsOffered)
}

func TestCreate_Preconditions(t *testing.T) {
	f := newFixture(t)
	requester, owner, stranger := f.user(20), f.user(0), f.user(0)
	requested := f.item(owner)
	offered := f.item(requester)
	strangerItem := f.item(stranger)
	ownerSecond := f.item(owner)
	unavailable := f.item(owner)
	offeredUnavailable := f.item(requester)
	require.NoError(t, f.store.SetItemsAvailability(f.ctx, false, unavailable, offeredUnavailable))
	missing := uuid.New()
	longText := strings.Repeat("я", maxMessageLen+1)

	tests := []struct {
		name string
		in   CreateInput
		want apperr.Kind
	}{
		{
			name: "requested item missing",
			in:   CreateInput{RequesterID: requester, RequestedItemID: missing, OfferedItemID: &offered},
			want: apperr.NotFound,
		},
		{
			name: "offered item missing",
			in:   CreateInput{RequesterID: requester, RequestedItemID: requested, OfferedItemID: &missing},
			want: apperr.NotFound,
		},
		{
			name: "requested item unavailable",
			in:   CreateInput{RequesterID: requester, RequestedItemID: unavailable, OfferedItemID: &offered},
			want: apperr.InvalidState,
		},
		{
			name: "offered item unavailable",
			in:   CreateInput{RequesterID: requester, RequestedItemID: requested, OfferedItemID: &offeredUnavailable},
			want: apperr.InvalidState,
		},
		{
			name: "own item regardless of offer",
			in:   CreateInput{RequesterID: owner, RequestedItemID: requested, OfferedItemID: &strangerItem},
			want: apperr.InvalidOperation,
		},
		{
			name: "own item as points redemption",
			in:   CreateInput{RequesterID: owner, RequestedItemID: requested, IsPointsRedemption: true, PointsOffered: 5},
			want: apperr.InvalidOperation,
		},
		{
			name: "offering someone else's item",
			in:   CreateInput{RequesterID: requester, RequestedItemID: requested, OfferedItemID: &strangerItem},
			want: apperr.Forbidden,
		},
		{
			name: "offering the owner's own item back",
			in:   CreateInput{RequesterID: requester, RequestedItemID: requested, OfferedItemID: &ownerSecond},
			want: apperr.Forbidden,
		},
		{
			name: "zero points",
			in:   CreateInput{RequesterID: requester, RequestedItemID: requested, IsPointsRedemption: true},
			want: apperr.InvalidInput,
		},
		{
			name: "negative points",
			in:   CreateInput{RequesterID: requester, RequestedItemID: requested, IsPointsRedemption: true, PointsOffered: -5},
			want: apperr.InvalidInput,
		},
		{
			name: "points above balance",
			in:   CreateInput{RequesterID: requester, RequestedItemID: requested, IsPointsRedemption: true, PointsOffered: 21},
			want: apperr.InsufficientFunds,
		},
		{
			name: "item swap without offered item",
			in:   CreateInput{RequesterID: requester, RequestedItemID: requested},
			want: apperr.InvalidInput,
		},
		{
			name: "message too long",
			in:   CreateInput{RequesterID: requester, RequestedItemID: requested, OfferedItemID: &offered, Message: longText},
			want: apperr.InvalidInput,
		},
		{
			name: "contact email without at sign",
			in: CreateInput{RequesterID: requester, RequestedItemID: requested, OfferedItemID: &offered,
				Meeting: models.Meeting{ContactEmail: "nope"}},
			want: apperr.InvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Create(f.ctx, tt.in)
			requireKind(t, tt.want, err)
		})
	}

	stats, err := f.engine.Stats(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalRequests, "rejected preconditions write nothing")
	assert.Empty(t, f.events.ofType(notify.EventSwapCreated))
	assert.Equal(t, 20, f.balance(requester))
}

func TestCreate_NormalizesMeeting(t *testing.T) {
	f := newFixture(t)
	requester, owner := f.user(0), f.user(0)
	requested, offered := f.item(owner), f.item(requester)

	s, err := f.engine.Create(f.ctx, CreateInput{
		RequesterID:     requester,
		RequestedItemID: requested,
		OfferedItemID:   &offered,
		Message:         "  привет  ",
		Meeting:         models.Meeting{Location: " Метро Арбатская ", ContactEmail: " Anna@Example.COM "},
	})
	require.NoError(t, err)
	assert.Equal(t, "привет", s.Message)
	assert.Equal(t, "Метро Арбатская", s.Meeting.Location)
	assert.Equal(t, "anna@example.com", s.Meeting.ContactEmail)
}

func TestCreate_PointsRedemptionWithOfferedItem(t *testing.T) {
	f := newFixture(t)
	requester, owner := f.user(40), f.user(0)
	requested, offered := f.item(owner), f.item(requester)

	s, err := f.engine.Create(f.ctx, CreateInput{
		RequesterID:        requester,
		RequestedItemID:    requested,
		OfferedItemID:      &offered,
		IsPointsRedemption: true,
		PointsOffered:      15,
	})
	require.NoError(t, err)

	_, err = f.engine.Respond(f.ctx, s.ID, Actor{ID: owner}, ActionAccept, "")
	require.NoError(t, err)
	assert.Equal(t, 25, f.balance(requester))
	assert.Equal(t, 15, f.balance(owner))
	assert.False(t, f.available(requested))
	assert.False(t, f.available(offered))
}

func TestCreate_DuplicateOutstanding(t *testing.T) {
	f := newFixture(t)
	s, requester, owner := f.itemSwap()
	again := CreateInput{RequesterID: requester, RequestedItemID: s.RequestedItemID, OfferedItemID: s.OfferedItemID}

	t.Run("while pending", func(t *testing.T) {
		_, err := f.engine.Create(f.ctx, again)
		requireKind(t, apperr.Conflict, err)
	})

	t.Run("while accepted", func(t *testing.T) {
		_, err := f.engine.Respond(f.ctx, s.ID, Actor{ID: owner}, ActionAccept, "")
		require.NoError(t, err)
		// Возвращаем вещи в оборот, чтобы проверка доступности не сработала раньше
		require.NoError(t, f.store.SetItemsAvailability(f.ctx, true, s.ItemIDs()...))

		_, err = f.engine.Create(f.ctx, again)
		requireKind(t, apperr.Conflict, err)
	})

	t.Run("allowed after completion", func(t *testing.T) {
		_, err := f.engine.Complete(f.ctx, s.ID, Actor{ID: requester})
		require.NoError(t, err)
		require.NoError(t, f.store.SetItemsAvailability(f.ctx, true, s.ItemIDs()...))

		_, err = f.engine.Create(f.ctx, again)
		assert.NoError(t, err)
	})
}

func TestCreate_AllowedAfterRejectOrCancel(t *testing.T) {
	f := newFixture(t)

	t.Run("rejected", func(t *testing.T) {
		s, requester, owner := f.itemSwap()
		_, err := f.engine.Respond(f.ctx, s.ID, Actor{ID: owner}, ActionReject, "нет")
		require.NoError(t, err)

		_, err = f.engine.Create(f.ctx, CreateInput{RequesterID: requester, RequestedItemID: s.RequestedItemID, OfferedItemID: s.OfferedItemID})
		assert.NoError(t, err)
	})

	t.Run("cancelled", func(t *testing.T) {
		s, requester, _ := f.itemSwap()
		_, err := f.engine.Cancel(f.ctx, s.ID, Actor{ID: requester}, "передумал")
		require.NoError(t, err)

		_, err = f.engine.Create(f.ctx, CreateInput{RequesterID: requester, RequestedItemID: s.RequestedItemID, OfferedItemID: s.OfferedItemID})
		assert.NoError(t, err)
	})
}

func TestRespond_AcceptPointsRedemption(t *testing.T) {
	f := newFixture(t)
	s, requester, owner := f.pointsSwap(50, 30)

	got, err := f.engine.Respond(f.ctx, s.ID, Actor{ID: owner}, ActionAccept, "Договорились")
	require.NoError(t, err)

	assert.Equal(t, models.SwapAccepted, got.Status)
	assert.Equal(t, "Договорились", got.ResponseMessage)
	require.NotNil(t, got.RespondedAt)
	assert.Equal(t, 20, f.balance(requester))
	assert.Equal(t, 30, f.balance(owner))
	assert.False(t, f.available(s.RequestedItemID))

	responded := f.events.ofType(notify.EventSwapResponded)
	require.Len(t, responded, 1)
	assert.Equal(t, requester, responded[0].RecipientID)

	earned := f.events.ofType(notify.EventPointsEarned)
	require.Len(t, earned, 1)
	assert.Equal(t, owner, earned[0].RecipientID)
	assert.Equal(t, 30, earned[0].Points)
}

func TestRespond_AcceptRechecksBalance(t *testing.T) {
	f := newFixture(t)
	s, requester, owner := f.pointsSwap(50, 30)

	// Баллы потрачены между созданием и принятием
	_, err := f.store.AdjustPoints(f.ctx, requester, -40)
	require.NoError(t, err)

	_, err = f.engine.Respond(f.ctx, s.ID, Actor{ID: owner}, ActionAccept, "")
	requireKind(t, apperr.InsufficientFunds, err)

	assert.Equal(t, models.SwapPending, f.swap(s.ID).Status)
	assert.Equal(t, 10, f.balance(requester))
	assert.Zero(t, f.balance(owner))
	assert.True(t, f.available(s.RequestedItemID))
	assert.Empty(t, f.events.ofType(notify.EventSwapResponded))
}

func TestRespond_AcceptItemSwap(t *testing.T) {
	f := newFixture(t)
	s, requester, owner := f.itemSwap()

	_, err := f.engine.Respond(f.ctx, s.ID, Actor{ID: owner}, ActionAccept, "")
	require.NoError(t, err)

	assert.False(t, f.available(s.RequestedItemID))
	assert.False(t, f.available(*s.OfferedItemID))
	assert.Zero(t, f.balance(requester))
	assert.Zero(t, f.balance(owner))
}

func TestRespond_AcceptFailsWhenItemAlreadyTaken(t *testing.T) {
	f := newFixture(t)
	first, _, owner := f.itemSwap()

	// Второй пользователь просит ту же вещь
	other := f.user(0)
	otherItem := f.item(other)
	second, err := f.engine.Create(f.ctx, CreateInput{RequesterID: other, RequestedItemID: first.RequestedItemID, OfferedItemID: &otherItem})
	require.NoError(t, err)

	_, err = f.engine.Respond(f.ctx, first.ID, Actor{ID: owner}, ActionAccept, "")
	require.NoError(t, err)

	_, err = f.engine.Respond(f.ctx, second.ID, Actor{ID: owner}, ActionAccept, "")
	requireKind(t, apperr.InvalidState, err)
	assert.Equal(t, models.SwapPending, f.swap(second.ID).Status)
	assert.True(t, f.available(otherItem))
}

func TestRespond_RejectKeepsItemsAvailable(t *testing.T) {
	f := newFixture(t)
	s, _, owner := f.itemSwap()

	got, err := f.engine.Respond(f.ctx, s.ID, Actor{ID: owner}, ActionReject, "Не мой размер")
	require.NoError(t, err)

	assert.Equal(t, models.SwapRejected, got.Status)
	assert.True(t, f.available(s.RequestedItemID))
	assert.True(t, f.available(*s.OfferedItemID))
}

func TestRespond_Authorization(t *testing.T) {
	f := newFixture(t)

	t.Run("stranger is forbidden", func(t *testing.T) {
		s, _, _ := f.itemSwap()
		_, err := f.engine.Respond(f.ctx, s.ID, Actor{ID: f.user(0)}, ActionAccept, "")
		requireKind(t, apperr.Forbidden, err)
		assert.Equal(t, models.SwapPending, f.swap(s.ID).Status)
	})

	t.Run("requester without offered item is forbidden", func(t *testing.T) {
		s, requester, _ := f.pointsSwap(10, 5)
		_, err := f.engine.Respond(f.ctx, s.ID, Actor{ID: requester}, ActionAccept, "")
		requireKind(t, apperr.Forbidden, err)
	})

	t.Run("admin may respond", func(t *testing.T) {
		s, _, _ := f.itemSwap()
		got, err := f.engine.Respond(f.ctx, s.ID, NewActor(f.user(0), models.RoleAdmin), ActionReject, "")
		require.NoError(t, err)
		assert.Equal(t, models.SwapRejected, got.Status)
	})

	t.Run("missing request", func(t *testing.T) {
		_, err := f.engine.Respond(f.ctx, uuid.New(), Actor{ID: f.user(0)}, ActionAccept, "")
		requireKind(t, apperr.NotFound, err)
	})
}

func TestRespond_InvalidAction(t *testing.T) {
	f := newFixture(t)
	s, _, owner := f.itemSwap()

	_, err := f.engine.Respond(f.ctx, s.ID, Actor{ID: owner}, Action(42), "")
	requireKind(t, apperr.InvalidInput, err)

	_, err = ParseAction("approve")
	requireKind(t, apperr.InvalidInput, err)

	a, err := ParseAction(" Accept ")
	require.NoError(t, err)
	assert.Equal(t, ActionAccept, a)

	assert.Equal(t, models.SwapPending, f.swap(s.ID).Status)
}

func TestTransitions_WrongStateIsRepeatableFailure(t *testing.T) {
	f := newFixture(t)
	s, requester, owner := f.pointsSwap(50, 10)

	_, err := f.engine.Complete(f.ctx, s.ID, Actor{ID: requester})
	requireKind(t, apperr.InvalidState, err)

	_, err = f.engine.Respond(f.ctx, s.ID, Actor{ID: owner}, ActionReject, "")
	require.NoError(t, err)
	before := f.swap(s.ID)

	for i := 0; i < 2; i++ {
		_, err = f.engine.Respond(f.ctx, s.ID, Actor{ID: owner}, ActionAccept, "")
		requireKind(t, apperr.InvalidState, err)
		_, err = f.engine.Cancel(f.ctx, s.ID, Actor{ID: requester}, "")
		requireKind(t, apperr.InvalidState, err)
		_, err = f.engine.Complete(f.ctx, s.ID, Actor{ID: requester})
		requireKind(t, apperr.InvalidState, err)
	}

	assert.Equal(t, before, f.swap(s.ID))
	assert.Equal(t, 50, f.balance(requester))
	assert.Zero(t, f.balance(owner))
	assert.True(t, f.available(s.RequestedItemID))
}

func TestTransitions_AcceptedCannotBeCancelledOrRespondedAgain(t *testing.T) {
	f := newFixture(t)
	s, requester, owner := f.itemSwap()
	_, err := f.engine.Respond(f.ctx, s.ID, Actor{ID: owner}, ActionAccept, "")
	require.NoError(t, err)

	_, err = f.engine.Cancel(f.ctx, s.ID, Actor{ID: requester}, "")
	requireKind(t, apperr.InvalidState, err)
	_, err = f.engine.Respond(f.ctx, s.ID, Actor{ID: owner}, ActionReject, "")
	requireKind(t, apperr.InvalidState, err)
	assert.Equal(t, models.SwapAccepted, f.swap(s.ID).Status)
}

func TestCancel(t *testing.T) {
	now := time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return now }))

	t.Run("requester cancels", func(t *testing.T) {
		s, requester, owner := f.itemSwap()
		got, err := f.engine.Cancel(f.ctx, s.ID, Actor{ID: requester}, " Нашел другую ")
		require.NoError(t, err)

		assert.Equal(t, models.SwapCancelled, got.Status)
		require.NotNil(t, got.CancelledBy)
		assert.Equal(t, requester, *got.CancelledBy)
		require.NotNil(t, got.CancelledAt)
		assert.True(t, now.Equal(*got.CancelledAt))
		assert.Equal(t, "Нашел другую", got.CancellationReason)
		assert.True(t, f.available(s.RequestedItemID))

		cancelled := f.events.ofType(notify.EventSwapCancelled)
		require.Len(t, cancelled, 1)
		assert.Equal(t, owner, cancelled[0].RecipientID)
	})

	t.Run("owner cancels", func(t *testing.T) {
		s, _, owner := f.itemSwap()
		_, err := f.engine.Cancel(f.ctx, s.ID, Actor{ID: owner}, "")
		assert.NoError(t, err)
	})

	t.Run("stranger is forbidden", func(t *testing.T) {
		s, _, _ := f.itemSwap()
		_, err := f.engine.Cancel(f.ctx, s.ID, Actor{ID: f.user(0)}, "")
		requireKind(t, apperr.Forbidden, err)
	})

	t.Run("reason too long", func(t *testing.T) {
		s, requester, _ := f.itemSwap()
		_, err := f.engine.Cancel(f.ctx, s.ID, Actor{ID: requester}, strings.Repeat("x", maxReasonLen+1))
		requireKind(t, apperr.InvalidInput, err)
		assert.Equal(t, models.SwapPending, f.swap(s.ID).Status)
	})
}

func TestComplete_ItemSwapRewardsEachPartyOnce(t *testing.T) {
	now := time.Date(2025, 6, 1, 18, 30, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return now }))
	s, requester, owner := f.itemSwap()

	_, err := f.engine.Respond(f.ctx, s.ID, Actor{ID: owner}, ActionAccept, "")
	require.NoError(t, err)

	got, err := f.engine.Complete(f.ctx, s.ID, Actor{ID: owner})
	require.NoError(t, err)

	assert.Equal(t, models.SwapCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, now.Equal(*got.CompletedAt))
	assert.Equal(t, 10, f.balance(requester))
	assert.Equal(t, 10, f.balance(owner))

	completed := f.events.ofType(notify.EventSwapCompleted)
	assert.Len(t, completed, 2)
	earned := f.events.ofType(notify.EventPointsEarned)
	assert.Len(t, earned, 2)
}

func TestComplete_PointsScenario(t *testing.T) {
	f := newFixture(t)
	s, u1, u2 := f.pointsSwap(50, 30)
	assert.Equal(t, models.SwapPending, s.Status)

	_, err := f.engine.Respond(f.ctx, s.ID, Actor{ID: u2}, ActionAccept, "")
	require.NoError(t, err)
	assert.Equal(t, 20, f.balance(u1))
	assert.Equal(t, 30, f.balance(u2))
	assert.False(t, f.available(s.RequestedItemID))

	_, err = f.engine.Complete(f.ctx, s.ID, Actor{ID: u1})
	require.NoError(t, err)
	assert.Equal(t, 30, f.balance(u1))
	assert.Equal(t, 40, f.balance(u2))
}

func TestComplete_CustomReward(t *testing.T) {
	f := newFixture(t, WithReward(0))
	s, requester, owner := f.itemSwap()
	_, err := f.engine.Respond(f.ctx, s.ID, Actor{ID: owner}, ActionAccept, "")
	require.NoError(t, err)

	_, err = f.engine.Complete(f.ctx, s.ID, Actor{ID: requester})
	require.NoError(t, err)
	assert.Zero(t, f.balance(requester))
	assert.Empty(t, f.events.ofType(notify.EventPointsEarned))
}

func TestComplete_Authorization(t *testing.T) {
	f := newFixture(t)
	s, _, owner := f.itemSwap()
	_, err := f.engine.Respond(f.ctx, s.ID, Actor{ID: owner}, ActionAccept, "")
	require.NoError(t, err)

	_, err = f.engine.Complete(f.ctx, s.ID, Actor{ID: f.user(0)})
	requireKind(t, apperr.Forbidden, err)

	_, err = f.engine.Complete(f.ctx, s.ID, Actor{ID: f.user(0), Admin: true})
	assert.NoError(t, err)
}

func TestCreate_RetriesUnavailableStore(t *testing.T) {
	f := newFixture(t)
	requester, owner := f.user(0), f.user(0)
	requested, offered := f.item(owner), f.item(requester)

	f.store.FailNext("CreateSwap", apperr.New(apperr.Unavailable, "нет связи с базой"))

	s, err := f.engine.Create(f.ctx, CreateInput{RequesterID: requester, RequestedItemID: requested, OfferedItemID: &offered})
	require.NoError(t, err)
	assert.Equal(t, models.SwapPending, s.Status)
	assert.Len(t, f.events.ofType(notify.EventSwapCreated), 1)
}

func TestComplete_RetriesUnavailableStore(t *testing.T) {
	f := newFixture(t)
	s, requester, owner := f.itemSwap()
	_, err := f.engine.Respond(f.ctx, s.ID, Actor{ID: owner}, ActionAccept, "")
	require.NoError(t, err)

	f.store.FailNext("UpdateSwap", apperr.New(apperr.Unavailable, "нет связи с базой"))

	got, err := f.engine.Complete(f.ctx, s.ID, Actor{ID: requester})
	require.NoError(t, err)
	assert.Equal(t, models.SwapCompleted, got.Status)
	assert.Equal(t, 10, f.balance(requester), "credits from the failed attempt were rolled back")
	assert.Equal(t, 10, f.balance(owner))
}

func TestComplete_FailureLeavesSwapAccepted(t *testing.T) {
	f := newFixture(t, WithRetry(1, 0))
	s, requester, owner := f.itemSwap()
	_, err := f.engine.Respond(f.ctx, s.ID, Actor{ID: owner}, ActionAccept, "")
	require.NoError(t, err)

	f.store.FailNext("AdjustPoints", apperr.New(apperr.Unavailable, "нет связи с базой"))

	_, err = f.engine.Complete(f.ctx, s.ID, Actor{ID: requester})
	requireKind(t, apperr.Unavailable, err)
	assert.Equal(t, models.SwapAccepted, f.swap(s.ID).Status)
	assert.Zero(t, f.balance(requester))
	assert.Zero(t, f.balance(owner))
	assert.Empty(t, f.events.ofType(notify.EventSwapCompleted))
}

func TestRespond_NonRetryableErrorIsNotRetried(t *testing.T) {
	f := newFixture(t)
	s, _, owner := f.itemSwap()

	f.store.FailNext("UpdateSwap", errors.New("constraint"))
	_, err := f.engine.Respond(f.ctx, s.ID, Actor{ID: owner}, ActionAccept, "")
	requireKind(t, apperr.Internal, err)

	assert.Equal(t, models.SwapPending, f.swap(s.ID).Status)
	assert.True(t, f.available(s.RequestedItemID), "availability flip rolled back with the status")
}

func TestConcurrentAcceptSucceedsOnce(t *testing.T) {
	f := newFixture(t)
	s, requester, owner := f.pointsSwap(50, 30)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Respond(f.ctx, s.ID, Actor{ID: owner}, ActionAccept, "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, apperr.InvalidState, apperr.KindOf(err))
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 20, f.balance(requester))
	assert.Equal(t, 30, f.balance(owner))
}

func TestConcurrentRedemptionsCannotOverspend(t *testing.T) {
	f := newFixture(t)
	requester, owner := f.user(50), f.user(0)

	var swaps []*models.SwapRequest
	for i := 0; i < 2; i++ {
		s, err := f.engine.Create(f.ctx, CreateInput{
			RequesterID:        requester,
			RequestedItemID:    f.item(owner),
			IsPointsRedemption: true,
			PointsOffered:      30,
		})
		require.NoError(t, err)
		swaps = append(swaps, s)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(swaps))
	for i, s := range swaps {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, errs[i] = f.engine.Respond(f.ctx, id, Actor{ID: owner}, ActionAccept, "")
		}(i, s.ID)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			assert.Equal(t, apperr.InsufficientFunds, apperr.KindOf(err))
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 20, f.balance(requester))
	assert.Equal(t, 30, f.balance(owner))
}

func TestNotificationFailureDoesNotFailOperation(t *testing.T) {
	store := memory.New()
	failing := notify.NotifierFunc(func(context.Context, notify.Event) error { return errors.New("smtp down") })
	dispatcher := notify.NewDispatcher(zap.NewNop(), nil, 4, time.Second, notify.Sink{Name: "email", Notifier: failing})
	dispatcher.Start()
	defer dispatcher.Close()

	engine := NewEngine(store, dispatcher, zap.NewNop())
	ctx := context.Background()
	requester, owner := store.PutUser(models.User{}), store.PutUser(models.User{})
	requested := &models.Item{UserID: owner.ID, IsAvailable: true}
	offered := &models.Item{UserID: requester.ID, IsAvailable: true}
	require.NoError(t, store.CreateItem(ctx, requested))
	require.NoError(t, store.CreateItem(ctx, offered))

	s, err := engine.Create(ctx, CreateInput{RequesterID: requester.ID, RequestedItemID: requested.ID, OfferedItemID: &offered.ID})
	require.NoError(t, err)
	_, err = engine.Respond(ctx, s.ID, Actor{ID: owner.ID}, ActionAccept, "")
	require.NoError(t, err)
	_, err = engine.Complete(ctx, s.ID, Actor{ID: owner.ID})
	require.NoError(t, err)
}

func TestQueries(t *testing.T) {
	f := newFixture(t)
	s, requester, owner := f.itemSwap()
	stranger := f.user(0)

	t.Run("get", func(t *testing.T) {
		got, err := f.engine.Get(f.ctx, s.ID, Actor{ID: requester})
		require.NoError(t, err)
		assert.Equal(t, s.ID, got.ID)

		_, err = f.engine.Get(f.ctx, s.ID, Actor{ID: stranger})
		requireKind(t, apperr.Forbidden, err)

		_, err = f.engine.Get(f.ctx, s.ID, Actor{ID: stranger, Admin: true})
		assert.NoError(t, err)
	})

	t.Run("list for user", func(t *testing.T) {
		// Владелец получает еще один запрос от другого пользователя
		other := f.user(0)
		otherItem := f.item(other)
		_, err := f.engine.Create(f.ctx, CreateInput{RequesterID: other, RequestedItemID: s.RequestedItemID, OfferedItemID: &otherItem})
		require.NoError(t, err)

		swaps, page, err := f.engine.ListForUser(f.ctx, owner, "", Page{Page: 1, Limit: 1})
		require.NoError(t, err)
		assert.Len(t, swaps, 1)
		assert.Equal(t, 2, page.Total)
		assert.Equal(t, 2, page.TotalPages)

		swaps, _, err = f.engine.ListForUser(f.ctx, requester, models.SwapPending, Page{})
		require.NoError(t, err)
		assert.Len(t, swaps, 1)

		_, _, err = f.engine.ListForUser(f.ctx, requester, "archived", Page{})
		requireKind(t, apperr.InvalidInput, err)
	})

	t.Run("pending for item", func(t *testing.T) {
		swaps, page, err := f.engine.PendingForItem(f.ctx, s.RequestedItemID, Actor{ID: owner}, Page{})
		require.NoError(t, err)
		assert.Len(t, swaps, 2)
		assert.Equal(t, defaultPageSize, page.Limit)

		_, _, err = f.engine.PendingForItem(f.ctx, s.RequestedItemID, Actor{ID: requester}, Page{})
		requireKind(t, apperr.Forbidden, err)

		_, _, err = f.engine.PendingForItem(f.ctx, uuid.New(), Actor{ID: owner}, Page{})
		requireKind(t, apperr.NotFound, err)
	})

	t.Run("stats", func(t *testing.T) {
		_, err := f.engine.Respond(f.ctx, s.ID, Actor{ID: owner}, ActionReject, "")
		require.NoError(t, err)

		stats, err := f.engine.Stats(f.ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.TotalRequests)
		assert.Equal(t, 1, stats.PendingRequests)
		assert.Equal(t, 1, stats.RejectedRequests)
	})
}

func TestAnnotate(t *testing.T) {
	f := newFixture(t)
	s, requester, _ := f.itemSwap()

	_, err := f.engine.Annotate(f.ctx, s.ID, Actor{ID: requester}, "заметка")
	requireKind(t, apperr.Forbidden, err)

	got, err := f.engine.Annotate(f.ctx, s.ID, Actor{ID: f.user(0), Admin: true}, " проверено ")
	require.NoError(t, err)
	assert.Equal(t, "проверено", got.AdminNotes)
	assert.Equal(t, models.SwapPending, got.Status)
}
