// Package memory реализует хранилища в памяти процесса. Используется в тестах и при
// STORE_DRIVER=memory для локальной разработки без PostgreSQL.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rajivgeraev/rewear-api/internal/apperr"
	"github.com/rajivgeraev/rewear-api/internal/models"
	"github.com/rajivgeraev/rewear-api/internal/repository"
)

type state struct {
	users    map[uuid.UUID]models.User
	telegram map[int64]uuid.UUID
	items    map[uuid.UUID]models.Item
	swaps    map[uuid.UUID]models.SwapRequest
	likes    map[uuid.UUID]map[uuid.UUID]time.Time // itemID -> userID -> время отметки
}

func newState() *state {
	return &state{
		users:    make(map[uuid.UUID]models.User),
		telegram: make(map[int64]uuid.UUID),
		items:    make(map[uuid.UUID]models.Item),
		swaps:    make(map[uuid.UUID]models.SwapRequest),
		likes:    make(map[uuid.UUID]map[uuid.UUID]time.Time),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.telegram {
		c.telegram[k] = v
	}
	for k, v := range s.items {
		c.items[k] = copyItem(v)
	}
	for k, v := range s.swaps {
		c.swaps[k] = v
	}
	for item, users := range s.likes {
		m := make(map[uuid.UUID]time.Time, len(users))
		for u, at := range users {
			m[u] = at
		}
		c.likes[item] = m
	}
	return c
}

// Store хранилище в памяти. Транзакции сериализуются одним мьютексом,
// при ошибке состояние восстанавливается из снимка.
type Store struct {
	mu     sync.Mutex
	st     *state
	now    func() time.Time
	faults map[string]error
}

var _ repository.UnitOfWork = (*Store)(nil)

// New создает пустое хранилище
func New() *Store {
	return &Store{st: newState(), now: time.Now, faults: make(map[string]error)}
}

// PutUser добавляет или заменяет пользователя. Нужен для наполнения тестовых данных.
func (s *Store) PutUser(u models.User) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	now := s.now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	s.st.users[u.ID] = u
	return &u
}

// SetClock подменяет источник времени
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailNext заставляет следующий вызов операции op вернуть err.
// Поддерживаются AdjustPoints, UpdateSwap, SetItemsAvailability, CreateSwap.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

// WithinTx выполняет fn атомарно относительно остальных операций хранилища
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(ctx, s.view()); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) view() *view {
	return &view{store: s}
}

func (s *Store) locked() (*view, func()) {
	s.mu.Lock()
	return s.view(), s.mu.Unlock
}

func (s *Store) CreateItem(ctx context.Context, item *models.Item) error {
	v, unlock := s.locked()
	defer unlock()
	return v.CreateItem(ctx, item)
}

func (s *Store) GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	v, unlock := s.locked()
	defer unlock()
	return v.GetItem(ctx, id)
}

func (s *Store) GetItemForUpdate(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	return s.GetItem(ctx, id)
}

func (s *Store) GetItemForShare(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	return s.GetItem(ctx, id)
}

func (s *Store) UpdateItem(ctx context.Context, item *models.Item) error {
	v, unlock := s.locked()
	defer unlock()
	return v.UpdateItem(ctx, item)
}

func (s *Store) SetItemsAvailability(ctx context.Context, available bool, ids ...uuid.UUID) error {
	v, unlock := s.locked()
	defer unlock()
	return v.SetItemsAvailability(ctx, available, ids...)
}

func (s *Store) DeleteItem(ctx context.Context, id uuid.UUID) error {
	v, unlock := s.locked()
	defer unlock()
	return v.DeleteItem(ctx, id)
}

func (s *Store) IncrementViews(ctx context.Context, id uuid.UUID) error {
	v, unlock := s.locked()
	defer unlock()
	return v.IncrementViews(ctx, id)
}

func (s *Store) ListItems(ctx context.Context, filter models.ItemFilter) ([]models.Item, int, error) {
	v, unlock := s.locked()
	defer unlock()
	return v.ListItems(ctx, filter)
}

func (s *Store) ItemStats(ctx context.Context) (*models.ItemStats, error) {
	v, unlock := s.locked()
	defer unlock()
	return v.ItemStats(ctx)
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	v, unlock := s.locked()
	defer unlock()
	return v.GetUser(ctx, id)
}

func (s *Store) AdjustPoints(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	v, unlock := s.locked()
	defer unlock()
	return v.AdjustPoints(ctx, id, delta)
}

func (s *Store) UpsertTelegramUser(ctx context.Context, profile models.TelegramProfile) (*models.User, error) {
	v, unlock := s.locked()
	defer unlock()
	return v.UpsertTelegramUser(ctx, profile)
}

func (s *Store) UpdateEmail(ctx context.Context, id uuid.UUID, email string) (*models.User, error) {
	v, unlock := s.locked()
	defer unlock()
	return v.UpdateEmail(ctx, id, email)
}

func (s *Store) CreateSwap(ctx context.Context, swap *models.SwapRequest) error {
	v, unlock := s.locked()
	defer unlock()
	return v.CreateSwap(ctx, swap)
}

func (s *Store) GetSwap(ctx context.Context, id uuid.UUID) (*models.SwapRequest, error) {
	v, unlock := s.locked()
	defer unlock()
	return v.GetSwap(ctx, id)
}

func (s *Store) GetSwapForUpdate(ctx context.Context, id uuid.UUID) (*models.SwapRequest, error) {
	return s.GetSwap(ctx, id)
}

func (s *Store) UpdateSwap(ctx context.Context, swap *models.SwapRequest) error {
	v, unlock := s.locked()
	defer unlock()
	return v.UpdateSwap(ctx, swap)
}

func (s *Store) HasOutstandingSwap(ctx context.Context, requesterID, requestedItemID uuid.UUID) (bool, error) {
	v, unlock := s.locked()
	defer unlock()
	return v.HasOutstandingSwap(ctx, requesterID, requestedItemID)
}

func (s *Store) CancelPendingForItem(ctx context.Context, itemID, actorID uuid.UUID, reason string, at time.Time) (int, error) {
	v, unlock := s.locked()
	defer unlock()
	return v.CancelPendingForItem(ctx, itemID, actorID, reason, at)
}

func (s *Store) ListSwaps(ctx context.Context, filter models.SwapFilter) ([]models.SwapRequest, int, error) {
	v, unlock := s.locked()
	defer unlock()
	return v.ListSwaps(ctx, filter)
}

func (s *Store) SwapStats(ctx context.Context) (*models.SwapStats, error) {
	v, unlock := s.locked()
	defer unlock()
	return v.SwapStats(ctx)
}

func (s *Store) ToggleFavorite(ctx context.Context, userID, itemID uuid.UUID) (bool, int, error) {
	v, unlock := s.locked()
	defer unlock()
	return v.ToggleFavorite(ctx, userID, itemID)
}

func (s *Store) IsFavorite(ctx context.Context, userID, itemID uuid.UUID) (bool, error) {
	v, unlock := s.locked()
	defer unlock()
	return v.IsFavorite(ctx, userID, itemID)
}

// view выполняет операции над состоянием; вызывающий держит мьютекс хранилища
type view struct {
	store *Store
}

func (v *view) fault(op string) error {
	if err, ok := v.store.faults[op]; ok {
		delete(v.store.faults, op)
		return err
	}
	return nil
}

func copyItem(it models.Item) models.Item {
	it.Tags = append([]string(nil), it.Tags...)
	it.Images = append([]models.Image(nil), it.Images...)
	return it
}

func (v *view) CreateItem(_ context.Context, item *models.Item) error {
	st := v.store.st
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if _, ok := st.users[item.UserID]; !ok {
		return apperr.New(apperr.NotFound, "владелец вещи не найден")
	}
	now := v.store.now()
	item.CreatedAt, item.UpdatedAt = now, now
	st.items[item.ID] = copyItem(*item)
	return nil
}

func (v *view) GetItem(_ context.Context, id uuid.UUID) (*models.Item, error) {
	it, ok := v.store.st.items[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "вещь не найдена")
	}
	it = copyItem(it)
	it.LikesCount = len(v.store.st.likes[id])
	return &it, nil
}

func (v *view) GetItemForUpdate(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	return v.GetItem(ctx, id)
}

func (v *view) GetItemForShare(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	return v.GetItem(ctx, id)
}

func (v *view) UpdateItem(_ context.Context, item *models.Item) error {
	st := v.store.st
	old, ok := st.items[item.ID]
	if !ok {
		return apperr.New(apperr.NotFound, "вещь не найдена")
	}
	updated := copyItem(*item)
	updated.CreatedAt = old.CreatedAt
	updated.UserID = old.UserID
	updated.Views = old.Views
	updated.UpdatedAt = v.store.now()
	st.items[item.ID] = updated
	item.UpdatedAt = updated.UpdatedAt
	return nil
}

func (v *view) SetItemsAvailability(_ context.Context, available bool, ids ...uuid.UUID) error {
	if err := v.fault("SetItemsAvailability"); err != nil {
		return err
	}
	st := v.store.st
	for _, id := range ids {
		it, ok := st.items[id]
		if !ok {
			return apperr.New(apperr.NotFound, "вещь %s не найдена", id)
		}
		it.IsAvailable = available
		it.UpdatedAt = v.store.now()
		st.items[id] = it
	}
	return nil
}

func (v *view) DeleteItem(_ context.Context, id uuid.UUID) error {
	st := v.store.st
	if _, ok := st.items[id]; !ok {
		return apperr.New(apperr.NotFound, "вещь не найдена")
	}
	delete(st.items, id)
	delete(st.likes, id)
	return nil
}

func (v *view) IncrementViews(_ context.Context, id uuid.UUID) error {
	st := v.store.st
	it, ok := st.items[id]
	if !ok {
		return apperr.New(apperr.NotFound, "вещь не найдена")
	}
	it.Views++
	st.items[id] = it
	return nil
}

func matchesItem(it models.Item, f models.ItemFilter, likes map[uuid.UUID]map[uuid.UUID]time.Time) bool {
	if f.OwnerID != nil && it.UserID != *f.OwnerID {
		return false
	}
	if f.Status != "" && it.Status != f.Status {
		return false
	}
	if f.OnlyListed && !(it.IsApproved && it.IsAvailable) {
		return false
	}
	if f.OnlyFeatured && !it.IsFeatured {
		return false
	}
	if f.LikedBy != nil {
		if _, ok := likes[it.ID][*f.LikedBy]; !ok {
			return false
		}
	}
	if f.Category != "" && it.Category != f.Category {
		return false
	}
	if f.Size != "" && it.Size != f.Size {
		return false
	}
	if f.Condition != "" && it.Condition != f.Condition {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		haystack := strings.ToLower(it.Title + " " + it.Description + " " + it.Brand + " " + strings.Join(it.Tags, " "))
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}

func page[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return []T{}
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end]
}

func (v *view) ListItems(_ context.Context, filter models.ItemFilter) ([]models.Item, int, error) {
	st := v.store.st
	var all []models.Item
	for _, it := range st.items {
		if matchesItem(it, filter, st.likes) {
			it = copyItem(it)
			it.LikesCount = len(st.likes[it.ID])
			all = append(all, it)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID.String() < all[j].ID.String()
	})
	return page(all, filter.Limit, filter.Offset), len(all), nil
}

func (v *view) ItemStats(_ context.Context) (*models.ItemStats, error) {
	st := v.store.st
	stats := &models.ItemStats{ByCategory: make(map[string]int)}
	for _, it := range st.items {
		stats.TotalItems++
		switch it.Status {
		case models.ItemStatusApproved:
			stats.ApprovedItems++
		case models.ItemStatusPending:
			stats.PendingItems++
		}
		if it.IsFeatured {
			stats.FeaturedItems++
		}
		stats.TotalViews += it.Views
		stats.TotalLikes += len(st.likes[it.ID])
		stats.ByCategory[it.Category]++
	}
	return stats, nil
}

func (v *view) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := v.store.st.users[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "пользователь не найден")
	}
	return &u, nil
}

func (v *view) AdjustPoints(_ context.Context, id uuid.UUID, delta int) (int, error) {
	if err := v.fault("AdjustPoints"); err != nil {
		return 0, err
	}
	st := v.store.st
	u, ok := st.users[id]
	if !ok {
		return 0, apperr.New(apperr.NotFound, "пользователь не найден")
	}
	if u.Points+delta < 0 {
		return u.Points, apperr.New(apperr.InsufficientFunds, "недостаточно баллов")
	}
	u.Points += delta
	u.UpdatedAt = v.store.now()
	st.users[id] = u
	return u.Points, nil
}

func (v *view) UpsertTelegramUser(_ context.Context, p models.TelegramProfile) (*models.User, error) {
	st := v.store.st
	now := v.store.now()
	if id, ok := st.telegram[p.TelegramID]; ok {
		u := st.users[id]
		u.Username, u.FirstName, u.LastName, u.AvatarURL = p.Username, p.FirstName, p.LastName, p.PhotoURL
		u.LastLoginAt = now
		u.UpdatedAt = now
		st.users[id] = u
		return &u, nil
	}
	u := models.User{
		ID:          uuid.New(),
		Username:    p.Username,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		AvatarURL:   p.PhotoURL,
		Role:        models.RoleUser,
		CreatedAt:   now,
		UpdatedAt:   now,
		LastLoginAt: now,
	}
	st.users[u.ID] = u
	st.telegram[p.TelegramID] = u.ID
	return &u, nil
}

func (v *view) UpdateEmail(_ context.Context, id uuid.UUID, email string) (*models.User, error) {
	st := v.store.st
	u, ok := st.users[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "пользователь не найден")
	}
	u.Email = email
	u.UpdatedAt = v.store.now()
	st.users[id] = u
	return &u, nil
}

func (v *view) CreateSwap(_ context.Context, swap *models.SwapRequest) error {
	if err := v.fault("CreateSwap"); err != nil {
		return err
	}
	st := v.store.st
	for _, existing := range st.swaps {
		if existing.RequesterID == swap.RequesterID && existing.RequestedItemID == swap.RequestedItemID && existing.Status.Outstanding() {
			return apperr.New(apperr.Conflict, "у вас уже есть активный запрос на эту вещь")
		}
	}
	if swap.ID == uuid.Nil {
		swap.ID = uuid.New()
	}
	now := v.store.now()
	swap.CreatedAt, swap.UpdatedAt = now, now
	st.swaps[swap.ID] = *swap
	return nil
}

func (v *view) GetSwap(_ context.Context, id uuid.UUID) (*models.SwapRequest, error) {
	s, ok := v.store.st.swaps[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "запрос на обмен не найден")
	}
	return &s, nil
}

func (v *view) GetSwapForUpdate(ctx context.Context, id uuid.UUID) (*models.SwapRequest, error) {
	return v.GetSwap(ctx, id)
}

func (v *view) UpdateSwap(_ context.Context, swap *models.SwapRequest) error {
	if err := v.fault("UpdateSwap"); err != nil {
		return err
	}
	st := v.store.st
	old, ok := st.swaps[swap.ID]
	if !ok {
		return apperr.New(apperr.NotFound, "запрос на обмен не найден")
	}
	swap.CreatedAt = old.CreatedAt
	swap.UpdatedAt = v.store.now()
	st.swaps[swap.ID] = *swap
	return nil
}

func (v *view) HasOutstandingSwap(_ context.Context, requesterID, requestedItemID uuid.UUID) (bool, error) {
	for _, s := range v.store.st.swaps {
		if s.RequesterID == requesterID && s.RequestedItemID == requestedItemID && s.Status.Outstanding() {
			return true, nil
		}
	}
	return false, nil
}

func (v *view) CancelPendingForItem(_ context.Context, itemID, actorID uuid.UUID, reason string, at time.Time) (int, error) {
	st := v.store.st
	n := 0
	for id, s := range st.swaps {
		if s.Status != models.SwapPending {
			continue
		}
		if s.RequestedItemID != itemID && (s.OfferedItemID == nil || *s.OfferedItemID != itemID) {
			continue
		}
		actor := actorID
		cancelledAt := at
		s.Status = models.SwapCancelled
		s.CancelledBy = &actor
		s.CancelledAt = &cancelledAt
		s.CancellationReason = reason
		s.UpdatedAt = at
		st.swaps[id] = s
		n++
	}
	return n, nil
}

func matchesSwap(s models.SwapRequest, f models.SwapFilter) bool {
	if f.ParticipantID != nil && !s.IsParticipant(*f.ParticipantID) {
		return false
	}
	if f.ItemID != nil && s.RequestedItemID != *f.ItemID && (s.OfferedItemID == nil || *s.OfferedItemID != *f.ItemID) {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	return true
}

func (v *view) ListSwaps(_ context.Context, filter models.SwapFilter) ([]models.SwapRequest, int, error) {
	var all []models.SwapRequest
	for _, s := range v.store.st.swaps {
		if matchesSwap(s, filter) {
			all = append(all, s)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID.String() < all[j].ID.String()
	})
	return page(all, filter.Limit, filter.Offset), len(all), nil
}

func (v *view) SwapStats(_ context.Context) (*models.SwapStats, error) {
	stats := &models.SwapStats{}
	for _, s := range v.store.st.swaps {
		stats.Add(s.Status, 1)
	}
	return stats, nil
}

func (v *view) ToggleFavorite(_ context.Context, userID, itemID uuid.UUID) (bool, int, error) {
	st := v.store.st
	if _, ok := st.items[itemID]; !ok {
		return false, 0, apperr.New(apperr.NotFound, "вещь не найдена")
	}
	users := st.likes[itemID]
	if users == nil {
		users = make(map[uuid.UUID]time.Time)
		st.likes[itemID] = users
	}
	if _, liked := users[userID]; liked {
		delete(users, userID)
		return false, len(users), nil
	}
	users[userID] = v.store.now()
	return true, len(users), nil
}

func (v *view) IsFavorite(_ context.Context, userID, itemID uuid.UUID) (bool, error) {
	_, ok := v.store.st.likes[itemID][userID]
	return ok, nil
}
