package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rajivgeraev/rewear-api/internal/apperr"
	"github.com/rajivgeraev/rewear-api/internal/models"
)

const itemColumns = `i.id, i.user_id, i.title, i.description, i.category, i.type, i.size, i.condition,
	i.brand, i.color, i.material, i.tags, i.images, i.points_value, i.location,
	i.is_available, i.is_approved, i.is_featured, i.status, i.views, i.admin_notes,
	i.created_at, i.updated_at,
	(SELECT COUNT(*) FROM item_likes l WHERE l.item_id = i.id) AS likes_count`

// scanItem считывает объявление вместе с JSONB-полями тегов и изображений
func scanItem(row pgx.Row) (*models.Item, error) {
	var item models.Item
	var tagsJSON, imagesJSON []byte

	err := row.Scan(
		&item.ID, &item.UserID, &item.Title, &item.Description, &item.Category, &item.Type,
		&item.Size, &item.Condition, &item.Brand, &item.Color, &item.Material,
		&tagsJSON, &imagesJSON, &item.PointsValue, &item.Location,
		&item.IsAvailable, &item.IsApproved, &item.IsFeatured, &item.Status, &item.Views,
		&item.AdminNotes, &item.CreatedAt, &item.UpdatedAt, &item.LikesCount,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(tagsJSON, &item.Tags); err != nil {
		return nil, fmt.Errorf("ошибка разбора тегов: %w", err)
	}
	if err := json.Unmarshal(imagesJSON, &item.Images); err != nil {
		return nil, fmt.Errorf("ошибка разбора изображений: %w", err)
	}

	return &item, nil
}

func marshalItemJSON(item *models.Item) (tags, images []byte, err error) {
	if item.Tags == nil {
		item.Tags = []string{}
	}
	if item.Images == nil {
		item.Images = []models.Image{}
	}
	if tags, err = json.Marshal(item.Tags); err != nil {
		return nil, nil, apperr.Wrap(apperr.InvalidInput, err, "неверный формат тегов")
	}
	if images, err = json.Marshal(item.Images); err != nil {
		return nil, nil, apperr.Wrap(apperr.InvalidInput, err, "неверный формат изображений")
	}
	return tags, images, nil
}

// CreateItem сохраняет новое объявление
func (s *Store) CreateItem(ctx context.Context, item *models.Item) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Status == "" {
		item.Status = models.ItemStatusPending
	}

	tags, images, err := marshalItemJSON(item)
	if err != nil {
		return err
	}

	err = s.q.QueryRow(ctx, `
		INSERT INTO items (id, user_id, title, description, category, type, size, condition,
			brand, color, material, tags, images, points_value, location,
			is_available, is_approved, is_featured, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING created_at, updated_at
	`, item.ID, item.UserID, item.Title, item.Description, item.Category, item.Type, item.Size,
		item.Condition, item.Brand, item.Color, item.Material, tags, images, item.PointsValue,
		item.Location, item.IsAvailable, item.IsApproved, item.IsFeatured, item.Status,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return translate(err, "ошибка сохранения вещи")
	}
	return nil
}

// GetItem получает объявление по ID
func (s *Store) GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	item, err := scanItem(s.q.QueryRow(ctx, `SELECT `+itemColumns+` FROM items i WHERE i.id = $1`, id))
	if err != nil {
		return nil, translate(err, "вещь не найдена")
	}
	return item, nil
}

// GetItemForUpdate получает объявление и блокирует строку до конца транзакции
func (s *Store) GetItemForUpdate(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	item, err := scanItem(s.q.QueryRow(ctx, `SELECT `+itemColumns+` FROM items i WHERE i.id = $1 FOR UPDATE OF i`, id))
	if err != nil {
		return nil, translate(err, "вещь не найдена")
	}
	return item, nil
}

// GetItemForShare получает объявление под разделяемой блокировкой
func (s *Store) GetItemForShare(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	item, err := scanItem(s.q.QueryRow(ctx, `SELECT `+itemColumns+` FROM items i WHERE i.id = $1 FOR SHARE OF i`, id))
	if err != nil {
		return nil, translate(err, "вещь не найдена")
	}
	return item, nil
}

// UpdateItem сохраняет изменяемые поля объявления. Владелец и счетчик просмотров не меняются.
func (s *Store) UpdateItem(ctx context.Context, item *models.Item) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tags, images, err := marshalItemJSON(item)
	if err != nil {
		return err
	}

	err = s.q.QueryRow(ctx, `
		UPDATE items
		SET title = $2, description = $3, category = $4, type = $5, size = $6, condition = $7,
			brand = $8, color = $9, material = $10, tags = $11, images = $12, points_value = $13,
			location = $14, is_available = $15, is_approved = $16, is_featured = $17, status = $18,
			admin_notes = $19, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, item.ID, item.Title, item.Description, item.Category, item.Type, item.Size, item.Condition,
		item.Brand, item.Color, item.Material, tags, images, item.PointsValue, item.Location,
		item.IsAvailable, item.IsApproved, item.IsFeatured, item.Status, item.AdminNotes,
	).Scan(&item.UpdatedAt)
	if err != nil {
		return translate(err, "вещь не найдена")
	}
	return nil
}

// SetItemsAvailability меняет доступность нескольких вещей одним запросом
func (s *Store) SetItemsAvailability(ctx context.Context, available bool, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.q.Exec(ctx, `
		UPDATE items SET is_available = $1, updated_at = NOW() WHERE id = ANY($2)
	`, available, ids)
	if err != nil {
		return translate(err, "ошибка изменения доступности вещей")
	}
	if int(tag.RowsAffected()) != len(uniqueIDs(ids)) {
		return apperr.New(apperr.NotFound, "вещь не найдена")
	}
	return nil
}

func uniqueIDs(ids []uuid.UUID) map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// DeleteItem удаляет объявление; отметки «нравится» удаляются каскадно
func (s *Store) DeleteItem(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.q.Exec(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return translate(err, "ошибка удаления вещи")
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "вещь не найдена")
	}
	return nil
}

// IncrementViews увеличивает счетчик просмотров
func (s *Store) IncrementViews(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.q.Exec(ctx, `UPDATE items SET views = views + 1 WHERE id = $1`, id)
	if err != nil {
		return translate(err, "ошибка обновления просмотров")
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "вещь не найдена")
	}
	return nil
}

// itemWhere собирает условие выборки по фильтру
func itemWhere(f models.ItemFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.OwnerID != nil {
		add("i.user_id = $%d", *f.OwnerID)
	}
	if f.Status != "" {
		add("i.status = $%d", f.Status)
	}
	if f.OnlyListed {
		conds = append(conds, "i.is_approved AND i.is_available")
	}
	if f.OnlyFeatured {
		conds = append(conds, "i.is_featured")
	}
	if f.LikedBy != nil {
		add("EXISTS (SELECT 1 FROM item_likes fl WHERE fl.item_id = i.id AND fl.user_id = $%d)", *f.LikedBy)
	}
	if f.Category != "" {
		add("i.category = $%d", f.Category)
	}
	if f.Size != "" {
		add("i.size = $%d", f.Size)
	}
	if f.Condition != "" {
		add("i.condition = $%d", f.Condition)
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(i.title ILIKE $%d OR i.description ILIKE $%d OR i.brand ILIKE $%d OR i.tags::text ILIKE $%d)", n, n, n, n))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListItems возвращает страницу объявлений и общее число подходящих под фильтр
func (s *Store) ListItems(ctx context.Context, filter models.ItemFilter) ([]models.Item, int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	where, args := itemWhere(filter)

	var total int
	if err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM items i`+where, args...).Scan(&total); err != nil {
		return nil, 0, translate(err, "ошибка подсчета вещей")
	}

	query := `SELECT ` + itemColumns + ` FROM items i` + where + ` ORDER BY i.created_at DESC, i.id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, translate(err, "ошибка получения вещей")
	}
	defer rows.Close()

	items := []models.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, translate(err, "ошибка чтения вещи")
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, translate(err, "ошибка чтения вещей")
	}

	return items, total, nil
}

// ItemStats считает сводную статистику для администратора
func (s *Store) ItemStats(ctx context.Context) (*models.ItemStats, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	stats := &models.ItemStats{ByCategory: make(map[string]int)}
	err := s.q.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'approved'),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE is_featured),
			COALESCE(SUM(views), 0),
			(SELECT COUNT(*) FROM item_likes)
		FROM items
	`).Scan(&stats.TotalItems, &stats.ApprovedItems, &stats.PendingItems,
		&stats.FeaturedItems, &stats.TotalViews, &stats.TotalLikes)
	if err != nil {
		return nil, translate(err, "ошибка получения статистики вещей")
	}

	rows, err := s.q.Query(ctx, `SELECT category, COUNT(*) FROM items GROUP BY category`)
	if err != nil {
		return nil, translate(err, "ошибка получения статистики по категориям")
	}
	defer rows.Close()

	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, translate(err, "ошибка чтения статистики")
		}
		stats.ByCategory[category] = count
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "ошибка чтения статистики")
	}

	return stats, nil
}
