package models

import (
	"time"

	"github.com/google/uuid"
)

// ItemStatus состояние модерации объявления
type ItemStatus string

const (
	ItemStatusPending  ItemStatus = "pending"
	ItemStatusApproved ItemStatus = "approved"
	ItemStatusRejected ItemStatus = "rejected"
	ItemStatusSold     ItemStatus = "sold"
	ItemStatusRemoved  ItemStatus = "removed"
)

// Valid проверяет, что статус входит в перечисление
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemStatusPending, ItemStatusApproved, ItemStatusRejected, ItemStatusSold, ItemStatusRemoved:
		return true
	}
	return false
}

// Item представляет вещь, выставленную для обмена
type Item struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Type        string     `json:"type"`
	Size        string     `json:"size"`
	Condition   string     `json:"condition"`
	Brand       string     `json:"brand,omitempty"`
	Color       string     `json:"color"`
	Material    string     `json:"material,omitempty"`
	Tags        []string   `json:"tags"`
	Images      []Image    `json:"images"`
	PointsValue int        `json:"points_value"`
	Location    string     `json:"location,omitempty"`
	IsAvailable bool       `json:"is_available"`
	IsApproved  bool       `json:"is_approved"`
	IsFeatured  bool       `json:"is_featured"`
	Status      ItemStatus `json:"status"`
	Views       int        `json:"views"`
	LikesCount  int        `json:"likes_count"`
	AdminNotes  string     `json:"admin_notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Image представляет изображение вещи в Cloudinary
type Image struct {
	URL       string `json:"url"`
	PublicID  string `json:"public_id"`
	IsPrimary bool   `json:"is_primary"`
}

// PublicIDs возвращает идентификаторы изображений для удаления из хранилища
func (i *Item) PublicIDs() []string {
	ids := make([]string, 0, len(i.Images))
	for _, img := range i.Images {
		if img.PublicID != "" {
			ids = append(ids, img.PublicID)
		}
	}
	return ids
}

// ItemFilter параметры выборки объявлений
type ItemFilter struct {
	OwnerID       *uuid.UUID
	Status        ItemStatus
	OnlyListed    bool // только одобренные и доступные
	OnlyFeatured  bool
	LikedBy       *uuid.UUID
	Category      string
	Size          string
	Condition     string
	Search        string
	Limit, Offset int
}

// ItemStats агрегированная статистика по объявлениям
type ItemStats struct {
	TotalItems    int            `json:"total_items"`
	ApprovedItems int            `json:"approved_items"`
	PendingItems  int            `json:"pending_items"`
	FeaturedItems int            `json:"featured_items"`
	TotalViews    int            `json:"total_views"`
	TotalLikes    int            `json:"total_likes"`
	ByCategory    map[string]int `json:"by_category"`
}
