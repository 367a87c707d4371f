package models

import (
	"time"

	"github.com/google/uuid"
)

// Favorite представляет отметку «нравится» на вещи
type Favorite struct {
	UserID    uuid.UUID `json:"user_id"`
	ItemID    uuid.UUID `json:"item_id"`
	CreatedAt time.Time `json:"created_at"`

	// Дополнительные поля для API
	Item *Item `json:"item,omitempty"`
}

// FavoriteResponse представляет структуру ответа API с избранными вещами
type FavoriteResponse struct {
	Favorites []Favorite `json:"favorites"`
	Total     int        `json:"total"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
}

// Pagination метаданные постраничной выдачи
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination считает число страниц
func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}
}
