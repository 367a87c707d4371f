package models

import (
	"time"

	"github.com/google/uuid"
)

// SwapStatus статус запроса на обмен
type SwapStatus string

const (
	SwapPending   SwapStatus = "pending"
	SwapAccepted  SwapStatus = "accepted"
	SwapRejected  SwapStatus = "rejected"
	SwapCancelled SwapStatus = "cancelled"
	SwapCompleted SwapStatus = "completed"
)

// Valid проверяет, что статус входит в перечисление
func (s SwapStatus) Valid() bool {
	switch s {
	case SwapPending, SwapAccepted, SwapRejected, SwapCancelled, SwapCompleted:
		return true
	}
	return false
}

// Outstanding сообщает, блокирует ли запрос повторную заявку на ту же вещь
func (s SwapStatus) Outstanding() bool {
	return s == SwapPending || s == SwapAccepted
}

// Terminal сообщает, является ли статус конечным
func (s SwapStatus) Terminal() bool {
	return s == SwapRejected || s == SwapCancelled || s == SwapCompleted
}

// SwapRequest представляет предложение обмена вещи на вещь или на баллы.
// Владельцы вещей фиксируются при создании, чтобы проверки прав не зависели от судьбы объявлений.
type SwapRequest struct {
	ID                 uuid.UUID  `json:"id"`
	RequesterID        uuid.UUID  `json:"requester_id"`
	RequestedItemID    uuid.UUID  `json:"requested_item_id"`
	RequestedOwnerID   uuid.UUID  `json:"requested_owner_id"`
	OfferedItemID      *uuid.UUID `json:"offered_item_id,omitempty"`
	OfferedOwnerID     *uuid.UUID `json:"offered_owner_id,omitempty"`
	IsPointsRedemption bool       `json:"is_points_redemption"`
	PointsOffered      int        `json:"points_offered"`
	Status             SwapStatus `json:"status"`
	Message            string     `json:"message"`
	ResponseMessage    string     `json:"response_message"`
	Meeting            Meeting    `json:"meeting"`
	AdminNotes         string     `json:"admin_notes,omitempty"`
	RespondedAt        *time.Time `json:"responded_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy        *uuid.UUID `json:"cancelled_by,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Meeting детали встречи, непрозрачные для жизненного цикла обмена
type Meeting struct {
	Location     string     `json:"location,omitempty"`
	Date         *time.Time `json:"date,omitempty"`
	Time         string     `json:"time,omitempty"`
	ContactPhone string     `json:"contact_phone,omitempty"`
	ContactEmail string     `json:"contact_email,omitempty"`
}

// IsItemOwner проверяет, владеет ли пользователь одной из вещей обмена
func (s *SwapRequest) IsItemOwner(userID uuid.UUID) bool {
	if s.RequestedOwnerID == userID {
		return true
	}
	return s.OfferedOwnerID != nil && *s.OfferedOwnerID == userID
}

// IsParticipant проверяет, участвует ли пользователь в обмене
func (s *SwapRequest) IsParticipant(userID uuid.UUID) bool {
	return s.RequesterID == userID || s.IsItemOwner(userID)
}

// ItemIDs возвращает идентификаторы всех вещей обмена
func (s *SwapRequest) ItemIDs() []uuid.UUID {
	ids := []uuid.UUID{s.RequestedItemID}
	if s.OfferedItemID != nil {
		ids = append(ids, *s.OfferedItemID)
	}
	return ids
}

// Parties возвращает различных участников обмена: инициатора, владельца запрошенной
// вещи и владельца предложенной вещи, если он отличается от остальных.
func (s *SwapRequest) Parties() []uuid.UUID {
	parties := []uuid.UUID{s.RequesterID}
	seen := map[uuid.UUID]bool{s.RequesterID: true}
	candidates := []uuid.UUID{s.RequestedOwnerID}
	if s.OfferedOwnerID != nil {
		candidates = append(candidates, *s.OfferedOwnerID)
	}
	for _, id := range candidates {
		if !seen[id] {
			seen[id] = true
			parties = append(parties, id)
		}
	}
	return parties
}

// SwapFilter параметры выборки запросов на обмен
type SwapFilter struct {
	ParticipantID *uuid.UUID
	ItemID        *uuid.UUID
	Status        SwapStatus
	Limit, Offset int
}

// SwapStats статистика по статусам запросов
type SwapStats struct {
	TotalRequests     int `json:"total_requests"`
	PendingRequests   int `json:"pending_requests"`
	AcceptedRequests  int `json:"accepted_requests"`
	CompletedSwaps    int `json:"completed_swaps"`
	RejectedRequests  int `json:"rejected_requests"`
	CancelledRequests int `json:"cancelled_requests"`
}

// Add учитывает запрос с заданным статусом
func (s *SwapStats) Add(status SwapStatus, n int) {
	s.TotalRequests += n
	switch status {
	case SwapPending:
		s.PendingRequests += n
	case SwapAccepted:
		s.AcceptedRequests += n
	case SwapCompleted:
		s.CompletedSwaps += n
	case SwapRejected:
		s.RejectedRequests += n
	case SwapCancelled:
		s.CancelledRequests += n
	}
}
