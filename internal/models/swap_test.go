package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSwapRequest_Parties(t *testing.T) {
	requester, owner := uuid.New(), uuid.New()

	t.Run("item swap dedupes requester as offered owner", func(t *testing.T) {
		offeredItem := uuid.New()
		s := SwapRequest{RequesterID: requester, RequestedOwnerID: owner, OfferedItemID: &offeredItem, OfferedOwnerID: &requester}
		assert.Equal(t, []uuid.UUID{requester, owner}, s.Parties())
	})

	t.Run("points redemption without offered item", func(t *testing.T) {
		s := SwapRequest{RequesterID: requester, RequestedOwnerID: owner, IsPointsRedemption: true}
		assert.Equal(t, []uuid.UUID{requester, owner}, s.Parties())
		assert.Equal(t, []uuid.UUID{s.RequestedItemID}, s.ItemIDs())
	})

	t.Run("three distinct parties", func(t *testing.T) {
		third := uuid.New()
		s := SwapRequest{RequesterID: requester, RequestedOwnerID: owner, OfferedOwnerID: &third}
		assert.Len(t, s.Parties(), 3)
	})
}

func TestSwapRequest_Roles(t *testing.T) {
	requester, owner, stranger := uuid.New(), uuid.New(), uuid.New()
	s := SwapRequest{RequesterID: requester, RequestedOwnerID: owner, OfferedOwnerID: &requester}

	assert.True(t, s.IsItemOwner(owner))
	assert.True(t, s.IsItemOwner(requester))
	assert.False(t, s.IsItemOwner(stranger))
	assert.True(t, s.IsParticipant(requester))
	assert.False(t, s.IsParticipant(stranger))
}

func TestSwapStatus(t *testing.T) {
	assert.True(t, SwapPending.Outstanding())
	assert.True(t, SwapAccepted.Outstanding())
	assert.False(t, SwapCancelled.Outstanding())
	assert.True(t, SwapCompleted.Terminal())
	assert.False(t, SwapAccepted.Terminal())
	assert.False(t, SwapStatus("archived").Valid())
}

func TestSwapStats_Add(t *testing.T) {
	var st SwapStats
	st.Add(SwapPending, 2)
	st.Add(SwapCompleted, 1)
	st.Add(SwapCancelled, 3)

	assert.Equal(t, SwapStats{TotalRequests: 6, PendingRequests: 2, CompletedSwaps: 1, CancelledRequests: 3}, st)
}

func TestNewPagination(t *testing.T) {
	assert.Equal(t, Pagination{Page: 2, Limit: 10, Total: 21, TotalPages: 3}, NewPagination(2, 10, 21))
	assert.Equal(t, 0, NewPagination(1, 0, 5).TotalPages)
}
