package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benefits/pkg/domain"
)

func TestStatus(t *testing.T) {
	for _, st := range OpenStatuses {
		assert.True(t, st.IsOpen(), st)
		assert.False(t, st.IsTerminal(), st)
	}
	assert.True(t, StatusApproved.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())

	_, err := ParseStatus("archived")
	require.Error(t, err)
}

func TestRecalculatedSince(t *testing.T) {
	submitted := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := &Application{Status: StatusRejected}
	a.SubmittedAt = &submitted

	assert.False(t, a.RecalculatedSince(submitted.Add(-time.Hour)))
	assert.False(t, a.RecalculatedSince(submitted))
	assert.True(t, a.RecalculatedSince(submitted.Add(time.Second)))

	assert.True(t, (&Application{Status: StatusRejected}).RecalculatedSince(time.Time{}))
}

func TestFilter(t *testing.T) {
	reviewer := domain.UserID(uuid.New())
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	a := &Application{CitizenID: domain.UserID(uuid.New()), Program: domain.ProgramAMO, Status: StatusSubmitted}
	a.Review(DecisionApprove, reviewer, "ok", at)

	assert.True(t, Filter{}.Matches(a))
	assert.True(t, Filter{Program: domain.ProgramAMO, Statuses: []Status{StatusApproved}}.Matches(a))
	assert.False(t, Filter{Program: domain.ProgramSocialAid}.Matches(a))
	assert.True(t, Filter{ReviewedBy: reviewer, ReviewedSince: at.Truncate(24 * time.Hour)}.Matches(a))
	assert.False(t, Filter{ReviewedSince: at.Add(time.Hour)}.Matches(a))
	assert.False(t, Filter{Statuses: OpenStatuses}.Matches(a))
}
