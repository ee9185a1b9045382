package transfermatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindMatches_AutoMatch(t *testing.T) {
	now := time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC)
	out := Candidate{ID: "out-1", AccountID: "acc-a", AmountCents: -10000, PostedAt: now, NormalizedDescription: "PIX ENVIADO JOAO"}
	in := Candidate{ID: "in-1", AccountID: "acc-b", AmountCents: 10000, PostedAt: now, NormalizedDescription: "PIX RECEBIDO JOAO"}

	matches := FindMatches([]Candidate{out}, []Candidate{in})
	require.Len(t, matches, 1)
	assert.Equal(t, DecisionAutoMatch, matches[0].Decision)
	assert.Equal(t, "in-1", matches[0].Incoming.ID)
}

func TestFindMatches_SuggestionOnSmallDelta(t *testing.T) {
	now := time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC)
	out := Candidate{ID: "out-1", AccountID: "acc-a", AmountCents: -10000, PostedAt: now, NormalizedDescription: "TRANSFERENCIA"}
	in := Candidate{ID: "in-1", AccountID: "acc-b", AmountCents: 10050, PostedAt: now.Add(12 * time.Hour), NormalizedDescription: "TRANSFERENCIA RECEBIDA"}

	matches := FindMatches([]Candidate{out}, []Candidate{in})
	require.Len(t, matches, 1)
	assert.NotEqual(t, DecisionIgnore, matches[0].Decision)
}

func TestFindMatches_IgnoresCardPayment(t *testing.T) {
	now := time.Now
	_ = now
	out := Candidate{ID: "out-1", AccountID: "acc-a", AmountCents: -5000, IsCardPayment: true}
	in := Candidate{ID: "in-1", AccountID: "acc-b", AmountCents: 5000}

	matches := FindMatches([]Candidate{out}, []Candidate{in})
	assert.Empty(t, matches)
}

func TestFindMatches_SkipsSameAccount(t *testing.T) {
	out := Candidate{ID: "out-1", AccountID: "acc-a", AmountCents: -5000}
	in := Candidate{ID: "in-1", AccountID: "acc-a", AmountCents: 5000}

	matches := FindMatches([]Candidate{out}, []Candidate{in})
	assert.Empty(t, matches)
}

func TestBuildSuggestion(t *testing.T) {
	m := Match{
		Outgoing: Candidate{AccountID: "acc-a", AmountCents: -5000, NormalizedDescription: "TRANSFERENCIA"},
		Incoming: Candidate{AccountID: "acc-b", NormalizedDescription: "TRANSFERENCIA RECEBIDA"},
		Score:    0.7,
	}
	s := BuildSuggestion(m)
	assert.Equal(t, int64(5000), s.AmountCents)
	assert.Equal(t, "acc-a", s.FromAccountID)
	assert.Equal(t, "acc-b", s.ToAccountID)
}
