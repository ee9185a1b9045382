// Package transfermatch links outgoing/incoming entry pairs that represent
// the two legs of the same transfer between a user's own accounts.
package transfermatch

import (
	"strings"
	"time"

	"github.com/finledger/pipeline/internal/domain/importpipeline/model"
	"github.com/finledger/pipeline/internal/domain/importpipeline/textnorm"
)

const (
	defaultWindow = 24 * time.Hour
	widenedWindow = 3 * 24 * time.Hour

	autoMatchThreshold = 0.82
	suggestThreshold   = 0.62
	maxSuggestDeltaCents = 150

	amountWeight   = 0.55
	dateWeight     = 0.25
	keywordWeight  = 0.10
	textWeight     = 0.10
	merchantMismatchPenalty = 0.08
)

var transferKeywords = []string{"PIX", "TED", "DOC", "TRANSFER", "ENVIADO", "RECEBIDO"}

// Candidate is one entry considered as a transfer leg.
type Candidate struct {
	ID                    string
	AccountID             string
	AmountCents           int64
	PostedAt              time.Time
	NormalizedDescription string
	MerchantKey           string
	IsCardPayment         bool
	AlreadyLinked         bool
}

// Decision classifies the outcome of matching one outgoing entry.
type Decision string

const (
	DecisionAutoMatch Decision = "auto_match"
	DecisionSuggest   Decision = "suggest"
	DecisionIgnore    Decision = "ignore"
)

// Match is the result of pairing an outgoing entry with its best incoming
// candidate.
type Match struct {
	Outgoing    Candidate
	Incoming    Candidate
	Score       float64
	Decision    Decision
}

// Suggestion is the review-queue shape emitted for a below-auto-match pair.
type Suggestion struct {
	FromAccountID          string
	ToAccountID            string
	AmountCents            int64
	Date                   time.Time
	Confidence             float64
	Description            string
	CounterpartDescription string
}

// FindMatches evaluates every outgoing candidate against every incoming
// candidate, returning the best decision for each outgoing entry that
// isn't already linked or a card-payment row.
func FindMatches(outgoing, incoming []Candidate) []Match {
	var matches []Match
	for _, out := range outgoing {
		if out.AlreadyLinked || out.IsCardPayment || out.AmountCents >= 0 {
			continue
		}

		var best *Candidate
		var bestScore float64
		for i := range incoming {
			in := incoming[i]
			if in.AlreadyLinked || in.IsCardPayment || in.AmountCents <= 0 {
				continue
			}
			if in.AccountID == out.AccountID {
				continue
			}
			s := score(out, in)
			if best == nil || s > bestScore {
				best = &in
				bestScore = s
			}
		}

		if best == nil {
			continue
		}

		deltaCents := absDelta(out.AmountCents, best.AmountCents)
		decision := DecisionIgnore
		switch {
		case bestScore >= autoMatchThreshold && deltaCents == 0:
			decision = DecisionAutoMatch
		case bestScore >= suggestThreshold || deltaCents <= maxSuggestDeltaCents:
			decision = DecisionSuggest
		}

		matches = append(matches, Match{Outgoing: out, Incoming: *best, Score: bestScore, Decision: decision})
	}
	return matches
}

func score(out, in Candidate) float64 {
	deltaCents := absDelta(out.AmountCents, in.AmountCents)
	if deltaCents > 150 {
		return 0
	}
	amountScore := max0(1 - float64(deltaCents)/165)

	window := defaultWindow
	if strings.Contains(out.NormalizedDescription, "TED") || strings.Contains(out.NormalizedDescription, "DOC") ||
		strings.Contains(in.NormalizedDescription, "TED") || strings.Contains(in.NormalizedDescription, "DOC") {
		window = widenedWindow
	}
	deltaMs := float64(absDuration(out.PostedAt.Sub(in.PostedAt)).Milliseconds())
	windowMs := float64(window.Milliseconds()) + 1
	dateScore := max0(1 - deltaMs/windowMs)

	keywordScore := 0.45
	if containsKeyword(out.NormalizedDescription) || containsKeyword(in.NormalizedDescription) {
		keywordScore = 1
	}

	textScore := jaccard(tokens(out.NormalizedDescription), tokens(in.NormalizedDescription))

	penalty := 0.0
	if out.MerchantKey != "" && in.MerchantKey != "" && out.MerchantKey != in.MerchantKey {
		penalty = merchantMismatchPenalty
	}

	combined := amountWeight*amountScore + dateWeight*dateScore + keywordWeight*keywordScore + textWeight*textScore - penalty
	if combined < 0 {
		return 0
	}
	if combined > 1 {
		return 1
	}
	return combined
}

func containsKeyword(normalizedDescription string) bool {
	for _, kw := range transferKeywords {
		if strings.Contains(normalizedDescription, kw) {
			return true
		}
	}
	return false
}

func tokens(normalizedDescription string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, tok := range strings.Fields(normalizedDescription) {
		if len(tok) >= 3 {
			set[tok] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// absDelta compares the two legs' magnitudes: out is negative (an outflow),
// in is positive (an inflow), so |out|-|in| is the mismatch between what
// left one account and what arrived at the other.
func absDelta(out, in int64) int64 {
	d := absInt64(out) - absInt64(in)
	if d < 0 {
		d = -d
	}
	return d
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func max0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// ApplyAutoMatch produces the description rewrite and peer-linkage fields
// for an auto-matched pair.
func ApplyAutoMatch(transferGroupID string, out, in Candidate, fromAccountName, toAccountName string) (model.LedgerEntry, model.LedgerEntry) {
	description := textnorm.NormalizeForMatch("TRANSFER: " + fromAccountName + " -> " + toAccountName)

	outEntry := model.LedgerEntry{
		ID:                    out.ID,
		Type:                  model.EntryTransfer,
		Direction:             model.DirectionOut,
		IsInternalTransfer:    true,
		TransferGroupID:       &transferGroupID,
		TransferPeerID:        &in.ID,
		NormalizedDescription: description,
	}
	inEntry := model.LedgerEntry{
		ID:                    in.ID,
		Type:                  model.EntryTransfer,
		Direction:             model.DirectionIn,
		IsInternalTransfer:    true,
		TransferGroupID:       &transferGroupID,
		TransferPeerID:        &out.ID,
		NormalizedDescription: description,
	}
	return outEntry, inEntry
}

// BuildSuggestion produces the review-queue entry for a below-auto-match
// candidate pair.
func BuildSuggestion(m Match) Suggestion {
	return Suggestion{
		FromAccountID:          m.Outgoing.AccountID,
		ToAccountID:            m.Incoming.AccountID,
		AmountCents:            absInt64(m.Outgoing.AmountCents),
		Date:                   m.Outgoing.PostedAt,
		Confidence:             m.Score,
		Description:            m.Outgoing.NormalizedDescription,
		CounterpartDescription: m.Incoming.NormalizedDescription,
	}
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
