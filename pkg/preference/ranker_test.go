package preference

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const year = int64(365 * 24 * 60 * 60)

func TestRank_Empty(t *testing.T) {
	got := Rank(nil, 5, DefaultDecay, 1000)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRank_FreshOutranksOld(t *testing.T) {
	now := int64(1_700_000_000)
	events := []Event{
		{Key: "coffee", Relation: Dislike, Timestamp: now - year},
		{Key: "coffee", Relation: Like, Timestamp: now},
	}

	got := Rank(events, 2, DefaultDecay, now)
	require.Len(t, got, 2)
	assert.Equal(t, Pair{Key: "coffee", Relation: Like}, got[0])
	assert.Equal(t, Pair{Key: "coffee", Relation: Dislike}, got[1])
}

func TestRank_FrequencyAccumulates(t *testing.T) {
	now := int64(10_000)
	events := []Event{
		{Key: "tea", Relation: Like, Timestamp: now},
		{Key: "cake", Relation: Like, Timestamp: now - 10},
		{Key: "cake", Relation: Like, Timestamp: now - 20},
	}

	got := RankScored(events, 1, DefaultDecay, now)
	require.Len(t, got, 1)
	assert.Equal(t, "cake", got[0].Key)
	want := math.Exp(-0.01) + math.Exp(-0.02)
	assert.InDelta(t, want, got[0].Score, 1e-12)
}

func TestRank_TiesAreDeterministic(t *testing.T) {
	now := int64(500)
	events := []Event{
		{Key: "사과", Relation: Like, Timestamp: now},
		{Key: "술", Relation: Avoid, Timestamp: now},
		{Key: "bread", Relation: Like, Timestamp: now},
	}

	got := Rank(events, 0, DefaultDecay, now)
	assert.Equal(t, []Pair{
		{Key: "술", Relation: Avoid},
		{Key: "bread", Relation: Like},
		{Key: "사과", Relation: Like},
	}, got)
}

func TestRank_FutureEventsCountAsFresh(t *testing.T) {
	got := RankScored([]Event{{Key: "x", Relation: Like, Timestamp: 2000}}, 1, DefaultDecay, 1000)
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].Score)
}

func TestRank_Properties(t *testing.T) {
	keys := []string{"a", "b", "c", "사과", "술"}
	relations := []Relation{Like, Dislike, Want, Avoid}

	rapid.Check(t, func(t *rapid.T) {
		now := rapid.Int64Range(0, 2*year).Draw(t, "now")
		n := rapid.IntRange(0, 40).Draw(t, "n")
		events := make([]Event, n)
		for i := range events {
			events[i] = Event{
				Key:       rapid.SampledFrom(keys).Draw(t, "key"),
				Relation:  rapid.SampledFrom(relations).Draw(t, "relation"),
				Timestamp: rapid.Int64Range(now-year, now).Draw(t, "ts"),
			}
		}
		topN := rapid.IntRange(1, 25).Draw(t, "topN")

		got := RankScored(events, topN, DefaultDecay, now)
		if len(got) > topN {
			t.Fatalf("got %d results, want at most %d", len(got), topN)
		}
		for i := 1; i < len(got); i++ {
			if got[i].Score > got[i-1].Score {
				t.Fatalf("scores not sorted at %d: %v > %v", i, got[i].Score, got[i-1].Score)
			}
		}
		for _, s := range got {
			if s.Score <= 0 {
				t.Fatalf("non-positive score %v for %v", s.Score, s.Pair)
			}
		}

		again := RankScored(events, topN, DefaultDecay, now)
		if len(again) != len(got) {
			t.Fatalf("rank is not deterministic")
		}
		for i := range got {
			if again[i].Pair != got[i].Pair {
				t.Fatalf("rank is not deterministic at %d", i)
			}
		}
	})
}
