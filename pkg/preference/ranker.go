package preference

import (
	"math"
	"sort"
)

// DefaultDecay is the per-second decay constant. An event about 1000s old
// weighs e^-1 of a fresh one.
const DefaultDecay = 0.001

// Scored is a ranked pair with its decayed score.
type Scored struct {
	Pair
	Score float64
}

// Rank returns the topN pairs by decayed score. See RankScored.
func Rank(events []Event, topN int, lambda float64, now int64) []Pair {
	scored := RankScored(events, topN, lambda, now)
	out := make([]Pair, len(scored))
	for i, s := range scored {
		out[i] = s.Pair
	}
	return out
}

// RankScored groups events by relation+key, scores each group as
// sum(exp(-lambda*(now-ts))) and returns the groups sorted by descending
// score. Ties are broken by relation, then key. A non-positive topN returns
// every group. Events stamped after now count as fresh.
func RankScored(events []Event, topN int, lambda float64, now int64) []Scored {
	if len(events) == 0 {
		return []Scored{}
	}

	scores := make(map[Pair]float64, len(events))
	for _, ev := range events {
		age := float64(now - ev.Timestamp)
		if age < 0 {
			age = 0
		}
		scores[Pair{Key: ev.Key, Relation: ev.Relation}] += math.Exp(-lambda * age)
	}

	out := make([]Scored, 0, len(scores))
	for p, s := range scores {
		out = append(out, Scored{Pair: p, Score: s})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Relation != out[j].Relation {
			return out[i].Relation < out[j].Relation
		}
		return out[i].Key < out[j].Key
	})

	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}
