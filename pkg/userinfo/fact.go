// Package userinfo keeps remembered facts about the user and renders the
// ones relevant to a prompt into a short profile block.
package userinfo

import (
	"context"
	"strings"
	"time"
)

// DefaultTTL is how long a fact survives without being mentioned again.
const DefaultTTL = 365 * 24 * time.Hour

// Fact is one remembered value of an attribute.
type Fact struct {
	Value          string `json:"value"`
	Count          int    `json:"count"`
	FirstMentioned int64  `json:"first_mentioned"`
	LastMentioned  int64  `json:"last_mentioned"`
}

// Info maps an attribute key such as "hobby" to its facts.
type Info map[string][]Fact

// Clone returns a deep copy.
func (i Info) Clone() Info {
	out := make(Info, len(i))
	for k, facts := range i {
		out[k] = append([]Fact(nil), facts...)
	}
	return out
}

// LatestTimestamp returns the most recent LastMentioned across all facts.
func (i Info) LatestTimestamp() (int64, bool) {
	var latest int64
	found := false
	for _, facts := range i {
		for _, f := range facts {
			if !found || f.LastMentioned > latest {
				latest = f.LastMentioned
				found = true
			}
		}
	}
	return latest, found
}

// TotalCount sums the counts of key's facts.
func (i Info) TotalCount(key string) int {
	total := 0
	for _, f := range i[key] {
		total += f.Count
	}
	return total
}

// FilterExpired returns a copy of info without facts whose age reached ttl.
// Keys left with no facts are removed.
func FilterExpired(info Info, ttl time.Duration, now time.Time) Info {
	cutoff := int64(ttl / time.Second)
	nowUnix := now.Unix()
	out := make(Info, len(info))
	for k, facts := range info {
		var kept []Fact
		for _, f := range facts {
			if nowUnix-f.LastMentioned >= cutoff {
				continue
			}
			kept = append(kept, f)
		}
		if len(kept) > 0 {
			out[k] = kept
		}
	}
	return out
}

// Merge folds newly observed attribute values into info and returns the
// result. A value already present (case-insensitively) gets its count bumped
// and LastMentioned refreshed; new values are appended.
func Merge(info Info, observed map[string][]string, now int64) Info {
	out := info.Clone()
	for rawKey, values := range observed {
		key := NormalizeKey(rawKey)
		if key == "" {
			continue
		}
		facts := out[key]
		for _, v := range values {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			idx := -1
			for i, f := range facts {
				if strings.EqualFold(f.Value, v) {
					idx = i
					break
				}
			}
			if idx >= 0 {
				facts[idx].Count++
				facts[idx].LastMentioned = now
				continue
			}
			facts = append(facts, Fact{Value: v, Count: 1, FirstMentioned: now, LastMentioned: now})
		}
		if len(facts) > 0 {
			out[key] = facts
		}
	}
	return out
}

// NormalizeKey lowercases an attribute key and joins its words with "_".
func NormalizeKey(key string) string {
	return strings.Join(strings.Fields(strings.ToLower(key)), "_")
}

// InfoStore is the remote home of a user's facts.
type InfoStore interface {
	Fetch(ctx context.Context) (Info, error)
	// Observe pushes snapshots whose facts changed after since. A zero since
	// delivers the full snapshot first. The channel closes when ctx ends.
	Observe(ctx context.Context, since int64) (<-chan Info, error)
	Update(ctx context.Context, info Info) error
}
