package userinfo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFilterExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ttl := DefaultTTL
	ttlSec := int64(ttl / time.Second)

	info := Info{
		"hobby": {
			{Value: "chess", Count: 2, LastMentioned: now.Unix() - ttlSec - 1},
			{Value: "go", Count: 1, LastMentioned: now.Unix() - 10},
		},
		"city": {
			{Value: "Seoul", Count: 4, LastMentioned: now.Unix() - ttlSec},
		},
	}

	got := FilterExpired(info, ttl, now)
	assert.Equal(t, Info{"hobby": {{Value: "go", Count: 1, LastMentioned: now.Unix() - 10}}}, got)
	assert.Len(t, info["hobby"], 2, "input must not be modified")
}

func TestInfo_LatestTimestamp(t *testing.T) {
	_, ok := Info{}.LatestTimestamp()
	assert.False(t, ok)

	ts, ok := Info{
		"a": {{Value: "x", LastMentioned: 10}, {Value: "y", LastMentioned: 30}},
		"b": {{Value: "z", LastMentioned: 20}},
	}.LatestTimestamp()
	assert.True(t, ok)
	assert.Equal(t, int64(30), ts)
}

func TestMerge(t *testing.T) {
	info := Info{"hobby": {{Value: "Chess", Count: 1, FirstMentioned: 5, LastMentioned: 5}}}

	got := Merge(info, map[string][]string{
		"Hobby":         {"chess", "tennis", " "},
		"favorite food": {"kimchi"},
		"":              {"ignored"},
	}, 100)

	assert.Equal(t, Info{
		"hobby": {
			{Value: "Chess", Count: 2, FirstMentioned: 5, LastMentioned: 100},
			{Value: "tennis", Count: 1, FirstMentioned: 100, LastMentioned: 100},
		},
		"favorite_food": {{Value: "kimchi", Count: 1, FirstMentioned: 100, LastMentioned: 100}},
	}, got)
	assert.Equal(t, 1, info["hobby"][0].Count, "input must not be modified")
}
