package preference

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractor_Extract(t *testing.T) {
	ex := NewExtractor(nil, nil)

	tests := []struct {
		name   string
		prompt string
		want   []Pair
	}{
		{"like", "나는 사과를 좋아해", []Pair{{Key: "사과", Relation: Like}}},
		{"avoid", "술은 하지마", []Pair{{Key: "술", Relation: Avoid}}},
		{"cue at start", "좋아해", nil},
		{"no cue", "오늘 날씨 어때", nil},
		{"multiple cues", "커피를 좋아하고 우유는 싫어 고기는 원해", []Pair{
			{Key: "커피", Relation: Like},
			{Key: "우유", Relation: Dislike},
			{Key: "고기", Relation: Want},
		}},
		{"polite like", "저는 녹차를 좋아합니다", []Pair{{Key: "녹차", Relation: Like}}},
		{"polite dislike", "오이는 싫어합니다", []Pair{{Key: "오이", Relation: Dislike}}},
		{"adnominal like", "고양이를 좋아하는 편이야", []Pair{{Key: "고양이", Relation: Like}}},
		{"spaced want", "피자를 먹고 싶어", []Pair{{Key: "피자", Relation: Want}}},
		{"spaced want polite", "라면을 먹고 싶어요 그리고 술은 하지마", []Pair{
			{Key: "라면", Relation: Want},
			{Key: "술", Relation: Avoid},
		}},
		{"repeated noun", "사과를 좋아 사과를 좋아", []Pair{
			{Key: "사과", Relation: Like},
			{Key: "사과", Relation: Like},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ex.Extract(tt.prompt))
		})
	}
}

func TestExtractor_CueIsNeverAKey(t *testing.T) {
	ex := NewExtractor(nil, nil)
	assert.Empty(t, ex.Extract("좋아 좋아"))
}

func TestExtractor_CustomCues(t *testing.T) {
	ex := NewExtractor(nil, CueSet{"love": Like, "hate": Dislike})

	got := ex.Extract("pizza love, olives hate")
	assert.Equal(t, []Pair{
		{Key: "pizza", Relation: Like},
		{Key: "olives", Relation: Dislike},
	}, got)
}

func TestRelation_Sanitized(t *testing.T) {
	assert.Equal(t, "like", Like.Sanitized())
	assert.Equal(t, "really_likes_", Relation("really likes!").Sanitized())
	assert.Equal(t, "좋아_함", Relation("좋아-함").Sanitized())
}
