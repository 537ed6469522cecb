package userinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestMergeProfile_KeepsUnsetFields(t *testing.T) {
	prev := Profile{Age: strPtr("30"), Job: strPtr("designer")}
	next := Profile{Job: strPtr("engineer"), Interest: strPtr("climbing")}

	got := MergeProfile(prev, next)
	assert.Equal(t, "30", *got.Age)
	assert.Equal(t, "engineer", *got.Job)
	assert.Equal(t, "climbing", *got.Interest)
	assert.Nil(t, got.Gender)
}

func TestProfileFromInfo(t *testing.T) {
	info := Info{
		"age":      {{Value: "33", Count: 1, LastMentioned: 10}, {Value: "34", Count: 1, LastMentioned: 20}},
		"interest": {{Value: "go", Count: 4}, {Value: "rust", Count: 2}},
		"hobby":    {{Value: "chess", Count: 9}},
	}

	p := ProfileFromInfo(info)
	assert.Equal(t, "34", *p.Age)
	assert.Equal(t, "go", *p.Interest)
	assert.Nil(t, p.Job)
	assert.Equal(t, "age: 34, interest: go", p.String())
}
