package userinfo

import "strings"

// Profile is the sparse demographic summary shown by the profile command.
type Profile struct {
	Age      *string `json:"age,omitempty"`
	Gender   *string `json:"gender,omitempty"`
	Job      *string `json:"job,omitempty"`
	Interest *string `json:"interest,omitempty"`
}

// MergeProfile overwrites only the fields that next sets.
func MergeProfile(prev, next Profile) Profile {
	out := prev
	if next.Age != nil {
		out.Age = next.Age
	}
	if next.Gender != nil {
		out.Gender = next.Gender
	}
	if next.Job != nil {
		out.Job = next.Job
	}
	if next.Interest != nil {
		out.Interest = next.Interest
	}
	return out
}

// ProfileFromInfo takes the most mentioned value of each profile attribute.
func ProfileFromInfo(info Info) Profile {
	return Profile{
		Age:      topValue(info, "age"),
		Gender:   topValue(info, "gender"),
		Job:      topValue(info, "job"),
		Interest: topValue(info, "interest"),
	}
}

func topValue(info Info, key string) *string {
	var best *Fact
	for i := range info[key] {
		f := &info[key][i]
		if best == nil || f.Count > best.Count || (f.Count == best.Count && f.LastMentioned > best.LastMentioned) {
			best = f
		}
	}
	if best == nil {
		return nil
	}
	v := best.Value
	return &v
}

func (p Profile) String() string {
	var parts []string
	add := func(name string, v *string) {
		if v != nil {
			parts = append(parts, name+": "+*v)
		}
	}
	add("age", p.Age)
	add("gender", p.Gender)
	add("job", p.Job)
	add("interest", p.Interest)
	return strings.Join(parts, ", ")
}
