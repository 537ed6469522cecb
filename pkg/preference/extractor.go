package preference

// CueSet maps a normalized cue token to the relation it signals.
type CueSet map[string]Relation

// DefaultCues covers common Korean conjugations of like/dislike/want/avoid,
// including connective (-고, -서, -는데) and polite (-요, -ㅂ니다) endings.
// Korean places the object before the verb, so the cue's preceding token is
// the topic. Cues written as two words ("먹고 싶어") are matched with the
// space removed. Tokens ending in "는" lose it to particle stripping, so
// "좋아하는" is matched as "좋아하".
var DefaultCues = CueSet{
	"좋아": Like, "좋아해": Like, "좋아해요": Like, "좋아함": Like, "좋다": Like, "좋아요": Like, "사랑해": Like,
	"좋아하고": Like, "좋아하며": Like, "좋아해서": Like, "좋아하는데": Like, "좋아하": Like,
	"좋아합니다": Like, "좋아했어": Like, "좋아했어요": Like, "사랑해요": Like, "사랑합니다": Like,

	"싫어": Dislike, "싫어해": Dislike, "싫어해요": Dislike, "싫다": Dislike, "싫어요": Dislike, "별로야": Dislike,
	"싫어하고": Dislike, "싫어하며": Dislike, "싫어해서": Dislike, "싫어하는데": Dislike, "싫어하": Dislike,
	"싫어합니다": Dislike, "싫어했어": Dislike, "싫어했어요": Dislike, "별로예요": Dislike,

	"원해": Want, "원해요": Want, "원하고": Want, "원합니다": Want,
	"갖고싶어": Want, "갖고싶어요": Want, "먹고싶어": Want, "먹고싶어요": Want, "하고싶어": Want, "하고싶어요": Want,

	"하지마": Avoid, "하지마요": Avoid, "피해": Avoid, "피해줘": Avoid, "피해주세요": Avoid,
	"빼줘": Avoid, "빼주세요": Avoid, "말아줘": Avoid, "말아주세요": Avoid,
}

// Extractor turns a prompt into key/relation pairs.
type Extractor struct {
	tokenizer *Tokenizer
	cues      CueSet
}

func NewExtractor(tokenizer *Tokenizer, cues CueSet) *Extractor {
	if tokenizer == nil {
		tokenizer = NewTokenizer()
	}
	if len(cues) == 0 {
		cues = DefaultCues
	}
	return &Extractor{tokenizer: tokenizer, cues: cues}
}

// Extract emits one pair for every cue that has a preceding token. A cue
// is a single token or two adjacent tokens that form a cue when joined.
// Repeated mentions are returned individually; aggregation happens later.
// A preceding token that is itself a cue is not a topic and yields no pair.
func (e *Extractor) Extract(prompt string) []Pair {
	tokens := e.tokenizer.Tokenize(prompt)
	var pairs []Pair
	for i := 1; i < len(tokens); i++ {
		rel, width, ok := e.cueAt(tokens, i)
		if !ok {
			continue
		}
		key := tokens[i-1]
		i += width - 1
		if _, isCue := e.cues[key]; isCue {
			continue
		}
		pairs = append(pairs, Pair{Key: key, Relation: rel})
	}
	return pairs
}

// cueAt reports the cue starting at tokens[i] and how many tokens it spans.
// The two-token form wins so "먹고 싶어" is not read as a bare "싶어".
func (e *Extractor) cueAt(tokens []string, i int) (Relation, int, bool) {
	if i+1 < len(tokens) {
		if rel, ok := e.cues[tokens[i]+tokens[i+1]]; ok {
			return rel, 2, true
		}
	}
	rel, ok := e.cues[tokens[i]]
	return rel, 1, ok
}
