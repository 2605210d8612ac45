package request

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/hyperifyio/placescout/internal/topic"
)

// FallbackParser derives a Filter from keyword tables in English and Slovak.
// It never calls the network.
type FallbackParser struct{}

type rule struct {
	words []string
	types []string
}

// Keys are word prefixes of diacritic-folded text.
var placeRules = []rule{
	{[]string{"coffee", "kava", "kaviaren", "cafe", "espresso", "tea", "caj", "cajovn", "dessert", "cake", "kolac", "cukrar"}, []string{"cafe"}},
	{[]string{"restaurant", "restaurac", "lunch", "obed", "dinner", "vecer", "eat", "jedlo", "food", "pizza", "burger", "sushi", "steak"}, []string{"restaurant"}},
	{[]string{"bistro"}, []string{"bistro"}},
	{[]string{"beer", "pivo", "pub", "krcm", "wine", "vino", "cocktail", "koktejl", "drink"}, []string{"bar", "pub"}},
	{[]string{"museum", "muzeum", "exhibition", "vystav", "art", "umeni", "gallery", "galeri"}, []string{"museum", "gallery"}},
	{[]string{"theatre", "theater", "divadl", "cinema", "kino", "movie", "film"}, []string{"theatre", "cinema"}},
	{[]string{"park", "walk", "prechadz", "garden", "zahrad", "nature", "priroda", "view", "vyhlad"}, []string{"park", "garden", "viewpoint"}},
	{[]string{"shop", "nakup", "market", "trh", "mall"}, []string{"mall", "market"}},
	{[]string{"club", "party", "dance", "tanec", "casino"}, []string{"nightclub"}},
	{[]string{"hotel", "hostel", "stay", "ubytovan", "sleep", "penzion"}, []string{"hotel", "hostel", "guest_house"}},
}

var cuisineRules = []struct {
	words   []string
	cuisine string
}{
	{[]string{"italian", "talian", "pizza", "pasta"}, "italian"},
	{[]string{"sushi", "japanese", "japon", "ramen"}, "japanese"},
	{[]string{"chinese", "cinsk"}, "chinese"},
	{[]string{"indian", "indick", "curry"}, "indian"},
	{[]string{"mexican", "mexick", "taco", "burrito"}, "mexican"},
	{[]string{"slovak", "slovensk", "halusk", "bryndz"}, "slovak"},
	{[]string{"vegan"}, "vegan"},
	{[]string{"vegetarian", "bezmas"}, "vegetarian"},
	{[]string{"burger"}, "burger"},
}

var (
	lowBudget      = []string{"cheap", "budget", "inexpensive", "affordable", "lacn", "lacny", "student"}
	highBudget     = []string{"expensive", "luxury", "fine dining", "upscale", "luxus", "drah"}
	wheelchairWord = []string{"wheelchair", "accessible", "bezbarier", "vozick"}
	outdoorWords   = []string{"outdoor", "outside", "terrace", "teras", "patio", "vonku", "garden seating", "letna"}
	timeWords      = []string{"tonight", "this evening", "evening", "morning", "afternoon", "weekend", "tomorrow", "today",
		"dnes vecer", "vecer", "rano", "poobede", "vikend", "zajtra", "dnes"}
)

var locationRe = regexp.MustCompile(`\b(?:in|near|around|at|v|vo|pri|na)\s+(\p{Lu}[\p{L}-]*(?:\s+\p{Lu}[\p{L}-]*)?)`)

// Parse implements Parser.
func (FallbackParser) Parse(_ context.Context, text string) (Filter, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Filter{}, ErrEmptyRequest
	}
	folded := topic.Fold(text)
	tokens := tokenize(folded)
	has := func(keys []string) bool { return mentions(folded, tokens, keys) }

	types := map[string]bool{}
	var ordered []string
	for _, r := range placeRules {
		if !has(r.words) {
			continue
		}
		for _, t := range r.types {
			if !types[t] {
				types[t] = true
				ordered = append(ordered, t)
			}
		}
	}
	f := Filter{SearchContext: text}
	for _, c := range cuisineRules {
		if has(c.words) {
			f.Cuisine = c.cuisine
			break
		}
	}
	if f.Cuisine != "" && !types["restaurant"] && !types["cafe"] {
		ordered = append(ordered, "restaurant")
	}
	if len(ordered) == 0 {
		ordered = []string{"restaurant", "cafe"}
	}
	f.PlaceTypes = ordered
	f.ActivityType = ActivityFor(ordered[0])

	switch {
	case has(lowBudget):
		f.Preferences.Budget = "low"
	case has(highBudget):
		f.Preferences.Budget = "high"
	}
	f.Preferences.Wheelchair = has(wheelchairWord)
	f.Preferences.OutdoorSeating = has(outdoorWords)
	for _, w := range timeWords {
		if has([]string{w}) {
			f.TimeWindow = w
			break
		}
	}
	if m := locationRe.FindStringSubmatch(text); m != nil {
		f.Location = m[1]
	}
	return f, nil
}

// mentions reports whether any key starts a word of folded text. Keys with
// a space are matched as phrases.
func mentions(folded string, tokens []string, keys []string) bool {
	for _, k := range keys {
		if strings.Contains(k, " ") {
			if strings.Contains(folded, k) {
				return true
			}
			continue
		}
		for _, t := range tokens {
			if strings.HasPrefix(t, k) {
				return true
			}
		}
	}
	return false
}

func tokenize(folded string) []string {
	return strings.FieldsFunc(folded, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
}
