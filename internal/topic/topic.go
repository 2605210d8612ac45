// Package topic classifies a free-text request context into one of a small
// set of buckets. Each bucket carries the URL keyword lists the relevance
// scorer uses to decide which pages of a venue's site are worth visiting.
//
// Buckets are data: DefaultCatalog ships the built-in English and
// Slovak/Czech vocabulary and LoadCatalog replaces it from a YAML file.
package topic

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	yaml "gopkg.in/yaml.v3"
)

// Topic is the closed set of request categories.
type Topic int

const (
	Generic Topic = iota
	Interior
	Food
	Atmosphere
)

func (t Topic) String() string {
	switch t {
	case Interior:
		return "interior"
	case Food:
		return "food"
	case Atmosphere:
		return "atmosphere"
	default:
		return "generic"
	}
}

// Parse maps a bucket name back to a Topic.
func Parse(s string) (Topic, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "interior":
		return Interior, nil
	case "food":
		return Food, nil
	case "atmosphere":
		return Atmosphere, nil
	case "generic", "default", "":
		return Generic, nil
	}
	return Generic, fmt.Errorf("unknown topic %q", s)
}

// Bucket holds the trigger words that select it and the three URL keyword
// lists it contributes to rule-based scoring.
type Bucket struct {
	Topic          Topic
	Triggers       []string
	HighPriority   []string
	MediumPriority []string
	Skip           []string
}

// Catalog is an ordered bucket list. The first bucket whose trigger matches
// wins; Fallback is used when none does.
type Catalog struct {
	Buckets  []Bucket
	Fallback Bucket
}

// Classify returns the topic of context. It is pure and case, accent and
// whitespace insensitive.
func (c *Catalog) Classify(context string) Topic {
	return c.BucketFor(context).Topic
}

// BucketFor returns the bucket selected by context.
func (c *Catalog) BucketFor(context string) Bucket {
	folded := Fold(context)
	for _, b := range c.Buckets {
		for _, w := range b.Triggers {
			if w != "" && strings.Contains(folded, Fold(w)) {
				return b
			}
		}
	}
	return c.Fallback
}

// Fold lower-cases s and strips combining marks so that "Kaviareň" and
// "kaviaren" compare equal.
func Fold(s string) string {
	// transformers carry state; build one per call
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// contactPages are skip-listed by every built-in bucket.
var contactPages = []string{
	"kontakt", "contact", "impressum", "gdpr", "privacy", "ochrana-osobnych",
	"cookies", "terms", "obchodne-podmienky", "login", "register", "cart", "kosik",
}

// DefaultCatalog returns the built-in buckets.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Buckets: []Bucket{
			{
				Topic:          Interior,
				Triggers:       []string{"interior", "interiér", "inside", "vnútri", "design", "dizajn", "decor", "priestor", "seating", "sedenie"},
				HighPriority:   []string{"interior", "interier", "galeria", "gallery", "priestor", "space", "fotogaleria", "photos", "fotky"},
				MediumPriority: []string{"about", "o-nas", "onas", "rooms", "miestnosti", "media", "aktuality"},
				Skip:           append([]string{"menu", "jedalny", "cennik", "price", "blog"}, contactPages...),
			},
			{
				Topic:          Food,
				Triggers:       []string{"food", "jedlo", "dish", "jedla", "menu", "meal", "cuisine", "kuchyňa", "tea", "čaj", "coffee", "káva", "drink", "nápoj", "dessert", "pizza", "burger", "breakfast", "raňajky"},
				HighPriority:   []string{"menu", "jedalny-listok", "jedalny", "food", "jedlo", "dishes", "ponuka", "gallery", "galeria", "tea", "caj", "napoje", "drinks"},
				MediumPriority: []string{"about", "o-nas", "photos", "fotky", "specialty", "specialita", "obchod", "shop"},
				Skip:           append([]string{"kariera", "career", "jobs", "rezervacia", "reservation"}, contactPages...),
			},
			{
				Topic:          Atmosphere,
				Triggers:       []string{"atmosphere", "atmosféra", "cozy", "útulný", "ambience", "vibe", "mood", "romantic", "romantický", "nálada", "party", "live music"},
				HighPriority:   []string{"gallery", "galeria", "fotogaleria", "photos", "fotky", "atmosfera", "events", "akcie", "podujatia"},
				MediumPriority: []string{"about", "o-nas", "interior", "interier", "priestor", "blog", "aktuality"},
				Skip:           append([]string{"cennik", "price"}, contactPages...),
			},
		},
		Fallback: Bucket{
			Topic:          Generic,
			HighPriority:   []string{"gallery", "galeria", "fotogaleria", "photos", "fotky", "images", "obrazky"},
			MediumPriority: []string{"about", "o-nas", "menu", "interior", "interier", "portfolio", "media"},
			Skip:           contactPages,
		},
	}
}

type fileBucket struct {
	Topic          string   `yaml:"topic"`
	Triggers       []string `yaml:"triggers"`
	HighPriority   []string `yaml:"high_priority"`
	MediumPriority []string `yaml:"medium_priority"`
	Skip           []string `yaml:"skip"`
}

type fileCatalog struct {
	Buckets  []fileBucket `yaml:"buckets"`
	Fallback *fileBucket  `yaml:"fallback"`
}

// LoadCatalog reads buckets from a YAML file. When the file omits the
// fallback bucket the built-in one is kept.
func LoadCatalog(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCatalog(b)
}

// ParseCatalog decodes YAML catalog bytes.
func ParseCatalog(b []byte) (*Catalog, error) {
	var fc fileCatalog
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return nil, fmt.Errorf("parse topic catalog: %w", err)
	}
	cat := &Catalog{Fallback: DefaultCatalog().Fallback}
	for i, fb := range fc.Buckets {
		bk, err := fb.bucket()
		if err != nil {
			return nil, fmt.Errorf("bucket %d: %w", i, err)
		}
		if len(bk.Triggers) == 0 {
			return nil, fmt.Errorf("bucket %d (%s): no triggers", i, bk.Topic)
		}
		cat.Buckets = append(cat.Buckets, bk)
	}
	if fc.Fallback != nil {
		bk, err := fc.Fallback.bucket()
		if err != nil {
			return nil, fmt.Errorf("fallback: %w", err)
		}
		cat.Fallback = bk
	}
	return cat, nil
}

func (fb fileBucket) bucket() (Bucket, error) {
	t, err := Parse(fb.Topic)
	if err != nil {
		return Bucket{}, err
	}
	return Bucket{
		Topic:          t,
		Triggers:       fb.Triggers,
		HighPriority:   lower(fb.HighPriority),
		MediumPriority: lower(fb.MediumPriority),
		Skip:           lower(fb.Skip),
	}, nil
}

func lower(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
