package crawl

import (
	"math"

	"github.com/hyperifyio/placescout/internal/relevance"
)

// Weights holds the tuned constants of page ranking. They are empirical, so
// every one of them is overridable from configuration.
type Weights struct {
	Blend relevance.BlendWeights
	// ContextScale maps blended priority to contextScore.
	ContextScale float64
	// ImageScale maps the saturated image count to imageScore.
	ImageScale float64
	// ImageSaturation is the image count at which imageScore stops growing.
	ImageSaturation int
	ContextWeight   float64
	ImageWeight     float64
	// MinImages below which FewImagesPenalty multiplies the combined score.
	MinImages        int
	FewImagesPenalty float64
}

// DefaultWeights returns the stock ranking constants.
func DefaultWeights() Weights {
	return Weights{
		Blend:            relevance.DefaultBlend,
		ContextScale:     0.8,
		ImageScale:       0.2,
		ImageSaturation:  30,
		ContextWeight:    0.8,
		ImageWeight:      0.2,
		MinImages:        3,
		FewImagesPenalty: 0.3,
	}
}

// PageScore is one Scout observation. It is not modified after creation.
type PageScore struct {
	URL             string   `json:"url"`
	Title           string   `json:"page_title"`
	Priority        float64  `json:"priority"`
	AIScore         *float64 `json:"ai_score,omitempty"`
	EstimatedImages int      `json:"estimated_images"`
	ContextScore    float64  `json:"context_score"`
	ImageScore      float64  `json:"image_score"`
	CombinedScore   float64  `json:"combined_score"`
	// Failed is set when the page could not be fetched or parsed.
	Failed bool `json:"failed,omitempty"`

	order int
}

// Score builds a PageScore from a blended priority and an image estimate.
func (w Weights) Score(pageURL, title string, priority float64, imageCount int) PageScore {
	priority = relevance.Clamp(priority)
	sat := w.ImageSaturation
	if sat <= 0 {
		sat = 1
	}
	ctxScore := priority * w.ContextScale
	imgScore := math.Min(float64(imageCount)/float64(sat), 1.0) * w.ImageScale
	combined := ctxScore*w.ContextWeight + imgScore*w.ImageWeight
	if imageCount < w.MinImages {
		combined *= w.FewImagesPenalty
	}
	return PageScore{
		URL:             pageURL,
		Title:           title,
		Priority:        priority,
		EstimatedImages: imageCount,
		ContextScore:    ctxScore,
		ImageScore:      imgScore,
		CombinedScore:   combined,
	}
}
