// Package render turns a URL into HTML for the crawler. The plain HTTP
// renderer is the default; the Chrome renderer executes page scripts for
// sites that build their galleries client-side.
package render

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/placescout/internal/fetch"
)

// Page is a rendered document.
type Page struct {
	// URL is the final location after redirects.
	URL  string
	Body []byte
	// Engine names the renderer that produced Body.
	Engine string
}

// Renderer produces the HTML of rawURL within timeout.
type Renderer interface {
	Render(ctx context.Context, rawURL string, timeout time.Duration) (Page, error)
}

// HTTPRenderer fetches pages without executing scripts.
type HTTPRenderer struct {
	Client *fetch.Client
}

// Render implements Renderer.
func (r *HTTPRenderer) Render(ctx context.Context, rawURL string, timeout time.Duration) (Page, error) {
	if r == nil || r.Client == nil {
		return Page{}, errors.New("http renderer: no client")
	}
	p, err := r.Client.GetWithTimeout(ctx, rawURL, timeout)
	if err != nil {
		return Page{}, err
	}
	return Page{URL: p.URL, Body: p.Body, Engine: "http"}, nil
}

// Fallback tries Primary and, when it fails, Secondary. Used to degrade from
// the browser to plain HTTP when Chrome is unavailable or a page times out.
type Fallback struct {
	Primary   Renderer
	Secondary Renderer
}

// Render implements Renderer.
func (f Fallback) Render(ctx context.Context, rawURL string, timeout time.Duration) (Page, error) {
	p, err := f.Primary.Render(ctx, rawURL, timeout)
	if err == nil || f.Secondary == nil || ctx.Err() != nil || errors.Is(err, fetch.ErrDisallowed) {
		return p, err
	}
	log.Debug().Err(err).Str("url", rawURL).Msg("primary renderer failed; falling back")
	return f.Secondary.Render(ctx, rawURL, timeout)
}
