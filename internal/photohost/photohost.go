// Package photohost implements the PhotoHostPort from spec §4.3: an
// HTTP-based client against the photo host's generic REST contract, with
// per-host request pacing and retry/backoff. The photo host's own wire
// protocol is explicitly out of scope — this client only needs to satisfy
// the port.
package photohost

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/maukemana/lumalens/internal/apperr"
	"github.com/maukemana/lumalens/internal/ports"
)

// Config configures a DefaultPhotoHost.
type Config struct {
	BaseURL      string
	APIKey       string
	APISecret    string
	FetchTimeout time.Duration

	// RequestsPerSecond paces outbound calls to the photo host, distinct
	// from the batch-level RateLimiter which paces LLM calls — the two
	// protect different upstreams and are configured independently.
	RequestsPerSecond float64
}

func (c Config) timeout() time.Duration {
	if c.FetchTimeout > 0 {
		return c.FetchTimeout
	}
	return 30 * time.Second
}

func (c Config) rps() float64 {
	if c.RequestsPerSecond > 0 {
		return c.RequestsPerSecond
	}
	return 10
}

// DefaultPhotoHost implements ports.PhotoHostPort against a generic REST
// contract: GET {baseURL}/albums/{albumID}, GET
// {baseURL}/albums/{albumID}/images, and a direct GET of whatever URL
// ListAlbumImages reported as each image's source URL.
type DefaultPhotoHost struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
}

// New constructs a DefaultPhotoHost.
func New(cfg Config) *DefaultPhotoHost {
	return &DefaultPhotoHost{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.timeout()},
		limiter: rate.NewLimiter(rate.Limit(cfg.rps()), 1),
	}
}

type albumDetailsWire struct {
	Name      string   `json:"name"`
	Path      string   `json:"path"`
	Hierarchy []string `json:"hierarchy"`
}

type sourceImageWire struct {
	SourceImageKey string `json:"sourceImageKey"`
	Filename       string `json:"filename"`
	SourceURL      string `json:"sourceUrl"`
	Title          string `json:"title"`
	Caption        string `json:"caption"`
}

// GetAlbumDetails fetches album name/path/hierarchy metadata.
func (h *DefaultPhotoHost) GetAlbumDetails(ctx context.Context, albumID string) (ports.AlbumDetails, error) {
	var wire albumDetailsWire
	if err := h.getJSON(ctx, "/albums/"+url.PathEscape(albumID), &wire); err != nil {
		return ports.AlbumDetails{}, err
	}
	return ports.AlbumDetails{Name: wire.Name, Path: wire.Path, Hierarchy: wire.Hierarchy}, nil
}

// ListAlbumImages fetches the source image list for an album.
func (h *DefaultPhotoHost) ListAlbumImages(ctx context.Context, albumID string) ([]ports.SourceImage, error) {
	var wire []sourceImageWire
	if err := h.getJSON(ctx, "/albums/"+url.PathEscape(albumID)+"/images", &wire); err != nil {
		return nil, err
	}
	out := make([]ports.SourceImage, len(wire))
	for i, w := range wire {
		out[i] = ports.SourceImage{
			SourceImageKey: w.SourceImageKey,
			Filename:       w.Filename,
			SourceURL:      w.SourceURL,
			Title:          w.Title,
			Caption:        w.Caption,
		}
	}
	return out, nil
}

// FetchImage downloads raw image bytes from a URL previously reported by
// ListAlbumImages.
func (h *DefaultPhotoHost) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	op := func() ([]byte, error) {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		h.authenticate(req)

		resp, err := h.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests {
			return nil, apperr.New(apperr.Upstream503, fmt.Sprintf("photo host returned %d fetching %s", resp.StatusCode, imageURL))
		}
		if resp.StatusCode >= 400 {
			return nil, backoff.Permanent(apperr.New(apperr.UpstreamPayloadRejected, fmt.Sprintf("photo host returned %d fetching %s", resp.StatusCode, imageURL)))
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return data, nil
	}

	return backoff.Retry(ctx, op, backoff.WithMaxTries(4), backoff.WithBackOff(backoff.NewExponentialBackOff()))
}

func (h *DefaultPhotoHost) getJSON(ctx context.Context, path string, out any) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.cfg.BaseURL+path, nil)
	if err != nil {
		return apperr.Wrap(apperr.InputInvalid, "build photo host request", err)
	}
	h.authenticate(req)

	resp, err := h.client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.Upstream503, "photo host request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return apperr.New(apperr.Upstream503, fmt.Sprintf("photo host returned %d for %s", resp.StatusCode, path))
	}
	if resp.StatusCode >= 400 {
		return apperr.New(apperr.UpstreamPayloadRejected, fmt.Sprintf("photo host returned %d for %s", resp.StatusCode, path))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrap(apperr.Parse, "decode photo host response", err)
	}
	return nil
}

func (h *DefaultPhotoHost) authenticate(req *http.Request) {
	if h.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", h.cfg.APIKey)
	}
	if h.cfg.APISecret != "" {
		req.Header.Set("X-API-Secret", h.cfg.APISecret)
	}
}
