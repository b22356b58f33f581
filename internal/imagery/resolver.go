package imagery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"polescan/internal/geo"
	"polescan/internal/logger"
)

const (
	// UserAgent sent with every imagery request.
	UserAgent = "polescan/1.0"
)

// ErrNoImagery is returned after every configured provider has been tried
// once for a tile and none produced an image.
var ErrNoImagery = errors.New("no imagery available from any provider")

// Source fetches a raster image for a tile bounding box. The returned
// string identifies the provider that served the image.
type Source interface {
	FetchTile(ctx context.Context, bbox geo.BBox, width, height int) ([]byte, string, error)
}

// Resolver queries ranked providers in order and returns the first
// successful response. Each provider is tried at most once per call.
type Resolver struct {
	providers  []Provider
	httpClient *http.Client
	timeout    time.Duration
	logger     *logger.Logger
}

// NewResolver creates a resolver with a per-request timeout and system
// proxy support.
func NewResolver(providers []Provider, timeout time.Duration, logger *logger.Logger) *Resolver {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
	}

	return &Resolver{
		providers: providers,
		httpClient: &http.Client{
			Transport: transport,
		},
		timeout: timeout,
		logger:  logger,
	}
}

// FetchTile iterates providers in rank order. Non-2xx, network errors,
// timeouts and empty bodies all advance to the next provider.
func (r *Resolver) FetchTile(ctx context.Context, bbox geo.BBox, width, height int) ([]byte, string, error) {
	if err := bbox.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid tile bbox: %w", err)
	}
	if len(r.providers) == 0 {
		return nil, "", ErrNoImagery
	}

	for _, provider := range r.providers {
		data, err := r.fetchFrom(ctx, provider, bbox, width, height)
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			r.logger.Warning("Provider %s failed for bbox %s: %v", provider.Name, bbox.String(), err)
			continue
		}
		return data, provider.Name, nil
	}

	return nil, "", ErrNoImagery
}

// fetchFrom issues a single GetMap request against one provider.
func (r *Resolver) fetchFrom(ctx context.Context, provider Provider, bbox geo.BBox, width, height int) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, provider.GetMapURL(bbox, width, height), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("tile request failed with status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tile body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("provider returned empty body")
	}

	return data, nil
}
