package imagery

import (
	"fmt"
	"net/url"

	"polescan/internal/config"
	"polescan/internal/geo"
)

// Provider is one ranked WMS imagery endpoint.
type Provider struct {
	Name    string
	BaseURL string
	Service string
	Version string
	Layer   string
	Format  string
	CRS     string
}

// FromConfig converts the flat config entries into providers, keeping rank order.
func FromConfig(entries []config.ProviderConfig) []Provider {
	providers := make([]Provider, 0, len(entries))
	for _, e := range entries {
		providers = append(providers, Provider{
			Name:    e.Name,
			BaseURL: e.BaseURL,
			Service: e.Service,
			Version: e.Version,
			Layer:   e.Layer,
			Format:  e.Format,
			CRS:     e.CRS,
		})
	}
	return providers
}

// GetMapURL builds the WMS GetMap request URL for a tile bounding box.
func (p Provider) GetMapURL(bbox geo.BBox, width, height int) string {
	params := url.Values{}
	params.Set("SERVICE", p.Service)
	params.Set("VERSION", p.Version)
	params.Set("REQUEST", "GetMap")
	params.Set("BBOX", bbox.String())
	params.Set("WIDTH", fmt.Sprintf("%d", width))
	params.Set("HEIGHT", fmt.Sprintf("%d", height))
	params.Set("LAYERS", p.Layer)
	params.Set("FORMAT", p.Format)
	// WMS 1.3.0 renamed SRS to CRS
	if p.Version == "1.3.0" {
		params.Set("CRS", p.CRS)
	} else {
		params.Set("SRS", p.CRS)
	}

	return p.BaseURL + "?" + params.Encode()
}
