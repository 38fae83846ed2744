/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package carbonprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Sambit-Mondal/Karbos/pkg/karbos"
)

// zoneCurrentResponse and zoneForecastResponse model a zone-keyed provider's
// wire shapes (Electricity-Maps-style): a single current datum, and a list
// of forecast data points.
type zoneCurrentResponse struct {
	Zone            string    `json:"zone"`
	CarbonIntensity float64   `json:"carbonIntensity"`
	Datetime        time.Time `json:"datetime"`
}

type zoneForecastResponse struct {
	Zone string          `json:"zone"`
	Data []zoneForecastEntry `json:"forecast"`
}

type zoneForecastEntry struct {
	CarbonIntensity float64   `json:"carbonIntensity"`
	Datetime        time.Time `json:"datetime"`
}

// ZoneProvider adapts a zone-keyed carbon-intensity API (current + forecast
// endpoints returning gCO2eq/kWh directly).
type ZoneProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewZoneProvider constructs a ZoneProvider with a client timeout matching
// MaxCallDeadline.
func NewZoneProvider(baseURL, apiKey string) *ZoneProvider {
	return &ZoneProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: MaxCallDeadline},
	}
}

func (p *ZoneProvider) Point(ctx context.Context, region string, _ time.Time) (karbos.IntensitySample, error) {
	url := fmt.Sprintf("%s/v3/carbon-intensity/latest?zone=%s", p.BaseURL, region)
	var body zoneCurrentResponse
	if err := p.get(ctx, url, &body); err != nil {
		return karbos.IntensitySample{}, err
	}
	now := time.Now()
	return karbos.IntensitySample{
		Region:     region,
		Instant:    body.Datetime,
		Intensity:  body.CarbonIntensity,
		Unit:       karbos.IntensityUnit,
		Provenance: p.BaseURL,
		FetchedAt:  now,
	}, nil
}

func (p *ZoneProvider) Range(ctx context.Context, region string, start, end time.Time) ([]karbos.IntensitySample, error) {
	url := fmt.Sprintf("%s/v3/carbon-intensity/forecast?zone=%s", p.BaseURL, region)
	var body zoneForecastResponse
	if err := p.get(ctx, url, &body); err != nil {
		return nil, err
	}
	now := time.Now()
	var samples []karbos.IntensitySample
	for _, e := range body.Data {
		if e.Datetime.Before(start) || e.Datetime.After(end) {
			continue
		}
		samples = append(samples, karbos.IntensitySample{
			Region:     region,
			Instant:    e.Datetime,
			Intensity:  e.CarbonIntensity,
			Unit:       karbos.IntensityUnit,
			Provenance: p.BaseURL,
			FetchedAt:  now,
		})
	}
	return samples, nil
}

func (p *ZoneProvider) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", karbos.ErrProviderMalformed, err)
	}
	req.Header.Set("auth-token", p.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", karbos.ErrProviderUnreachable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return karbos.ErrProviderAuthFailed
	case http.StatusTooManyRequests:
		return karbos.ErrProviderRateLimited
	default:
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d: %s", karbos.ErrProviderUnreachable, resp.StatusCode, string(b))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", karbos.ErrProviderMalformed, err)
	}
	return nil
}
