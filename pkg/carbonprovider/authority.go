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
	"net/http"
	"time"

	"github.com/Sambit-Mondal/Karbos/pkg/karbos"
)

// authorityIndexMax is the top of the [0, 100] scalar index an authority-
// keyed provider (UK-Carbon-Intensity-style) returns.
const authorityIndexMax = 100

// authorityIntensityCeiling is the gCO2eq/kWh value authorityIndexMax
// rescales to (§4.1: "linearly rescaled to [0, 800]").
const authorityIntensityCeiling = 800

type authorityEntry struct {
	From  time.Time `json:"from"`
	Index float64   `json:"index"`
}

type authorityResponse struct {
	Data []authorityEntry `json:"data"`
}

// AuthorityProvider adapts an authority-keyed carbon-intensity API whose
// readings are a unitless [0, 100] index rather than a direct gCO2eq/kWh
// scalar.
type AuthorityProvider struct {
	BaseURL string
	Client  *http.Client
}

// NewAuthorityProvider constructs an AuthorityProvider.
func NewAuthorityProvider(baseURL string) *AuthorityProvider {
	return &AuthorityProvider{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: MaxCallDeadline},
	}
}

// rescale maps a [0, 100] index onto [0, authorityIntensityCeiling].
func rescale(index float64) float64 {
	if index < 0 {
		index = 0
	}
	if index > authorityIndexMax {
		index = authorityIndexMax
	}
	return index / authorityIndexMax * authorityIntensityCeiling
}

func (p *AuthorityProvider) Point(ctx context.Context, region string, at time.Time) (karbos.IntensitySample, error) {
	samples, err := p.Range(ctx, region, at, at)
	if err != nil {
		return karbos.IntensitySample{}, err
	}
	if len(samples) == 0 {
		return karbos.IntensitySample{}, fmt.Errorf("%w: empty authority response", karbos.ErrProviderMalformed)
	}
	return samples[0], nil
}

func (p *AuthorityProvider) Range(ctx context.Context, region string, start, end time.Time) ([]karbos.IntensitySample, error) {
	url := fmt.Sprintf("%s/intensity/%s/%s", p.BaseURL, start.Format(time.RFC3339), end.Format(time.RFC3339))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", karbos.ErrProviderMalformed, err)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", karbos.ErrProviderUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, karbos.ErrProviderRateLimited
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, karbos.ErrProviderAuthFailed
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", karbos.ErrProviderUnreachable, resp.StatusCode)
	}

	var body authorityResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", karbos.ErrProviderMalformed, err)
	}

	now := time.Now()
	samples := make([]karbos.IntensitySample, 0, len(body.Data))
	for _, e := range body.Data {
		samples = append(samples, karbos.IntensitySample{
			Region:     region,
			Instant:    e.From,
			Intensity:  rescale(e.Index),
			Unit:       karbos.IntensityUnit,
			Provenance: p.BaseURL,
			FetchedAt:  now,
		})
	}
	return samples, nil
}
