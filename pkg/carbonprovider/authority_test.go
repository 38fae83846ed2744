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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Sambit-Mondal/Karbos/pkg/karbos"
)

func TestRescale(t *testing.T) {
	cases := []struct {
		index float64
		want  float64
	}{
		{0, 0},
		{100, 800},
		{50, 400},
		{-10, 0},
		{150, 800},
	}
	for _, c := range cases {
		if got := rescale(c.index); got != c.want {
			t.Errorf("rescale(%v) = %v, want %v", c.index, got, c.want)
		}
	}
}

func TestAuthorityProviderPoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"from":"2026-01-01T00:00:00Z","index":50}]}`))
	}))
	defer srv.Close()

	p := NewAuthorityProvider(srv.URL)
	got, err := p.Point(context.Background(), "GB", time.Now())
	if err != nil {
		t.Fatalf("Point: %v", err)
	}
	if got.Intensity != 400 {
		t.Errorf("Intensity = %v, want 400 (index 50 rescaled)", got.Intensity)
	}
}

func TestAuthorityProviderPointEmptyResponseIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	p := NewAuthorityProvider(srv.URL)
	_, err := p.Point(context.Background(), "GB", time.Now())
	if err == nil {
		t.Error("expected an error on an empty authority response")
	}
}

func TestAuthorityProviderRangeAuthFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewAuthorityProvider(srv.URL)
	_, err := p.Range(context.Background(), "GB", time.Now(), time.Now())
	if err != karbos.ErrProviderAuthFailed {
		t.Errorf("err = %v, want ErrProviderAuthFailed", err)
	}
}
