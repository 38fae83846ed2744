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

// Package klog builds the process-wide logger: a go.uber.org/zap production
// logger bridged to github.com/go-logr/logr via github.com/go-logr/zapr, the
// same bridge the teacher's cmd/controller/main.go performs
// (zapr.NewLogger(logging.FromContext(ctx).Desugar())).
package klog

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

type ctxKey struct{}

// New builds a production zap logger bridged into a logr.Logger, named for
// the given component.
func New(component string) logr.Logger {
	zl, err := zap.NewProduction()
	if err != nil {
		zl = zap.NewNop()
	}
	return zapr.NewLogger(zl).WithName(component)
}

// WithLogger stashes log in ctx for retrieval by FromContext.
func WithLogger(ctx context.Context, log logr.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// FromContext returns the logger stashed by WithLogger, or a discarding
// logger if none was stashed.
func FromContext(ctx context.Context) logr.Logger {
	if log, ok := ctx.Value(ctxKey{}).(logr.Logger); ok {
		return log
	}
	return logr.Discard()
}
