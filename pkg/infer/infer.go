// Package infer produces fresh context documents by inspecting a codebase.
// The merge engine treats inference as an external collaborator behind the
// Source interface; Scanner is the built-in local implementation.
package infer

import (
	"context"

	"github.com/ctxkeep/ctxkeep/pkg/docs"
)

// Source produces a freshly inferred document for a kind. Implementations
// are synchronous from the engine's point of view and may fail per kind;
// the reconciler records the failure and skips that kind for the pass.
type Source interface {
	Infer(ctx context.Context, kind docs.Kind) (docs.Document, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, kind docs.Kind) (docs.Document, error)

// Infer implements Source.
func (f SourceFunc) Infer(ctx context.Context, kind docs.Kind) (docs.Document, error) {
	return f(ctx, kind)
}
