// Package publish ships a finished scoring run to external storage.
package publish

import (
	"context"

	"github.com/kx0101/perfgate/internal/artifact"
	"github.com/kx0101/perfgate/internal/models"
	"github.com/kx0101/perfgate/internal/scoring"
)

// Bundle is one scored run. HTMLReport is optional.
type Bundle struct {
	Artifact   *artifact.Artifact
	Result     *scoring.Result
	Outcome    models.GateOutcome
	HTMLReport []byte
	Labels     map[string]string
}

// Publisher returns a location (URL or URI) where the run can be found.
type Publisher interface {
	Publish(ctx context.Context, b *Bundle) (string, error)
}
