package report

import (
	"context"

	"github.com/wellcode-ai/wellcode-cli/internal/metrics"
)

// Advisor turns a finalized metrics snapshot into free-form commentary.
// Implementations sit outside the collection core; the only contract is
// "accepts a metrics snapshot, returns text".
type Advisor interface {
	Advise(ctx context.Context, snapshot metrics.Snapshot) (string, error)
}

// NoopAdvisor is the default advisor; it produces no commentary.
type NoopAdvisor struct{}

// Advise implements Advisor.
func (NoopAdvisor) Advise(context.Context, metrics.Snapshot) (string, error) {
	return "", nil
}
