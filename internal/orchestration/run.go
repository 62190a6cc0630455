package orchestration

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chriseon/relay/internal/models"
)

// maxQueryLen bounds the accepted query size.
const maxQueryLen = 32 * 1024

// NewRun validates the inputs and builds a queued run. Every stage slot
// must carry a parseable "provider:model" ref up front; a run that
// cannot name its models never enters the queue.
func NewRun(query string, selected map[models.Slot]string, opts models.GenOptions) (*models.Run, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if len(query) > maxQueryLen {
		return nil, fmt.Errorf("query exceeds %d bytes", maxQueryLen)
	}

	for _, stage := range models.Stages() {
		ref, ok := selected[stage.Slot]
		if !ok || strings.TrimSpace(ref) == "" {
			return nil, fmt.Errorf("no model selected for slot %q", stage.Slot)
		}
		if _, _, err := models.ParseModelRef(ref); err != nil {
			return nil, fmt.Errorf("slot %q: %w", stage.Slot, err)
		}
	}

	opts.OutputLength = models.NormalizeOutputLength(string(opts.OutputLength))

	return &models.Run{
		ID:             uuid.New(),
		Query:          query,
		Status:         models.StatusQueued,
		SelectedModels: selected,
		Options:        opts,
		CreatedAt:      time.Now().UTC(),
	}, nil
}
