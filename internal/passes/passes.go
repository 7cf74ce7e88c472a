package passes

import (
	"fmt"

	"github.com/retroenv/c64re/internal/registry"
	"github.com/retroenv/c64re/internal/scheduler"
)

// Default returns a registry holding all built-in proposers.
func Default() (*registry.Registry[scheduler.Proposer], error) {
	reg, err := registry.New[scheduler.Proposer](
		Coalesce{},
	)
	if err != nil {
		return nil, fmt.Errorf("registering built-in passes: %w", err)
	}
	return reg, nil
}
