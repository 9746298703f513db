package specdb

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/bincache/internal/core/ports"
)

// NodeID is the unique identifier for the spec database factory Graft node.
const NodeID graft.ID = "adapter.specdb"

func init() {
	graft.Register(graft.Node[ports.SpecDBFactory]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.SpecDBFactory, error) {
			return NewFactory(), nil
		},
	})
}
