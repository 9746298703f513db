package mirror

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/bincache/internal/core/ports"
)

// NodeID is the unique identifier for the mirror storage Graft node.
const NodeID graft.ID = "adapter.mirror"

func init() {
	graft.Register(graft.Node[ports.MirrorStorage]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.MirrorStorage, error) {
			return NewRouter(), nil
		},
	})
}
