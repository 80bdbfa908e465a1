package deltasync

import (
	"github.com/google/uuid"
	"github.com/marmos91/synkerd/pkg/metadata"
)

// nodeHistory accumulates every replayed entry for one node.
type nodeHistory struct {
	first metadata.ChangeOp
	last  metadata.ChangeOp

	// firstOldPath is the pre-move path of the earliest move entry.
	firstOldPath string
	moved        bool

	// ownEdit / otherEdit track which side touched the node. otherOrigins
	// keeps the distinct foreign origins for conflict reporting.
	ownEdit      bool
	otherEdit    bool
	otherOrigins []string
}

func (h *nodeHistory) record(op metadata.ChangeOp, deviceID string) {
	h.last = op
	if op.Type == metadata.ChangeMoved && !h.moved {
		h.moved = true
		h.firstOldPath = op.OldPath
	}
	if op.Origin == deviceID && deviceID != "" {
		h.ownEdit = true
		return
	}
	h.otherEdit = true
	for _, o := range h.otherOrigins {
		if o == op.Origin {
			return
		}
	}
	h.otherOrigins = append(h.otherOrigins, op.Origin)
}

// collapse reduces a replayed window of change-log entries into one effective
// change per node, from the point of view of deviceID:
//
//   - entries originating only from deviceID are dropped (a device never
//     needs its own changes echoed back)
//   - a node created and deleted within the window vanishes entirely
//   - a node created then modified within the window surfaces as a single
//     creation with the latest snapshot
//   - a node moved (possibly several times) surfaces as one move from its
//     first pre-move path to its final path
//   - anything else collapses to a modification or deletion
//   - a node touched by both deviceID and another origin is a conflict and
//     is reported instead of returned as a change
func collapse(ops []metadata.ChangeOp, deviceID string) *Delta {
	histories := make(map[uuid.UUID]*nodeHistory)
	order := make([]uuid.UUID, 0, len(ops))

	for _, op := range ops {
		h, ok := histories[op.NodeID]
		if !ok {
			h = &nodeHistory{first: op}
			histories[op.NodeID] = h
			order = append(order, op.NodeID)
		}
		h.record(op, deviceID)
	}

	delta := &Delta{}
	for _, nodeID := range order {
		h := histories[nodeID]

		if h.ownEdit && h.otherEdit {
			delta.Conflicts = append(delta.Conflicts, Conflict{
				NodeID:  nodeID,
				Path:    h.last.Path,
				Origins: h.otherOrigins,
			})
			continue
		}
		if h.ownEdit {
			continue
		}

		change, ok := h.effective(nodeID)
		if ok {
			delta.Changes = append(delta.Changes, change)
		}
	}
	return delta
}

// effective reduces one node's history to its net change. The second return
// is false when the history cancels out.
func (h *nodeHistory) effective(nodeID uuid.UUID) (Change, bool) {
	createdHere := h.first.Type == metadata.ChangeCreated
	deleted := h.last.Type == metadata.ChangeDeleted

	switch {
	case createdHere && deleted:
		// Never existed as far as this device is concerned.
		return Change{}, false

	case deleted:
		return Change{
			Type:   metadata.ChangeDeleted,
			NodeID: nodeID,
			Path:   h.last.Path,
		}, true

	case createdHere:
		return Change{
			Type:   metadata.ChangeCreated,
			NodeID: nodeID,
			Path:   h.last.Path,
			Node:   h.last.Node,
		}, true

	case h.moved:
		return Change{
			Type:    metadata.ChangeMoved,
			NodeID:  nodeID,
			Path:    h.last.Path,
			OldPath: h.firstOldPath,
			Node:    h.last.Node,
		}, true

	default:
		return Change{
			Type:   metadata.ChangeModified,
			NodeID: nodeID,
			Path:   h.last.Path,
			Node:   h.last.Node,
		}, true
	}
}
