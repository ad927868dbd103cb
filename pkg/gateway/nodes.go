package gateway

import (
	"sync"

	"avaneesh/zgw-go/pkg/types"
)

// NodeInfo is what the gateway knows about one node
type NodeInfo struct {
	Schemes        types.SchemeMask
	CommandClasses []uint8
}

// NodeTable is the node capability cache consulted for scheme selection
// and receive filtering. Safe for concurrent use.
type NodeTable struct {
	mu    sync.RWMutex
	local types.NodeID
	nodes map[types.NodeID]NodeInfo
}

// NewNodeTable creates an empty table for the gateway node local
func NewNodeTable(local types.NodeID) *NodeTable {
	return &NodeTable{
		local: local,
		nodes: make(map[types.NodeID]NodeInfo),
	}
}

// newNodeTableFromConfig fills a table with the configured nodes. The
// gateway is granted S0 when a network key is configured and no scheme
// is listed for it.
func newNodeTableFromConfig(cfg Config) *NodeTable {
	t := NewNodeTable(types.NodeID(cfg.NodeID))

	local, _ := ParseSchemes(cfg.Schemes)
	if _, ok, _ := cfg.Key(); ok && local == 0 {
		local = types.NodeFlagS0
	}
	t.SetNode(t.local, NodeInfo{Schemes: local})

	for _, n := range cfg.Nodes {
		mask, _ := ParseSchemes(n.Schemes)
		if n.KnownBad {
			mask |= types.NodeFlagKnownBad
		}
		classes := make([]uint8, 0, len(n.CommandClasses))
		for _, cc := range n.CommandClasses {
			classes = append(classes, uint8(cc))
		}
		t.SetNode(types.NodeID(n.ID), NodeInfo{Schemes: mask, CommandClasses: classes})
	}
	return t
}

// SetNode adds or replaces a node
func (t *NodeTable) SetNode(id types.NodeID, info NodeInfo) {
	info.CommandClasses = append([]uint8(nil), info.CommandClasses...)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes[id] = info
}

// RemoveNode forgets a node
func (t *NodeTable) RemoveNode(id types.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.nodes, id)
}

// Node returns the entry for id
func (t *NodeTable) Node(id types.NodeID) (NodeInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	info, ok := t.nodes[id]
	return info, ok
}

// SetKnownBad marks or clears a node as having failed secure inclusion
func (t *NodeTable) SetKnownBad(id types.NodeID, bad bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info := t.nodes[id]
	if bad {
		info.Schemes |= types.NodeFlagKnownBad
	} else {
		info.Schemes &^= types.NodeFlagKnownBad
	}
	t.nodes[id] = info
}

// LocalNodeID implements senddata.Capabilities
func (t *NodeTable) LocalNodeID() types.NodeID {
	return t.local
}

// SchemeMask implements senddata.Capabilities. Unknown nodes have no flags.
func (t *NodeTable) SchemeMask(node types.NodeID) types.SchemeMask {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[node].Schemes
}

// SupportsCommandClass implements senddata.Capabilities
func (t *NodeTable) SupportsCommandClass(node types.NodeID, class uint8) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, c := range t.nodes[node].CommandClasses {
		if c == class {
			return true
		}
	}
	return false
}

// KnownBad implements s0.NodeFilter
func (t *NodeTable) KnownBad(node types.NodeID) bool {
	return t.SchemeMask(node).KnownBad()
}
