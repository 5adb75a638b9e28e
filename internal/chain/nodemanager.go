// NodeManager is adapted from the upstream monitor's internal/rpc.Manager:
// it health-checks a small pool of chain RPC endpoints on a ticker and hands
// callers the best currently-healthy one, so a single bad node never takes
// the chain view down.
package chain

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/resi-labs-ai/resi-labs-api/internal/logger"
)

type nodeStatus struct {
	Healthy   bool
	Height    uint64
	LastError error
	LastCheck time.Time
}

type node struct {
	client *Client
	mu     sync.RWMutex
	status nodeStatus
}

func (n *node) getStatus() nodeStatus {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.status
}

func (n *node) setStatus(s nodeStatus) {
	n.mu.Lock()
	n.status = s
	n.mu.Unlock()
}

type NodeManager struct {
	nodes       []*node
	checkPeriod time.Duration
}

func NewNodeManager(clients []*Client, checkPeriod time.Duration) *NodeManager {
	if checkPeriod <= 0 {
		checkPeriod = 10 * time.Second
	}
	nodes := make([]*node, 0, len(clients))
	for _, c := range clients {
		nodes = append(nodes, &node{client: c})
	}
	return &NodeManager{nodes: nodes, checkPeriod: checkPeriod}
}

func (m *NodeManager) Start(ctx context.Context) {
	m.checkAll(ctx)
	ticker := time.NewTicker(m.checkPeriod)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkAll(ctx)
			}
		}
	}()
}

func (m *NodeManager) checkAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, n := range m.nodes {
		wg.Add(1)
		go func(n *node) {
			defer wg.Done()
			m.checkNode(ctx, n)
		}(n)
	}
	wg.Wait()

	healthy := 0
	for _, n := range m.nodes {
		if n.getStatus().Healthy {
			healthy++
		}
	}
	logger.Debug("CHAIN", "node health check complete: %d/%d healthy", healthy, len(m.nodes))
}

func (m *NodeManager) checkNode(ctx context.Context, n *node) {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	height, err := n.client.BlockHeight(cctx)
	if err != nil {
		n.setStatus(nodeStatus{Healthy: false, LastError: err, LastCheck: time.Now()})
		return
	}
	n.setStatus(nodeStatus{Healthy: true, Height: height, LastCheck: time.Now()})
}

// Best returns the healthy node with the highest observed block height, or
// nil if every node is currently unhealthy.
func (m *NodeManager) Best() *Client {
	type candidate struct {
		client *Client
		height uint64
	}
	var candidates []candidate
	for _, n := range m.nodes {
		st := n.getStatus()
		if st.Healthy {
			candidates = append(candidates, candidate{client: n.client, height: st.Height})
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].height > candidates[j].height })
	return candidates[0].client
}

func (m *NodeManager) Any() *Client {
	if len(m.nodes) == 0 {
		return nil
	}
	return m.nodes[0].client
}
