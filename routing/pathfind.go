package routing

import (
	"container/heap"
	"errors"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Errors the pathfinder surfaces to its caller (spec §7 "Routing").
var (
	ErrNoRoute           = errors.New("routing: no path to destination")
	ErrRouteTooExpensive = errors.New("routing: cheapest path exceeds fee limit")
)

// Hop is one edge of a resolved route, carrying the amount and CLTV
// expiry the *outgoing* HTLC to that hop must use (spec §4.7: amounts
// are computed backward from the destination).
type Hop struct {
	PubKey          *btcec.PublicKey
	ShortChannelID  uint64
	AmountToForward uint64
	OutgoingCLTV    uint32
}

// Route is a fully resolved path with per-hop amounts and expiries
// already computed.
type Route struct {
	Hops            []Hop
	TotalAmountMsat uint64
	TotalCLTVDelta  uint32
}

// PenaltyFunc scores additional per-edge risk beyond base/proportional
// fee (spec §4.7's "penalty(cltv_delta, unknown_liquidity,
// recent_failure)"); nil disables it.
type PenaltyFunc func(e *Edge) uint64

// FindPathParams bundles a pathfinding request.
type FindPathParams struct {
	Graph          *Graph
	Source         [33]byte
	Destination    [33]byte
	AmountMsat     uint64
	FinalCLTVDelta uint16
	CurrentHeight  uint32
	Penalty        PenaltyFunc
}

// dijkstraNode is one entry in the shortest-path priority queue,
// searching backward from the destination (so an edge's cost is known
// once the amount flowing out of its "to" side is fixed).
type dijkstraNode struct {
	node       [33]byte
	cumCost    uint64
	cumCLTV    uint32
	amountOut  uint64 // amount that must arrive at "node" to fund the rest of the route
	lastUpdate time.Time
	index      int
}

// less implements the tie-break order spec §8 requires: lowest cost,
// then lowest CLTV delta, then most-recently-updated policy.
func less(a, b *dijkstraNode) bool {
	if a.cumCost != b.cumCost {
		return a.cumCost < b.cumCost
	}
	if a.cumCLTV != b.cumCLTV {
		return a.cumCLTV < b.cumCLTV
	}
	return a.lastUpdate.After(b.lastUpdate)
}

type nodeHeap []*dijkstraNode

func (h nodeHeap) Len() int            { return len(h) }
func (h nodeHeap) Less(i, j int) bool  { return less(h[i], h[j]) }
func (h nodeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *nodeHeap) Push(x interface{}) {
	n := x.(*dijkstraNode)
	n.index = len(*h)
	*h = append(*h, n)
}
func (h *nodeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// step records, for each node discovered while searching backward from
// the destination, the edge it will use to continue toward the
// destination and the amount/CLTV that must flow out along it.
type step struct {
	edge      *Edge
	amountOut uint64
	cltvOut   uint32
}

// FindPath runs a modified Dijkstra from Destination back to Source
// (spec §4.7): amounts are propagated backward so each hop's outgoing
// amount equals the next hop's incoming amount plus that next hop's
// fee. Edges that are disabled, below htlc_min, or above htlc_max are
// skipped; stale-pruning happens at the Graph level (PruneStale), not
// per search.
func FindPath(p FindPathParams) (*Route, error) {
	best := make(map[[33]byte]*dijkstraNode)
	prev := make(map[[33]byte]step)

	pq := &nodeHeap{}
	heap.Init(pq)

	start := &dijkstraNode{
		node:      p.Destination,
		cumCLTV:   uint32(p.FinalCLTVDelta),
		amountOut: p.AmountMsat,
	}
	best[p.Destination] = start
	heap.Push(pq, start)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(*dijkstraNode)
		if existing := best[cur.node]; existing != cur {
			continue // stale heap entry superseded by a cheaper one
		}
		if cur.node == p.Source {
			return buildRoute(p, prev, cur)
		}

		// Graph indexes outgoing adjacency only; searching backward
		// from the destination means walking edges whose ToNode is
		// cur.node, i.e. cur.node's incoming edges.
		for _, e := range p.Graph.incomingEdges(cur.node) {
			if e.Policy == nil || e.Policy.Disabled {
				continue
			}
			fee := e.Policy.Fee(cur.amountOut)
			amountIn := cur.amountOut + fee
			if amountIn < e.Policy.HTLCMinMSat {
				continue
			}
			if e.Policy.HTLCMaxMSat != 0 && amountIn > e.Policy.HTLCMaxMSat {
				continue
			}

			cost := cur.cumCost + fee
			if p.Penalty != nil {
				cost += p.Penalty(e)
			}

			candidate := &dijkstraNode{
				node:       e.FromNode,
				cumCost:    cost,
				cumCLTV:    cur.cumCLTV + uint32(e.Policy.CLTVDelta),
				amountOut:  amountIn,
				lastUpdate: e.Policy.LastUpdate,
			}

			if old, ok := best[e.FromNode]; ok && !less(candidate, old) {
				continue
			}
			best[e.FromNode] = candidate
			prev[e.FromNode] = step{edge: e, amountOut: cur.amountOut, cltvOut: cur.cumCLTV}
			heap.Push(pq, candidate)
		}
	}

	return nil, ErrNoRoute
}

func buildRoute(p FindPathParams, prev map[[33]byte]step, dest *dijkstraNode) (*Route, error) {
	route := &Route{TotalAmountMsat: dest.amountOut}
	node := p.Source
	for node != p.Destination {
		st, ok := prev[node]
		if !ok {
			return nil, ErrNoRoute
		}
		route.Hops = append(route.Hops, Hop{
			ShortChannelID:  st.edge.ShortChannelID.ToUint64(),
			AmountToForward: st.amountOut,
			OutgoingCLTV:    p.CurrentHeight + st.cltvOut,
		})
		node = st.edge.ToNode
	}
	if len(route.Hops) > 0 {
		route.TotalCLTVDelta = route.Hops[len(route.Hops)-1].OutgoingCLTV - p.CurrentHeight
	}
	return route, nil
}

// incomingEdges returns every edge terminating at "to", built by a
// linear scan since Graph only indexes outgoing adjacency; acceptable
// at the scale a single client-side routing graph reaches.
func (g *Graph) incomingEdges(to [33]byte) []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []*Edge
	for _, dests := range g.edges {
		out = append(out, dests[to]...)
	}
	return out
}
