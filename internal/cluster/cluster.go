// Package cluster groups matched event pairs into connected components and
// validates each component's coherence before synthesis.
//
// Every event is a node; every decided match contributes a weighted edge.
// Transitivity is assumed within a component, which is exactly what the
// coherence checks guard: a chain of pairwise matches that drags together
// fifteen events across a week of dates is a matching failure, not a
// real-world event.
package cluster

import (
	"sort"

	"github.com/dublette-io/dublette/internal/ingestion"
	"github.com/dublette-io/dublette/internal/matching"
)

type (
	// Edge is one intra-cluster match edge, carrying the combined score and
	// the decision tier for downstream provenance (ai_assisted).
	Edge struct {
		IDA    string
		IDB    string
		Weight float64
		Tier   matching.Tier
	}

	// Cluster is one connected component over match edges.
	Cluster struct {
		// Members holds the event ids, sorted ascending.
		Members []string

		// Edges holds the match edges between members.
		Edges []Edge

		// Valid is false when a coherence check failed; invalid clusters
		// still synthesize but their canonicals are marked for review.
		Valid bool

		// FlagReason names the first failed coherence check, empty when valid.
		FlagReason string
	}
)

// Flag reasons, in check order.
const (
	FlagTooLarge      = "cluster_too_large"
	FlagLowSimilarity = "low_internal_similarity"
	FlagDateSpread    = "date_spread_too_wide"
)

// Build computes connected components over the match edges of the given
// decisions. Every event appears in exactly one cluster; events without any
// match edge form singletons. Output is deterministic: clusters are ordered
// by their smallest member id and members within a cluster are sorted.
func Build(events []*ingestion.SourceEvent, decisions []*matching.MatchDecision, cfg matching.ClusterConfig) []*Cluster {
	uf := newUnionFind()

	for _, e := range events {
		uf.add(e.ID)
	}

	edges := make([]Edge, 0)

	for _, d := range decisions {
		if !d.IsEdge() {
			continue
		}

		uf.union(d.IDA, d.IDB)
		edges = append(edges, Edge{IDA: d.IDA, IDB: d.IDB, Weight: d.Combined, Tier: d.Tier})
	}

	members := make(map[string][]string)
	for _, e := range events {
		root := uf.find(e.ID)
		members[root] = append(members[root], e.ID)
	}

	byID := make(map[string]*ingestion.SourceEvent, len(events))
	for _, e := range events {
		byID[e.ID] = e
	}

	clusters := make([]*Cluster, 0, len(members))

	for root, ids := range members {
		sort.Strings(ids)

		c := &Cluster{Members: ids}

		for _, edge := range edges {
			if uf.find(edge.IDA) == root {
				c.Edges = append(c.Edges, edge)
			}
		}

		c.Valid, c.FlagReason = c.checkCoherence(byID, cfg)

		clusters = append(clusters, c)
	}

	sort.Slice(clusters, func(i, j int) bool {
		return clusters[i].Members[0] < clusters[j].Members[0]
	})

	return clusters
}

// Size returns the member count.
func (c *Cluster) Size() int {
	return len(c.Members)
}

// MeanEdgeWeight returns the average combined score over the cluster's match
// edges. Singletons have no edges and score 1.0: a record nothing contradicts
// is maximally confident.
func (c *Cluster) MeanEdgeWeight() float64 {
	if len(c.Edges) == 0 {
		return 1.0
	}

	var sum float64
	for _, e := range c.Edges {
		sum += e.Weight
	}

	return sum / float64(len(c.Edges))
}

// AIAssisted reports whether any edge was decided by the AI resolver.
func (c *Cluster) AIAssisted() bool {
	for _, e := range c.Edges {
		if e.Tier == matching.TierAI || e.Tier == matching.TierAILowConfidence {
			return true
		}
	}

	return false
}

// checkCoherence runs the coherence checks cheapest-first and short-circuits
// on the first failure: size, then mean edge weight, then date spread (the
// only check that has to expand every member's dates).
func (c *Cluster) checkCoherence(byID map[string]*ingestion.SourceEvent, cfg matching.ClusterConfig) (bool, string) {
	if c.Size() > cfg.MaxClusterSize {
		return false, FlagTooLarge
	}

	if len(c.Edges) > 0 && c.MeanEdgeWeight() < cfg.MinInternalSimilarity {
		return false, FlagLowSimilarity
	}

	if c.distinctDates(byID) > cfg.MaxDistinctDates {
		return false, FlagDateSpread
	}

	return true, ""
}

// distinctDates counts the distinct concrete dates across all members.
func (c *Cluster) distinctDates(byID map[string]*ingestion.SourceEvent) int {
	dates := make(map[string]struct{})

	for _, id := range c.Members {
		e, ok := byID[id]
		if !ok {
			continue
		}

		for _, d := range e.ExpandedDates() {
			dates[d] = struct{}{}
		}
	}

	return len(dates)
}

// unionFind is a classic disjoint-set forest with path compression and
// union by size.
type unionFind struct {
	parent map[string]string
	size   map[string]int
}

func newUnionFind() *unionFind {
	return &unionFind{
		parent: make(map[string]string),
		size:   make(map[string]int),
	}
}

func (uf *unionFind) add(id string) {
	if _, ok := uf.parent[id]; ok {
		return
	}

	uf.parent[id] = id
	uf.size[id] = 1
}

func (uf *unionFind) find(id string) string {
	root := id
	for uf.parent[root] != root {
		root = uf.parent[root]
	}

	for uf.parent[id] != root {
		uf.parent[id], id = root, uf.parent[id]
	}

	return root
}

func (uf *unionFind) union(a, b string) {
	uf.add(a)
	uf.add(b)

	rootA, rootB := uf.find(a), uf.find(b)
	if rootA == rootB {
		return
	}

	if uf.size[rootA] < uf.size[rootB] {
		rootA, rootB = rootB, rootA
	}

	uf.parent[rootB] = rootA
	uf.size[rootA] += uf.size[rootB]
}
