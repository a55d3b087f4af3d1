package graph

import (
	"math"
	"math/rand"
	"sort"
)

// betweennessExactLimit is the projected-graph size above which
// betweenness centrality switches from exact Brandes to pivot sampling.
// The Analysis report carries ApproximateBetweenness so callers know.
const betweennessExactLimit = 500

// betweennessPivots is the sample size used above the exact limit.
const betweennessPivots = 100

// Analysis is the full structural report over the wallet projection of
// the bipartite graph (wallets linked when they share a token).
type Analysis struct {
	DegreeEntropy           float64            `json:"degree_entropy"`
	WalletCount             int                `json:"wallet_count"`
	TokenCount              int                `json:"token_count"`
	Density                 float64            `json:"density"`
	Assortativity           float64            `json:"assortativity"`
	Components              int                `json:"components"`
	LargestComponent        int                `json:"largest_component"`
	AvgClustering           float64            `json:"avg_clustering"`
	DegreeCentrality        map[string]float64 `json:"degree_centrality"`
	Betweenness             map[string]float64 `json:"betweenness"`
	ApproximateBetweenness  bool               `json:"approximate_betweenness"`
	PageRank                map[string]float64 `json:"pagerank"`
}

// Analyze computes the degree entropy and, when full is set, projects the
// graph onto wallets and computes the structural metrics.
func (g *Bipartite) Analyze(full bool) Analysis {
	a := Analysis{
		DegreeEntropy: g.DegreeEntropy(),
		WalletCount:   g.Wallets(),
		TokenCount:    g.Tokens(),
	}
	if !full || g.Wallets() == 0 {
		return a
	}

	adj := g.projectWallets()
	n := len(adj)

	edges := 0
	for _, nbrs := range adj {
		edges += len(nbrs)
	}
	edges /= 2

	if n > 1 {
		a.Density = 2 * float64(edges) / (float64(n) * float64(n-1))
	}
	a.Assortativity = assortativity(adj)
	a.Components, a.LargestComponent = components(adj)
	a.AvgClustering = avgClustering(adj)
	a.DegreeCentrality = degreeCentrality(adj)
	a.Betweenness, a.ApproximateBetweenness = betweenness(adj)
	a.PageRank = pageRank(adj, 0.85, 50)
	return a
}

// projectWallets builds the wallet co-ownership adjacency: two wallets
// are linked when they share at least one token.
func (g *Bipartite) projectWallets() map[string]map[string]struct{} {
	adj := make(map[string]map[string]struct{}, len(g.walletTokens))
	for wallet := range g.walletTokens {
		if g.isExchange(wallet) {
			continue
		}
		adj[wallet] = make(map[string]struct{})
	}
	for _, holders := range g.tokenWallets {
		list := make([]string, 0, len(holders))
		for w := range holders {
			if g.isExchange(w) {
				continue
			}
			list = append(list, w)
		}
		for i := 0; i < len(list); i++ {
			for j := i + 1; j < len(list); j++ {
				adj[list[i]][list[j]] = struct{}{}
				adj[list[j]][list[i]] = struct{}{}
			}
		}
	}
	return adj
}

// assortativity is the Pearson degree correlation over edge endpoints.
// Returns 0 for graphs with no edges or zero degree variance.
func assortativity(adj map[string]map[string]struct{}) float64 {
	var m float64
	var sumJK, sumHalf, sumHalfSq float64
	for u, nbrs := range adj {
		ju := float64(len(nbrs))
		for v := range nbrs {
			if u >= v { // each undirected edge once
				continue
			}
			kv := float64(len(adj[v]))
			m++
			sumJK += ju * kv
			sumHalf += (ju + kv) / 2
			sumHalfSq += (ju*ju + kv*kv) / 2
		}
	}
	if m == 0 {
		return 0
	}
	num := sumJK/m - (sumHalf/m)*(sumHalf/m)
	den := sumHalfSq/m - (sumHalf/m)*(sumHalf/m)
	if den == 0 {
		return 0
	}
	return num / den
}

func components(adj map[string]map[string]struct{}) (count, largest int) {
	visited := make(map[string]bool, len(adj))
	for start := range adj {
		if visited[start] {
			continue
		}
		count++
		size := 0
		queue := []string{start}
		visited[start] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			size++
			for nbr := range adj[cur] {
				if !visited[nbr] {
					visited[nbr] = true
					queue = append(queue, nbr)
				}
			}
		}
		if size > largest {
			largest = size
		}
	}
	return count, largest
}

func avgClustering(adj map[string]map[string]struct{}) float64 {
	if len(adj) == 0 {
		return 0
	}
	total := 0.0
	for _, nbrs := range adj {
		deg := len(nbrs)
		if deg < 2 {
			continue
		}
		links := 0
		list := make([]string, 0, deg)
		for v := range nbrs {
			list = append(list, v)
		}
		for i := 0; i < len(list); i++ {
			for j := i + 1; j < len(list); j++ {
				if _, ok := adj[list[i]][list[j]]; ok {
					links++
				}
			}
		}
		total += 2 * float64(links) / (float64(deg) * float64(deg-1))
	}
	return total / float64(len(adj))
}

func degreeCentrality(adj map[string]map[string]struct{}) map[string]float64 {
	n := len(adj)
	out := make(map[string]float64, n)
	for u, nbrs := range adj {
		if n > 1 {
			out[u] = float64(len(nbrs)) / float64(n-1)
		} else {
			out[u] = 0
		}
	}
	return out
}

// betweenness runs Brandes' algorithm. Above betweennessExactLimit nodes
// it samples pivots and scales, returning approximate=true.
func betweenness(adj map[string]map[string]struct{}) (map[string]float64, bool) {
	nodes := make([]string, 0, len(adj))
	for u := range adj {
		nodes = append(nodes, u)
	}
	sort.Strings(nodes)

	scores := make(map[string]float64, len(nodes))
	for _, u := range nodes {
		scores[u] = 0
	}

	sources := nodes
	approximate := false
	if len(nodes) > betweennessExactLimit {
		approximate = true
		rng := rand.New(rand.NewSource(int64(len(nodes))))
		perm := rng.Perm(len(nodes))
		sources = make([]string, betweennessPivots)
		for i := range sources {
			sources[i] = nodes[perm[i]]
		}
	}

	for _, s := range sources {
		brandesAccumulate(adj, s, scores)
	}

	if approximate && len(sources) > 0 {
		scale := float64(len(nodes)) / float64(len(sources))
		for u := range scores {
			scores[u] *= scale
		}
	}
	// Halve for undirected paths counted in both directions.
	for u := range scores {
		scores[u] /= 2
	}
	return scores, approximate
}

func brandesAccumulate(adj map[string]map[string]struct{}, s string, scores map[string]float64) {
	stack := make([]string, 0, len(adj))
	preds := make(map[string][]string)
	sigma := map[string]float64{s: 1}
	dist := map[string]int{s: 0}
	queue := []string{s}

	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		stack = append(stack, v)
		for w := range adj[v] {
			if _, seen := dist[w]; !seen {
				dist[w] = dist[v] + 1
				queue = append(queue, w)
			}
			if dist[w] == dist[v]+1 {
				sigma[w] += sigma[v]
				preds[w] = append(preds[w], v)
			}
		}
	}

	delta := make(map[string]float64, len(stack))
	for i := len(stack) - 1; i >= 0; i-- {
		w := stack[i]
		for _, v := range preds[w] {
			delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
		}
		if w != s {
			scores[w] += delta[w]
		}
	}
}

func pageRank(adj map[string]map[string]struct{}, damping float64, iterations int) map[string]float64 {
	n := len(adj)
	if n == 0 {
		return map[string]float64{}
	}
	rank := make(map[string]float64, n)
	for u := range adj {
		rank[u] = 1 / float64(n)
	}

	for it := 0; it < iterations; it++ {
		next := make(map[string]float64, n)
		dangling := 0.0
		for u := range adj {
			if len(adj[u]) == 0 {
				dangling += rank[u]
			}
		}
		for u := range adj {
			next[u] = (1-damping)/float64(n) + damping*dangling/float64(n)
		}
		for u, nbrs := range adj {
			if len(nbrs) == 0 {
				continue
			}
			share := damping * rank[u] / float64(len(nbrs))
			for v := range nbrs {
				next[v] += share
			}
		}
		delta := 0.0
		for u := range adj {
			delta += math.Abs(next[u] - rank[u])
		}
		rank = next
		if delta < 1e-9 {
			break
		}
	}
	return rank
}
