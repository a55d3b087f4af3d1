package graph

import (
	"math"
	"sort"
)

// ---------------------------------------------------------------------------
// Wallet↔token bipartite graph — ownership structure statistics.
// Built from (wallet, token) observations, analyzed in one batch pass.
// ---------------------------------------------------------------------------

// Bipartite is an undirected bipartite graph with wallet and token nodes.
type Bipartite struct {
	walletTokens map[string]map[string]struct{}
	tokenWallets map[string]map[string]struct{}
	edges        int
	exchanges    *ExchangeRegistry
}

// NewBipartite returns an empty wallet↔token graph.
func NewBipartite() *Bipartite {
	return &Bipartite{
		walletTokens: make(map[string]map[string]struct{}),
		tokenWallets: make(map[string]map[string]struct{}),
	}
}

// Add records that wallet holds (or touched) token. Duplicate
// observations are collapsed.
func (g *Bipartite) Add(wallet, token string) {
	if wallet == "" || token == "" {
		return
	}
	if g.walletTokens[wallet] == nil {
		g.walletTokens[wallet] = make(map[string]struct{})
	}
	if g.tokenWallets[token] == nil {
		g.tokenWallets[token] = make(map[string]struct{})
	}
	if _, dup := g.walletTokens[wallet][token]; !dup {
		g.walletTokens[wallet][token] = struct{}{}
		g.tokenWallets[token][wallet] = struct{}{}
		g.edges++
	}
}

// ExcludeExchanges makes whale detection and the wallet projection skip
// wallets found in the registry.
func (g *Bipartite) ExcludeExchanges(r *ExchangeRegistry) {
	g.exchanges = r
}

func (g *Bipartite) isExchange(wallet string) bool {
	if g.exchanges == nil {
		return false
	}
	_, ok := g.exchanges.Lookup(wallet)
	return ok
}

// Wallets returns the number of wallet nodes.
func (g *Bipartite) Wallets() int { return len(g.walletTokens) }

// Tokens returns the number of token nodes.
func (g *Bipartite) Tokens() int { return len(g.tokenWallets) }

// Edges returns the number of distinct wallet-token links.
func (g *Bipartite) Edges() int { return g.edges }

// DegreeEntropy is the Shannon entropy of the wallet-degree distribution,
// H = -Σ p_i log2 p_i with p_i = degree_i / Σ degree. Zero for an empty
// graph or a single wallet.
func (g *Bipartite) DegreeEntropy() float64 {
	counts := make([]int, 0, len(g.walletTokens))
	for _, tokens := range g.walletTokens {
		counts = append(counts, len(tokens))
	}
	return EntropyOfCounts(counts)
}

// EntropyOfCounts computes Shannon entropy over a count distribution
// normalized by its total. Zero totals and empty inputs return 0.
func EntropyOfCounts(counts []int) float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return 0
	}
	h := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / float64(total)
		h -= p * math.Log2(p)
	}
	return h
}

// Whale is a wallet holding an outlier-large token count.
type Whale struct {
	Address      string  `json:"address"`
	TokenCount   int     `json:"token_count"`
	StdDevsAbove float64 `json:"std_devs_above"`
}

// DetectWhales flags wallets whose token count exceeds mean + k*stddev of
// the per-wallet count distribution, sorted by deviation descending.
// Zero-variance distributions flag nothing.
func (g *Bipartite) DetectWhales(k float64) []Whale {
	if len(g.walletTokens) == 0 {
		return nil
	}

	counts := make(map[string]int, len(g.walletTokens))
	sum := 0.0
	for wallet, tokens := range g.walletTokens {
		if g.isExchange(wallet) {
			continue
		}
		counts[wallet] = len(tokens)
		sum += float64(len(tokens))
	}
	if len(counts) == 0 {
		return nil
	}
	mean := sum / float64(len(counts))

	variance := 0.0
	for _, c := range counts {
		d := float64(c) - mean
		variance += d * d
	}
	variance /= float64(len(counts))
	stddev := math.Sqrt(variance)
	if stddev == 0 {
		return nil
	}

	var whales []Whale
	threshold := mean + k*stddev
	for wallet, c := range counts {
		if float64(c) > threshold {
			whales = append(whales, Whale{
				Address:      wallet,
				TokenCount:   c,
				StdDevsAbove: (float64(c) - mean) / stddev,
			})
		}
	}
	sort.Slice(whales, func(i, j int) bool { return whales[i].StdDevsAbove > whales[j].StdDevsAbove })
	return whales
}
