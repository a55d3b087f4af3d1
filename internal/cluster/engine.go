package cluster

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Wallet clustering engine — two-phase greedy clustering over finalized
// behavioral profiles: assign in descending activity order, then one
// merge pass, then drop undersized clusters.
// ---------------------------------------------------------------------------

// Config configures the clustering engine.
type Config struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"` // default 0.7
	MinClusterSize      int     `yaml:"min_cluster_size"`     // default 2
	VectorWeight        float64 `yaml:"vector_weight"`        // default 0.4
	FingerprintWeight   float64 `yaml:"fingerprint_weight"`   // default 0.3
	InteractionWeight   float64 `yaml:"interaction_weight"`   // default 0.3
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.7,
		MinClusterSize:      2,
		VectorWeight:        0.4,
		FingerprintWeight:   0.3,
		InteractionWeight:   0.3,
	}
}

// Cluster is a non-empty set of wallets with a running centroid.
type Cluster struct {
	ID       string
	Members  []*Profile
	Centroid []float64
}

// add appends a member and updates the centroid incrementally:
// centroid' = ((n-1)*centroid + v) / n.
func (c *Cluster) add(p *Profile) {
	v, _ := p.Vector()
	c.Members = append(c.Members, p)
	n := float64(len(c.Members))
	if c.Centroid == nil {
		c.Centroid = append([]float64(nil), v...)
		return
	}
	for i := range c.Centroid {
		c.Centroid[i] = ((n-1)*c.Centroid[i] + v[i]) / n
	}
}

// absorb merges other's members into c, recomputing the centroid as the
// size-weighted mean.
func (c *Cluster) absorb(other *Cluster) {
	nc, no := float64(len(c.Members)), float64(len(other.Members))
	for i := range c.Centroid {
		c.Centroid[i] = (nc*c.Centroid[i] + no*other.Centroid[i]) / (nc + no)
	}
	c.Members = append(c.Members, other.Members...)
}

// Engine groups related wallets by behavioral similarity.
type Engine struct {
	config Config
}

func NewEngine(config Config) *Engine {
	return &Engine{config: config}
}

// Cluster runs the two-phase clustering. All profiles must be finalized.
func (e *Engine) Cluster(profiles []*Profile) ([]*Cluster, error) {
	for _, p := range profiles {
		if !p.Finalized() {
			return nil, fmt.Errorf("wallet %s: %w", p.Address, ErrNotFinalized)
		}
	}

	ordered := append([]*Profile(nil), profiles...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].TxCount > ordered[j].TxCount })

	// Phase 1: greedy assignment.
	var clusters []*Cluster
	for _, p := range ordered {
		bestIdx, bestSim := -1, 0.0
		for i, c := range clusters {
			sim := e.walletClusterSimilarity(p, c)
			if sim > bestSim {
				bestIdx, bestSim = i, sim
			}
		}
		if bestIdx >= 0 && bestSim >= e.config.SimilarityThreshold {
			clusters[bestIdx].add(p)
		} else {
			fresh := &Cluster{ID: uuid.New().String()}
			fresh.add(p)
			clusters = append(clusters, fresh)
		}
	}

	// Phase 2: single merge pass, each cluster merging at most once.
	merged := make([]bool, len(clusters))
	for i := 0; i < len(clusters); i++ {
		if merged[i] {
			continue
		}
		for j := i + 1; j < len(clusters); j++ {
			if merged[j] {
				continue
			}
			if e.clusterSimilarity(clusters[i], clusters[j]) >= e.config.SimilarityThreshold {
				clusters[i].absorb(clusters[j])
				clusters[j].Members = nil
				merged[i], merged[j] = true, true
				break
			}
		}
	}
	kept := clusters[:0]
	for _, c := range clusters {
		if len(c.Members) > 0 {
			kept = append(kept, c)
		}
	}
	clusters = kept

	// Final filter: drop undersized clusters.
	sized := make([]*Cluster, 0, len(clusters))
	for _, c := range clusters {
		if len(c.Members) >= e.config.MinClusterSize {
			sized = append(sized, c)
		}
	}

	log.Debug().
		Int("wallets", len(profiles)).
		Int("clusters", len(sized)).
		Msg("cluster: clustering complete")
	return sized, nil
}

// walletClusterSimilarity is the weighted mix of centroid cosine,
// nearest-member fingerprint similarity, and a binary shared-counterparty
// flag.
func (e *Engine) walletClusterSimilarity(p *Profile, c *Cluster) float64 {
	v, _ := p.Vector()
	cos := cosine(v, c.Centroid)

	fpSim := 0.0
	pf, _ := p.Fingerprint()
	for _, m := range c.Members {
		mf, _ := m.Fingerprint()
		if s, err := pf.Similarity(mf); err == nil && s > fpSim {
			fpSim = s
		}
	}

	interact := 0.0
	for _, m := range c.Members {
		if sharesCounterparty(p, m) {
			interact = 1
			break
		}
	}

	return e.config.VectorWeight*cos +
		e.config.FingerprintWeight*fpSim +
		e.config.InteractionWeight*interact
}

// clusterSimilarity is the mean of member-to-cluster similarities.
func (e *Engine) clusterSimilarity(a, b *Cluster) float64 {
	if len(a.Members) == 0 {
		return 0
	}
	total := 0.0
	for _, m := range a.Members {
		total += e.walletClusterSimilarity(m, b)
	}
	return total / float64(len(a.Members))
}

func sharesCounterparty(a, b *Profile) bool {
	if _, ok := b.Counterparties[a.Address]; ok {
		return true
	}
	if _, ok := a.Counterparties[b.Address]; ok {
		return true
	}
	small, large := a.Counterparties, b.Counterparties
	if len(small) > len(large) {
		small, large = large, small
	}
	for addr := range small {
		if _, ok := large[addr]; ok {
			return true
		}
	}
	return false
}

// RiskScore computes the 0-100 cluster risk:
// min(40, size*5) + min(40, avgCentroidSim*40) + min(20, maxRecent24h*2).
// Recent activity is measured against the newest timestamp in the cluster.
func (e *Engine) RiskScore(c *Cluster) float64 {
	size := float64(len(c.Members))
	score := math.Min(40, size*5)
	score += math.Min(40, e.avgCentroidSimilarity(c)*40)

	now := newestTimestamp(c)
	maxRecent := 0
	for _, m := range c.Members {
		if r := m.RecentTxCount(now); r > maxRecent {
			maxRecent = r
		}
	}
	score += math.Min(20, float64(maxRecent)*2)

	if score > 100 {
		score = 100
	}
	return score
}

// Suspicious reports whether a cluster trips any coordinated-behavior
// rule and names the rules that fired.
func (e *Engine) Suspicious(c *Cluster) (bool, []string) {
	var reasons []string

	if e.avgCentroidSimilarity(c) > 0.8 {
		reasons = append(reasons, "high_centroid_similarity")
	}

	if len(c.Members) > 2 {
		minTx, maxTx := c.Members[0].TxCount, c.Members[0].TxCount
		for _, m := range c.Members[1:] {
			if m.TxCount < minTx {
				minTx = m.TxCount
			}
			if m.TxCount > maxTx {
				maxTx = m.TxCount
			}
		}
		if maxTx-minTx <= 1 {
			reasons = append(reasons, "uniform_tx_count")
		}
	}

	dayKeys := make(map[string]int)
	for _, m := range c.Members {
		dayKeys[m.activeDayKey()]++
	}
	for _, count := range dayKeys {
		if float64(count) > 0.8*float64(len(c.Members)) {
			reasons = append(reasons, "shared_active_days")
			break
		}
	}

	return len(reasons) > 0, reasons
}

func (e *Engine) avgCentroidSimilarity(c *Cluster) float64 {
	if len(c.Members) == 0 {
		return 0
	}
	total := 0.0
	for _, m := range c.Members {
		v, _ := m.Vector()
		total += cosine(v, c.Centroid)
	}
	return total / float64(len(c.Members))
}

func newestTimestamp(c *Cluster) time.Time {
	var newest time.Time
	for _, m := range c.Members {
		if n := len(m.Timestamps); n > 0 && m.Timestamps[n-1].After(newest) {
			newest = m.Timestamps[n-1]
		}
	}
	return newest
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// ClusterSummary is the per-cluster slice of the report.
type ClusterSummary struct {
	ClusterID  string   `json:"cluster_id"`
	Size       int      `json:"size"`
	Addresses  []string `json:"addresses"`
	RiskScore  float64  `json:"risk_score"`
	Suspicious bool     `json:"suspicious"`
	Reasons    []string `json:"reasons,omitempty"`
}

// Report is the clustering output consumed by callers.
type Report struct {
	TotalClusters      int              `json:"total_clusters"`
	TotalWallets       int              `json:"total_wallets"`
	Clusters           []ClusterSummary `json:"clusters"`
	SuspiciousClusters []ClusterSummary `json:"suspicious_clusters"`
}

// BuildReport summarizes clusters into the external report shape.
func (e *Engine) BuildReport(clusters []*Cluster) Report {
	report := Report{TotalClusters: len(clusters)}
	for _, c := range clusters {
		addrs := make([]string, len(c.Members))
		for i, m := range c.Members {
			addrs[i] = m.Address
		}
		suspicious, reasons := e.Suspicious(c)
		summary := ClusterSummary{
			ClusterID:  c.ID,
			Size:       len(c.Members),
			Addresses:  addrs,
			RiskScore:  e.RiskScore(c),
			Suspicious: suspicious,
			Reasons:    reasons,
		}
		report.TotalWallets += summary.Size
		report.Clusters = append(report.Clusters, summary)
		if suspicious {
			report.SuspiciousClusters = append(report.SuspiciousClusters, summary)
		}
	}
	return report
}
