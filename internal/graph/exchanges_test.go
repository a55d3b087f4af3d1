package graph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExchangeRegistry_Lookup(t *testing.T) {
	r := NewExchangeRegistry()

	exchange, ok := r.Lookup("0x3f5ce5fbfe3e9af3971dd833d26ba9b5c936f0be")
	assert.True(t, ok)
	assert.Equal(t, "binance", exchange)

	exchange, ok = r.Lookup("0x2910543af39aba0cd09dbb2d50200b3e800a63d2")
	assert.True(t, ok)
	assert.Equal(t, "kraken", exchange)

	_, ok = r.Lookup("0x0000000000000000000000000000000000001234")
	assert.False(t, ok)
}

func TestExchangeRegistry_Add(t *testing.T) {
	r := NewExchangeRegistry()
	before := r.Len()

	r.Add("0x00000000000000000000000000000000000000aa", "local_otc_desk")
	assert.Equal(t, before+1, r.Len())

	exchange, ok := r.Lookup("0x00000000000000000000000000000000000000aa")
	require.True(t, ok)
	assert.Equal(t, "local_otc_desk", exchange)
}

func TestExchangeRegistry_InstancesAreIndependent(t *testing.T) {
	a := NewExchangeRegistry()
	b := NewExchangeRegistry()
	a.Add("0x00000000000000000000000000000000000000bb", "desk")

	_, ok := b.Lookup("0x00000000000000000000000000000000000000bb")
	assert.False(t, ok)
}

func TestDetectWhales_SkipsExchangeWallets(t *testing.T) {
	r := NewExchangeRegistry()
	hot := "0xf977814e90da44bfa03b6295a0616a897441acec" // binance

	g := NewBipartite()
	g.ExcludeExchanges(r)
	// Retail wallets hold one token, one collector holds ten, and the
	// hot wallet holds 200.
	for i := 0; i < 20; i++ {
		g.Add(fmt.Sprintf("wallet-%d", i), fmt.Sprintf("token-%d", i))
	}
	for i := 0; i < 10; i++ {
		g.Add("collector", fmt.Sprintf("rare-%d", i))
	}
	for i := 0; i < 200; i++ {
		g.Add(hot, fmt.Sprintf("hot-token-%d", i))
	}

	whales := g.DetectWhales(2)
	require.Len(t, whales, 1)
	assert.Equal(t, "collector", whales[0].Address)
}

func TestAnalyze_ProjectionExcludesExchanges(t *testing.T) {
	r := NewExchangeRegistry()
	hot := "0x71660c4005ba85c37ccec55d0c4493e66fe775d3" // coinbase

	g := NewBipartite()
	g.ExcludeExchanges(r)
	// Two unrelated holders share a token only via the custody wallet.
	g.Add("wallet-a", "token-1")
	g.Add(hot, "token-1")
	g.Add("wallet-b", "token-2")
	g.Add(hot, "token-2")

	a := g.Analyze(true)
	// Without the cut, the hot wallet would bridge a and b.
	assert.Equal(t, 2, a.Components)
	assert.NotContains(t, a.DegreeCentrality, hot)
}
