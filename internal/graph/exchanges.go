package graph

import "sync"

// ---------------------------------------------------------------------------
// Exchange hot wallet registry. Exchange custody wallets touch huge token
// sets and would dominate whale detection and link unrelated holders in
// the co-ownership projection, so graphs can exclude them.
// ---------------------------------------------------------------------------

// knownExchangeWallets seeds the registry with publicly labeled hot
// wallets, lowercase-normalized.
var knownExchangeWallets = map[string]string{
	// Binance
	"0x3f5ce5fbfe3e9af3971dd833d26ba9b5c936f0be": "binance",
	"0xd551234ae421e3bcba99a0da6d736074f22192ff": "binance",
	"0x564286362092d8e7936f0549571a803b203aaced": "binance",
	"0x0681d8db095565fe8a346fa0277bffde9c0edbbf": "binance",
	"0xf977814e90da44bfa03b6295a0616a897441acec": "binance",

	// Coinbase
	"0x71660c4005ba85c37ccec55d0c4493e66fe775d3": "coinbase",
	"0x503828976d22510aad0201ac7ec88293211d23da": "coinbase",
	"0xddfabcdc4d8ffc6d5beaf154f18b778f892a0740": "coinbase",

	// Kraken
	"0x2910543af39aba0cd09dbb2d50200b3e800a63d2": "kraken",
	"0x0a869d79a7052c7f1b55a8ebabbea3420f0d1e13": "kraken",

	// OKX
	"0x6cc5f688a315f3dc28a7781717a9a798a59fda7b": "okx",

	// Huobi
	"0xab5c66752a9e8167967685f1450532fb96d5d24f": "huobi",

	// Gemini
	"0xd24400ae8bfebb18ca49be86258a3c749cf46853": "gemini",

	// Bitfinex
	"0x742d35cc6634c0532925a3b844bc454e4438f44e": "bitfinex",

	// KuCoin
	"0x2b5634c42055806a59e9107ed44d43c426e58258": "kucoin",
}

// ExchangeRegistry maps exchange hot wallet addresses to exchange names.
// Each graph session gets its own instance; callers extend it at runtime
// as new custody wallets are labeled.
type ExchangeRegistry struct {
	mu      sync.RWMutex
	wallets map[string]string
}

// NewExchangeRegistry returns a registry seeded with the known set.
func NewExchangeRegistry() *ExchangeRegistry {
	wallets := make(map[string]string, len(knownExchangeWallets))
	for addr, exchange := range knownExchangeWallets {
		wallets[addr] = exchange
	}
	return &ExchangeRegistry{wallets: wallets}
}

// Lookup returns the exchange name for a known hot wallet.
func (r *ExchangeRegistry) Lookup(address string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exchange, ok := r.wallets[address]
	return exchange, ok
}

// Add registers a hot wallet at runtime.
func (r *ExchangeRegistry) Add(address, exchange string) {
	r.mu.Lock()
	r.wallets[address] = exchange
	r.mu.Unlock()
}

// Len returns the number of registered wallets.
func (r *ExchangeRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.wallets)
}
