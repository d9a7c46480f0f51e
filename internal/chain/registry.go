package chain

import "fmt"

// Token identifies a tracked ERC-20 asset on one chain.
type Token struct {
	Symbol   string
	Address  string
	Decimals int
	// Stable marks tokens whose USD value is assumed 1:1.
	Stable bool
}

// Chain describes one EVM network the engine may hold or move funds on.
type Chain struct {
	ID   int64
	Name string
	Slug string
	// RPCURLs is an ordered fallback list; the scanner dials them in order
	// until one responds.
	RPCURLs []string
	Tokens  []Token
}

var mainnetChains = []Chain{
	{
		ID:   1,
		Name: "Ethereum",
		Slug: "ethereum",
		RPCURLs: []string{
			"https://eth.llamarpc.com",
			"https://rpc.ankr.com/eth",
			"https://cloudflare-eth.com",
		},
		Tokens: []Token{
			{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6, Stable: true},
			{Symbol: "USDT", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6, Stable: true},
			{Symbol: "DAI", Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Decimals: 18, Stable: true},
			{Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18},
		},
	},
	{
		ID:   42161,
		Name: "Arbitrum",
		Slug: "arbitrum",
		RPCURLs: []string{
			"https://arb1.arbitrum.io/rpc",
			"https://rpc.ankr.com/arbitrum",
		},
		Tokens: []Token{
			{Symbol: "USDC", Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6, Stable: true},
			{Symbol: "USDT", Address: "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9", Decimals: 6, Stable: true},
			{Symbol: "WETH", Address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", Decimals: 18},
		},
	},
	{
		ID:   10,
		Name: "Optimism",
		Slug: "optimism",
		RPCURLs: []string{
			"https://mainnet.optimism.io",
			"https://rpc.ankr.com/optimism",
		},
		Tokens: []Token{
			{Symbol: "USDC", Address: "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85", Decimals: 6, Stable: true},
			{Symbol: "DAI", Address: "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1", Decimals: 18, Stable: true},
			{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
		},
	},
	{
		ID:   137,
		Name: "Polygon",
		Slug: "polygon",
		RPCURLs: []string{
			"https://polygon-rpc.com",
			"https://rpc.ankr.com/polygon",
		},
		Tokens: []Token{
			{Symbol: "USDC", Address: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", Decimals: 6, Stable: true},
			{Symbol: "USDT", Address: "0xc2132D05D31c914a87C6611C10748AEb04B58e8F", Decimals: 6, Stable: true},
		},
	},
	{
		ID:   8453,
		Name: "Base",
		Slug: "base",
		RPCURLs: []string{
			"https://mainnet.base.org",
			"https://rpc.ankr.com/base",
		},
		Tokens: []Token{
			{Symbol: "USDC", Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6, Stable: true},
			{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
		},
	},
}

var testnetChains = []Chain{
	{
		ID:   11155111,
		Name: "Sepolia",
		Slug: "sepolia",
		RPCURLs: []string{
			"https://rpc.sepolia.org",
			"https://rpc.ankr.com/eth_sepolia",
		},
		Tokens: []Token{
			{Symbol: "USDC", Address: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238", Decimals: 6, Stable: true},
		},
	},
	{
		ID:   421614,
		Name: "Arbitrum Sepolia",
		Slug: "arbitrum-sepolia",
		RPCURLs: []string{
			"https://sepolia-rollup.arbitrum.io/rpc",
		},
		Tokens: []Token{
			{Symbol: "USDC", Address: "0x75faf114eafb1BDbe2F0316DF893fd58CE46AA4d", Decimals: 6, Stable: true},
		},
	},
}

// Universe returns the chain set the engine operates on.
func Universe(testnet bool) []Chain {
	if testnet {
		return clone(testnetChains)
	}
	return clone(mainnetChains)
}

// ByID resolves a chain by numeric id within the given universe.
func ByID(testnet bool, id int64) (Chain, error) {
	for _, c := range Universe(testnet) {
		if c.ID == id {
			return c, nil
		}
	}
	return Chain{}, fmt.Errorf("unsupported chain id %d", id)
}

// Restrict narrows the universe to a single source chain when sourceChainID
// is non-zero. An unknown id is a configuration error.
func Restrict(chains []Chain, sourceChainID int64) ([]Chain, error) {
	if sourceChainID == 0 {
		return chains, nil
	}
	for _, c := range chains {
		if c.ID == sourceChainID {
			return []Chain{c}, nil
		}
	}
	return nil, fmt.Errorf("unsupported chain id %d", sourceChainID)
}

func clone(chains []Chain) []Chain {
	out := make([]Chain, len(chains))
	copy(out, chains)
	return out
}
