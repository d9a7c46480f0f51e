package scanner

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Ashar20/lifi-rotator/internal/chain"
	"github.com/Ashar20/lifi-rotator/internal/market"
)

const erc20ABIJSON = `[
{"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}]`

var erc20ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic("failed to parse ERC-20 ABI: " + err.Error())
	}
	erc20ABI = parsed
}

// TokenReader reads ERC-20 state on one chain.
type TokenReader interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Decimals(ctx context.Context, token common.Address) (int, error)
	Close()
}

// DialFunc opens a TokenReader for one RPC endpoint.
type DialFunc func(ctx context.Context, rpcURL string) (TokenReader, error)

// Options parameterise the scanner.
type Options struct {
	Timeout time.Duration
	// RPCOverrides replaces a chain's built-in fallback list, keyed by slug.
	RPCOverrides map[string][]string
	// BaselineAPY maps token symbols to the yield the balance currently
	// earns, in percentage points. Unlisted tokens are treated as idle.
	BaselineAPY map[string]float64
}

// Scanner enumerates a wallet's non-zero token positions across chains.
// Chains are scanned concurrently; a chain whose endpoints are all
// unreachable contributes zero positions rather than failing the batch.
type Scanner struct {
	opts   Options
	oracle PriceOracle
	logger zerolog.Logger
	dial   DialFunc

	mu      sync.Mutex
	readers map[int64]TokenReader
}

// New builds a scanner backed by go-ethereum RPC clients.
func New(opts Options, oracle PriceOracle, logger zerolog.Logger) *Scanner {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if oracle == nil {
		oracle = NewStaticOracle()
	}
	return &Scanner{
		opts:    opts,
		oracle:  oracle,
		logger:  logger.With().Str("component", "scanner").Logger(),
		dial:    dialEth,
		readers: map[int64]TokenReader{},
	}
}

// NewWithDial builds a scanner with a custom dialer.
func NewWithDial(opts Options, oracle PriceOracle, dial DialFunc, logger zerolog.Logger) *Scanner {
	s := New(opts, oracle, logger)
	s.dial = dial
	return s
}

// Scan resolves every chain's positions for the wallet. The returned slice
// is the union of all per-chain results; ordering is not significant.
func (s *Scanner) Scan(ctx context.Context, wallet string, chains []chain.Chain) ([]market.Position, error) {
	if !common.IsHexAddress(wallet) {
		return nil, errInvalidWallet
	}
	owner := common.HexToAddress(wallet)

	var mu sync.Mutex
	var positions []market.Position

	g, ctx := errgroup.WithContext(ctx)
	for _, c := range chains {
		c := c
		g.Go(func() error {
			found := s.scanChain(ctx, c, owner)
			if len(found) > 0 {
				mu.Lock()
				positions = append(positions, found...)
				mu.Unlock()
			}
			// Per-chain failures never abort the join.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return positions, nil
}

func (s *Scanner) scanChain(ctx context.Context, c chain.Chain, owner common.Address) []market.Position {
	reader, err := s.reader(ctx, c)
	if err != nil {
		s.logger.Warn().Err(err).Int64("chain_id", c.ID).Str("chain", c.Name).
			Msg("all rpc endpoints unreachable; skipping chain")
		return nil
	}

	out := make([]market.Position, 0, len(c.Tokens))
	for _, token := range c.Tokens {
		pos, ok := s.readPosition(ctx, reader, c, token, owner)
		if ok {
			out = append(out, pos)
		}
	}
	return out
}

func (s *Scanner) readPosition(ctx context.Context, reader TokenReader, c chain.Chain, token chain.Token, owner common.Address) (market.Position, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	addr := common.HexToAddress(token.Address)
	raw, err := reader.BalanceOf(ctx, addr, owner)
	if err != nil {
		s.logger.Warn().Err(err).Int64("chain_id", c.ID).Str("token", token.Symbol).
			Msg("balance read failed; skipping token")
		return market.Position{}, false
	}
	if raw == nil || raw.Sign() <= 0 {
		return market.Position{}, false
	}

	decimals := token.Decimals
	if onchain, err := reader.Decimals(ctx, addr); err == nil && onchain > 0 {
		decimals = onchain
	}

	balance := decimal.NewFromBigInt(raw, -int32(decimals))
	price, known := s.oracle.PriceUSD(token.Symbol)
	if !known {
		s.logger.Debug().Str("token", token.Symbol).Msg("no usd price for token; valuing at zero")
		price = decimal.Zero
	}

	apy := decimal.Zero
	if v, ok := s.opts.BaselineAPY[token.Symbol]; ok {
		apy = decimal.NewFromFloat(v)
	}

	return market.Position{
		ChainID:      c.ID,
		ChainName:    c.Name,
		TokenSymbol:  token.Symbol,
		TokenAddress: token.Address,
		RawBalance:   new(big.Int).Set(raw),
		Balance:      balance,
		ValueUSD:     balance.Mul(price),
		CurrentAPY:   apy,
	}, true
}

// reader returns a cached TokenReader for the chain, dialing the fallback
// list in order on first use.
func (s *Scanner) reader(ctx context.Context, c chain.Chain) (TokenReader, error) {
	s.mu.Lock()
	if r, ok := s.readers[c.ID]; ok {
		s.mu.Unlock()
		return r, nil
	}
	s.mu.Unlock()

	urls := c.RPCURLs
	if override, ok := s.opts.RPCOverrides[c.Slug]; ok && len(override) > 0 {
		urls = override
	}

	var lastErr error = errNoEndpoints
	for _, url := range urls {
		dialCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		r, err := s.dial(dialCtx, url)
		cancel()
		if err != nil {
			lastErr = err
			s.logger.Debug().Err(err).Str("rpc", url).Int64("chain_id", c.ID).Msg("rpc dial failed; trying next")
			continue
		}
		s.mu.Lock()
		// Another goroutine cannot race here: chains are scanned by distinct
		// goroutines and each chain id is owned by exactly one of them.
		s.readers[c.ID] = r
		s.mu.Unlock()
		return r, nil
	}
	return nil, lastErr
}

// Close releases all cached RPC connections.
func (s *Scanner) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.readers {
		r.Close()
		delete(s.readers, id)
	}
}

type ethReader struct {
	client *ethclient.Client
}

func dialEth(ctx context.Context, rpcURL string) (TokenReader, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	// DialContext succeeds lazily for HTTP endpoints; probe with a cheap call
	// so the fallback list actually advances past dead URLs.
	if _, err := client.ChainID(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return &ethReader{client: client}, nil
}

func (r *ethReader) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	payload, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, err
	}
	res, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: payload}, nil)
	if err != nil {
		return nil, err
	}
	outputs, err := erc20ABI.Unpack("balanceOf", res)
	if err != nil {
		return nil, err
	}
	if len(outputs) != 1 {
		return nil, errBadBalanceOutput
	}
	balance, ok := outputs[0].(*big.Int)
	if !ok {
		return nil, errBadBalanceOutput
	}
	return balance, nil
}

func (r *ethReader) Decimals(ctx context.Context, token common.Address) (int, error) {
	payload, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, err
	}
	res, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: payload}, nil)
	if err != nil {
		return 0, err
	}
	outputs, err := erc20ABI.Unpack("decimals", res)
	if err != nil {
		return 0, err
	}
	if len(outputs) != 1 {
		return 0, errBadDecimalsOutput
	}
	decimals, ok := outputs[0].(uint8)
	if !ok {
		return 0, errBadDecimalsOutput
	}
	return int(decimals), nil
}

func (r *ethReader) Close() {
	r.client.Close()
}
