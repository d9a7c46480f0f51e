package executor

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/Ashar20/lifi-rotator/internal/chain"
)

// TxIntent is the raw payload a wallet signs and broadcasts.
type TxIntent struct {
	To    string
	Data  string
	Value *big.Int
}

// Wallet is the external signing capability: it owns the key, an active
// chain, and the mechanics of broadcast and confirmation.
type Wallet interface {
	Address() common.Address
	// ActiveChainID is the chain the wallet is currently connected to,
	// zero before the first SwitchChain.
	ActiveChainID() int64
	SwitchChain(ctx context.Context, chainID int64) error
	// Send signs and broadcasts on the active chain, returning the tx hash.
	Send(ctx context.Context, intent TxIntent) (string, error)
	// WaitMined blocks until the transaction is mined or ctx expires.
	WaitMined(ctx context.Context, txHash string) error
	Close()
}

// EVMWalletOptions tune the local-key wallet.
type EVMWalletOptions struct {
	PrivateKeyHex string
	Testnet       bool
	PollInterval  time.Duration
	GasMultiplier float64
}

// EVMWallet signs with a local key and talks to chain RPC endpoints from
// the registry.
type EVMWallet struct {
	opts    EVMWalletOptions
	key     *ecdsa.PrivateKey
	address common.Address
	logger  zerolog.Logger

	mu      sync.Mutex
	active  int64
	client  *ethclient.Client
	chainID *big.Int
}

// NewEVMWallet parses the key and prepares the wallet. No RPC connection
// is made until SwitchChain.
func NewEVMWallet(opts EVMWalletOptions, logger zerolog.Logger) (*EVMWallet, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(opts.PrivateKeyHex), "0x")
	if raw == "" {
		return nil, errors.New("executor: private key not configured")
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.GasMultiplier < 1 {
		opts.GasMultiplier = 1.2
	}
	return &EVMWallet{
		opts:    opts,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		logger:  logger.With().Str("component", "wallet").Logger(),
	}, nil
}

// Address returns the signing address.
func (w *EVMWallet) Address() common.Address {
	return w.address
}

// ActiveChainID returns the connected chain, zero if none.
func (w *EVMWallet) ActiveChainID() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// SwitchChain connects to the target chain, trying its RPC fallback list in
// order. A no-op when already connected to that chain.
func (w *EVMWallet) SwitchChain(ctx context.Context, chainID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active == chainID && w.client != nil {
		return nil
	}

	c, err := chain.ByID(w.opts.Testnet, chainID)
	if err != nil {
		return err
	}

	var lastErr error = errors.New("no rpc endpoints configured")
	for _, url := range c.RPCURLs {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}
		onchainID, err := client.ChainID(ctx)
		if err != nil {
			client.Close()
			lastErr = err
			continue
		}
		if onchainID.Int64() != chainID {
			client.Close()
			lastErr = fmt.Errorf("rpc %s reports chain %d, want %d", url, onchainID.Int64(), chainID)
			continue
		}
		if w.client != nil {
			w.client.Close()
		}
		w.client = client
		w.chainID = onchainID
		w.active = chainID
		w.logger.Info().Int64("chain_id", chainID).Str("chain", c.Name).Msg("wallet switched chain")
		return nil
	}
	return fmt.Errorf("switch chain %d: %w", chainID, lastErr)
}

// Send signs and broadcasts a dynamic-fee transaction on the active chain.
func (w *EVMWallet) Send(ctx context.Context, intent TxIntent) (string, error) {
	w.mu.Lock()
	client, chainID := w.client, w.chainID
	w.mu.Unlock()
	if client == nil {
		return "", errors.New("executor: no active chain; call SwitchChain first")
	}
	if !common.IsHexAddress(intent.To) {
		return "", fmt.Errorf("invalid target address %q", intent.To)
	}

	target := common.HexToAddress(intent.To)
	data, err := decodeHexData(intent.Data)
	if err != nil {
		return "", fmt.Errorf("decode calldata: %w", err)
	}
	value := intent.Value
	if value == nil {
		value = big.NewInt(0)
	}

	msg := ethereum.CallMsg{From: w.address, To: &target, Value: value, Data: data}
	gasLimit, err := client.EstimateGas(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("estimate gas: %w", err)
	}
	gasLimit = uint64(float64(gasLimit) * w.opts.GasMultiplier)

	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest tip cap: %w", err)
	}
	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("fetch latest header: %w", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	// feeCap = 2*base + tip leaves headroom for base-fee drift while the
	// transaction is pending.
	feeCap := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tipCap)

	nonce, err := client.PendingNonceAt(ctx, w.address)
	if err != nil {
		return "", fmt.Errorf("fetch nonce: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &target,
		Value:     value,
		Data:      data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("broadcast transaction: %w", err)
	}

	hash := signed.Hash().Hex()
	w.logger.Info().Str("tx_hash", hash).Uint64("nonce", nonce).Msg("transaction broadcast")
	return hash, nil
}

// WaitMined polls for the receipt until mined, reverted, or ctx expires.
func (w *EVMWallet) WaitMined(ctx context.Context, txHash string) error {
	w.mu.Lock()
	client := w.client
	w.mu.Unlock()
	if client == nil {
		return errors.New("executor: no active chain")
	}

	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("transaction %s reverted", txHash)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close releases the active RPC connection.
func (w *EVMWallet) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.client != nil {
		w.client.Close()
		w.client = nil
		w.active = 0
	}
}

func decodeHexData(v string) ([]byte, error) {
	clean := strings.TrimSpace(v)
	clean = strings.TrimPrefix(clean, "0x")
	clean = strings.TrimPrefix(clean, "0X")
	if clean == "" {
		return nil, nil
	}
	return hexutil.Decode("0x" + clean)
}

var _ Wallet = (*EVMWallet)(nil)
