package regtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	log "github.com/sirupsen/logrus"
)

// ---------------------------------------------------------------
//  RPC Session
// ---------------------------------------------------------------

// RawRequester sends an RPC that has no typed binding.
type RawRequester interface {
	RawRequest(method string, params []json.RawMessage) (json.RawMessage, error)
}

// NodeRPC is the subset of *rpcclient.Client used against the node endpoint.
//
// It has no GetBlockChainInfo: rpcclient probes the backend version through
// getnetworkinfo first, and that reply does not decode on Bitcoin Core 28+.
// Use the package-level GetBlockChainInfo instead.
type NodeRPC interface {
	RawRequester
	CreateWallet(name string, opts ...rpcclient.CreateWalletOpt) (*btcjson.CreateWalletResult, error)
	LoadWallet(walletName string) (*btcjson.LoadWalletResult, error)
	GenerateToAddress(numBlocks int64, address btcutil.Address, maxTries *int64) ([]*chainhash.Hash, error)
	GetMempoolEntry(txHash string) (*btcjson.GetMempoolEntryResult, error)
	GetBlockHeaderVerbose(blockHash *chainhash.Hash) (*btcjson.GetBlockHeaderVerboseResult, error)
	GetRawTransaction(txHash *chainhash.Hash) (*btcutil.Tx, error)
	Shutdown()
}

// WalletRPC is the subset of *rpcclient.Client used against a
// wallet-scoped endpoint.
type WalletRPC interface {
	RawRequester
	GetNewAddress(account string) (btcutil.Address, error)
	GetBalance(account string) (btcutil.Amount, error)
	SendToAddress(address btcutil.Address, amount btcutil.Amount) (*chainhash.Hash, error)
	GetTransactionWatchOnly(txHash *chainhash.Hash, watchOnly bool) (*btcjson.GetTransactionResult, error)
	Shutdown()
}

var (
	_ NodeRPC   = (*rpcclient.Client)(nil)
	_ WalletRPC = (*rpcclient.Client)(nil)
)

// Bitcoin Core wallet error codes not covered by btcjson.
const (
	errCodeWalletAlreadyLoaded btcjson.RPCErrorCode = -35
	errCodeWalletAlreadyExists btcjson.RPCErrorCode = -36
)

// Session holds the node connection and one connection per wallet.
type Session struct {
	Node   NodeRPC
	Miner  WalletRPC
	Trader WalletRPC
}

// Dial connects to the node, makes sure both wallets exist and are loaded,
// and opens the wallet-scoped connections.
func Dial(cfg *Config, logger log.FieldLogger) (*Session, error) {
	node, err := rpcclient.New(cfg.ConnConfig(""), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to node: %w", err)
	}

	s := &Session{Node: node}

	for _, name := range []string{cfg.MinerWallet, cfg.TraderWallet} {
		if err := EnsureWallet(node, name, logger); err != nil {
			s.Close()
			return nil, err
		}
	}

	miner, err := rpcclient.New(cfg.ConnConfig(cfg.MinerWallet), nil)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to connect to wallet %s: %w", cfg.MinerWallet, err)
	}
	s.Miner = miner

	trader, err := rpcclient.New(cfg.ConnConfig(cfg.TraderWallet), nil)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to connect to wallet %s: %w", cfg.TraderWallet, err)
	}
	s.Trader = trader

	return s, nil
}

// Close shuts down every open connection.
func (s *Session) Close() {
	for _, c := range []interface{ Shutdown() }{s.Trader, s.Miner, s.Node} {
		if c != nil {
			c.Shutdown()
		}
	}
}

// EnsureWallet creates the named wallet, or loads it if it already exists on
// disk. A wallet that is already loaded is left alone.
//
// Returns:
//   - error: any RPC failure other than "already exists" / "already loaded"
func EnsureWallet(node NodeRPC, name string, logger log.FieldLogger) error {
	logger = logger.WithField("wallet", name)

	_, err := node.CreateWallet(name)
	switch {
	case err == nil:
		logger.Info("created wallet")
		return nil
	case IsWalletAlreadyLoaded(err):
		logger.Debug("wallet already loaded")
		return nil
	case !IsWalletAlreadyExists(err):
		return fmt.Errorf("failed to create wallet %s: %w", name, err)
	}

	_, err = node.LoadWallet(name)
	switch {
	case err == nil:
		logger.Info("loaded wallet")
		return nil
	case IsWalletAlreadyLoaded(err):
		logger.Debug("wallet already loaded")
		return nil
	default:
		return fmt.Errorf("failed to load wallet %s: %w", name, err)
	}
}

// IsWalletAlreadyExists reports whether err is the node refusing to create a
// wallet whose database is already on disk.
func IsWalletAlreadyExists(err error) bool {
	var rpcErr *btcjson.RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}

	switch rpcErr.Code {
	case errCodeWalletAlreadyExists:
		return true
	case btcjson.ErrRPCWallet:
		return strings.Contains(strings.ToLower(rpcErr.Message), "already exists")
	}
	return false
}

// IsWalletAlreadyLoaded reports whether err is the node refusing to open a
// wallet that is already loaded.
func IsWalletAlreadyLoaded(err error) bool {
	var rpcErr *btcjson.RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}

	switch rpcErr.Code {
	case errCodeWalletAlreadyLoaded:
		return true
	case btcjson.ErrRPCWallet:
		return strings.Contains(strings.ToLower(rpcErr.Message), "already loaded")
	}
	return false
}
