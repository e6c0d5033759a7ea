package report

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	regtest "github.com/neverDefined/regtest-report"
)

const coinbaseReward = btcutil.Amount(50 * btcutil.SatoshiPerBitcoin)

// fakeChain is a tiny in-memory regtest node shared by the fake node and
// wallet clients. It only models what the report procedure touches.
type fakeChain struct {
	t *testing.T

	height  int32
	heights map[chainhash.Hash]int32
	txs     map[chainhash.Hash]*wire.MsgTx

	minerAddr  btcutil.Address
	traderAddr btcutil.Address
	changeAddr btcutil.Address

	// coinbaseScript overrides the script the first coinbase pays to.
	coinbaseScript []byte
	firstCoinbase  *chainhash.Hash

	fee btcutil.Amount

	// extraOutputs are appended to the transfer after recipient and change.
	extraOutputs []*wire.TxOut
	// recipientLast puts the recipient output after the change output.
	recipientLast bool

	// noInputs strips the inputs from the transfer.
	noInputs bool
	// prevIndex overrides the output index the transfer spends.
	prevIndex *uint32
	// walletFee overrides the fee the wallet reports for the transfer.
	walletFee *btcutil.Amount

	// failures makes the named call return the error.
	failures map[string]error

	labels []string
}

func newFakeChain(t *testing.T) *fakeChain {
	return &fakeChain{
		t:          t,
		heights:    make(map[chainhash.Hash]int32),
		txs:        make(map[chainhash.Hash]*wire.MsgTx),
		minerAddr:  testAddress(t, 0x01),
		traderAddr: testAddress(t, 0x02),
		changeAddr: testAddress(t, 0x03),
		fee:        1410,
		failures:   make(map[string]error),
	}
}

func (c *fakeChain) session() *regtest.Session {
	return &regtest.Session{
		Node:   &fakeNode{chain: c},
		Miner:  &fakeWallet{chain: c, addr: c.minerAddr},
		Trader: &fakeWallet{chain: c, addr: c.traderAddr},
	}
}

func (c *fakeChain) fail(method string) error {
	return c.failures[method]
}

func testAddress(t *testing.T, b byte) btcutil.Address {
	t.Helper()
	addr, err := btcutil.NewAddressWitnessPubKeyHash(bytes.Repeat([]byte{b}, 20), &chaincfg.RegressionNetParams)
	if err != nil {
		t.Fatalf("failed to build address: %v", err)
	}
	return addr
}

func payTo(t *testing.T, addr btcutil.Address, amount btcutil.Amount) *wire.TxOut {
	t.Helper()
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		t.Fatalf("failed to build output script: %v", err)
	}
	return wire.NewTxOut(int64(amount), script)
}

func nullData(t *testing.T) *wire.TxOut {
	t.Helper()
	script, err := txscript.NullDataScript([]byte("report"))
	if err != nil {
		t.Fatalf("failed to build null data script: %v", err)
	}
	return wire.NewTxOut(0, script)
}

func (c *fakeChain) mine(addr btcutil.Address) *chainhash.Hash {
	c.height++

	var seed [4]byte
	binary.LittleEndian.PutUint32(seed[:], uint32(c.height))
	hash := chainhash.DoubleHashH(seed[:])
	c.heights[hash] = c.height

	coinbase := wire.NewMsgTx(wire.TxVersion)
	coinbase.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex), seed[:], nil))
	out := payTo(c.t, addr, coinbaseReward)
	if c.firstCoinbase == nil && c.coinbaseScript != nil {
		out.PkScript = c.coinbaseScript
	}
	coinbase.AddTxOut(out)

	txid := coinbase.TxHash()
	c.txs[txid] = coinbase
	if c.firstCoinbase == nil {
		c.firstCoinbase = &txid
	}

	return &hash
}

type fakeNode struct {
	chain *fakeChain
}

func (n *fakeNode) CreateWallet(name string, opts ...rpcclient.CreateWalletOpt) (*btcjson.CreateWalletResult, error) {
	return &btcjson.CreateWalletResult{Name: name}, nil
}

func (n *fakeNode) LoadWallet(name string) (*btcjson.LoadWalletResult, error) {
	return &btcjson.LoadWalletResult{Name: name}, nil
}

func (n *fakeNode) GenerateToAddress(numBlocks int64, address btcutil.Address, maxTries *int64) ([]*chainhash.Hash, error) {
	if err := n.chain.fail("generatetoaddress"); err != nil {
		return nil, err
	}

	hashes := make([]*chainhash.Hash, 0, numBlocks)
	for i := int64(0); i < numBlocks; i++ {
		hashes = append(hashes, n.chain.mine(address))
	}
	return hashes, nil
}

func (n *fakeNode) GetMempoolEntry(txHash string) (*btcjson.GetMempoolEntryResult, error) {
	if err := n.chain.fail("getmempoolentry"); err != nil {
		return nil, err
	}
	return &btcjson.GetMempoolEntryResult{VSize: 141, Height: int64(n.chain.height)}, nil
}

func (n *fakeNode) GetBlockHeaderVerbose(blockHash *chainhash.Hash) (*btcjson.GetBlockHeaderVerboseResult, error) {
	if err := n.chain.fail("getblockheader"); err != nil {
		return nil, err
	}
	height, ok := n.chain.heights[*blockHash]
	if !ok {
		return nil, fmt.Errorf("block %s not found", blockHash)
	}
	return &btcjson.GetBlockHeaderVerboseResult{Hash: blockHash.String(), Height: height}, nil
}

func (n *fakeNode) GetRawTransaction(txHash *chainhash.Hash) (*btcutil.Tx, error) {
	if err := n.chain.fail("getrawtransaction:prev"); err != nil {
		return nil, err
	}
	tx, ok := n.chain.txs[*txHash]
	if !ok {
		return nil, &btcjson.RPCError{Code: btcjson.ErrRPCInvalidAddressOrKey, Message: "No such mempool or blockchain transaction"}
	}
	return btcutil.NewTx(tx), nil
}

// blockChainInfoReply is getblockchaininfo as Bitcoin Core 28 returns it:
// warnings is a list and softforks is gone.
const blockChainInfoReply = `{
	"chain": "regtest",
	"blocks": %d,
	"headers": %d,
	"bestblockhash": "0f9188f13cb7b2c71f2a335e3a4fc328bf5beb436012afca590b1a11466e2206",
	"bits": "207fffff",
	"target": "7fffff0000000000000000000000000000000000000000000000000000000000",
	"difficulty": 4.656542373906925e-10,
	"time": 1296688602,
	"mediantime": 1296688602,
	"verificationprogress": 1,
	"initialblockdownload": true,
	"chainwork": "0000000000000000000000000000000000000000000000000000000000000002",
	"size_on_disk": 293,
	"pruned": false,
	"warnings": []
}`

func (n *fakeNode) RawRequest(method string, params []json.RawMessage) (json.RawMessage, error) {
	if err := n.chain.fail(method); err != nil {
		return nil, err
	}

	switch method {
	case "getblockchaininfo":
		return json.RawMessage(fmt.Sprintf(blockChainInfoReply, n.chain.height, n.chain.height)), nil
	case "getrawtransaction":
	default:
		return nil, fmt.Errorf("unexpected raw method %s", method)
	}

	if len(params) != 3 {
		return nil, fmt.Errorf("expected txid, verbose and blockhash, got %d params", len(params))
	}

	var txid string
	if err := json.Unmarshal(params[0], &txid); err != nil {
		return nil, err
	}
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return nil, err
	}

	tx, ok := n.chain.txs[*hash]
	if !ok {
		return nil, errors.New("no such transaction")
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}
	return json.Marshal(hex.EncodeToString(buf.Bytes()))
}

func (n *fakeNode) Shutdown() {}

type fakeWallet struct {
	chain *fakeChain
	addr  btcutil.Address
}

func (w *fakeWallet) GetNewAddress(account string) (btcutil.Address, error) {
	if err := w.chain.fail("getnewaddress"); err != nil {
		return nil, err
	}
	w.chain.labels = append(w.chain.labels, account)
	return w.addr, nil
}

func (w *fakeWallet) GetBalance(account string) (btcutil.Amount, error) {
	if err := w.chain.fail("getbalance"); err != nil {
		return 0, err
	}
	if w.addr == w.chain.traderAddr {
		return TransferAmount, nil
	}
	return coinbaseReward, nil
}

func (w *fakeWallet) SendToAddress(address btcutil.Address, amount btcutil.Amount) (*chainhash.Hash, error) {
	if err := w.chain.fail("sendtoaddress"); err != nil {
		return nil, err
	}

	c := w.chain
	tx := wire.NewMsgTx(wire.TxVersion)
	if !c.noInputs {
		index := uint32(0)
		if c.prevIndex != nil {
			index = *c.prevIndex
		}
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(c.firstCoinbase, index), nil, nil))
	}

	recipient := payTo(c.t, address, amount)
	change := payTo(c.t, c.changeAddr, coinbaseReward-amount-c.fee)
	if c.recipientLast {
		tx.AddTxOut(change)
		tx.AddTxOut(recipient)
	} else {
		tx.AddTxOut(recipient)
		tx.AddTxOut(change)
	}
	for _, out := range c.extraOutputs {
		tx.AddTxOut(out)
	}

	txid := tx.TxHash()
	c.txs[txid] = tx
	return &txid, nil
}

func (w *fakeWallet) GetTransactionWatchOnly(txHash *chainhash.Hash, watchOnly bool) (*btcjson.GetTransactionResult, error) {
	if err := w.chain.fail("gettransaction"); err != nil {
		return nil, err
	}

	fee := w.chain.fee
	if w.chain.walletFee != nil {
		fee = *w.chain.walletFee
	}
	return &btcjson.GetTransactionResult{TxID: txHash.String(), Fee: -fee.ToBTC()}, nil
}

func (w *fakeWallet) RawRequest(method string, params []json.RawMessage) (json.RawMessage, error) {
	return nil, fmt.Errorf("unexpected raw method %s", method)
}

func (w *fakeWallet) Shutdown() {}
