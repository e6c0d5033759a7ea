package regtest

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ---------------------------------------------------------------
//  Untyped RPC calls
// ---------------------------------------------------------------

// ErrSendIncomplete is returned when the node built a send transaction but
// could not fully sign it.
var ErrSendIncomplete = errors.New("send did not complete")

// Call invokes method with positional params and decodes the reply into
// result. A nil param is sent as JSON null. result may be nil when the reply
// is not needed.
func Call(c RawRequester, method string, result any, params ...any) error {
	raw := make([]json.RawMessage, len(params))
	for i, p := range params {
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode param %d of %s: %w", i, method, err)
		}
		raw[i] = b
	}

	resp, err := c.RawRequest(method, raw)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp, result); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// SendResult is the reply of the send wallet RPC.
type SendResult struct {
	Complete bool   `json:"complete"`
	TxID     string `json:"txid"`
}

// Send pays outputs through the send wallet RPC, leaving confirmation target,
// estimate mode, fee rate and options to the node defaults.
//
// Returns:
//   - *chainhash.Hash: id of the broadcast transaction
//   - error: RPC failure, or ErrSendIncomplete if the node could not sign
func Send(c RawRequester, outputs map[string]btcutil.Amount) (*chainhash.Hash, error) {
	addrs := make([]string, 0, len(outputs))
	for addr := range outputs {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	recipients := make([]map[string]float64, 0, len(addrs))
	for _, addr := range addrs {
		recipients = append(recipients, map[string]float64{addr: outputs[addr].ToBTC()})
	}

	var res SendResult
	if err := Call(c, "send", &res, recipients, nil, nil, nil, nil); err != nil {
		return nil, err
	}
	if !res.Complete {
		return nil, ErrSendIncomplete
	}

	txid, err := chainhash.NewHashFromStr(res.TxID)
	if err != nil {
		return nil, fmt.Errorf("invalid txid %q from send: %w", res.TxID, err)
	}
	return txid, nil
}

// GetRawTransactionInBlock fetches txid from the block identified by
// blockHash, which lets the node find it without a transaction index. A nil
// blockHash falls back to the plain lookup.
func GetRawTransactionInBlock(c RawRequester, txid, blockHash *chainhash.Hash) (*wire.MsgTx, error) {
	params := []any{txid.String(), false}
	if blockHash != nil {
		params = append(params, blockHash.String())
	}

	var txHex string
	if err := Call(c, "getrawtransaction", &txHex, params...); err != nil {
		return nil, err
	}

	txBytes, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tx hex: %w", err)
	}

	// A transaction without inputs looks like a witness marker, so retry
	// the legacy encoding the way the node's own decoder does.
	var msgTx wire.MsgTx
	if err := msgTx.Deserialize(bytes.NewReader(txBytes)); err != nil {
		msgTx = wire.MsgTx{}
		if errNoWitness := msgTx.DeserializeNoWitness(bytes.NewReader(txBytes)); errNoWitness != nil {
			return nil, fmt.Errorf("failed to deserialize transaction: %w", err)
		}
	}
	return &msgTx, nil
}

// GetBlockChainInfo queries getblockchaininfo directly, skipping the
// getnetworkinfo version probe rpcclient does first.
func GetBlockChainInfo(c RawRequester) (*btcjson.GetBlockChainInfoResult, error) {
	var info btcjson.GetBlockChainInfoResult
	if err := Call(c, "getblockchaininfo", &info); err != nil {
		return nil, err
	}
	return &info, nil
}
