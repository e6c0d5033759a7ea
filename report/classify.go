package report

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// DecodeAddress turns a standard single-address output script into its
// regtest address. P2PK, multisig, OP_RETURN and non-standard scripts do not
// decode.
func DecodeAddress(pkScript []byte) (btcutil.Address, bool) {
	class, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, &chaincfg.RegressionNetParams)
	if err != nil || len(addrs) != 1 {
		return nil, false
	}

	switch class {
	case txscript.PubKeyHashTy,
		txscript.ScriptHashTy,
		txscript.WitnessV0PubKeyHashTy,
		txscript.WitnessV0ScriptHashTy,
		txscript.WitnessV1TaprootTy:
		return addrs[0], true
	}
	return nil, false
}

// Outputs is the split of a transaction's outputs between the recipient and
// the sender's change.
type Outputs struct {
	RecipientAddress string
	RecipientAmount  btcutil.Amount

	ChangeAddress string
	ChangeAmount  btcutil.Amount
}

// ClassifyOutputs assigns every decodable output either to the recipient
// (address equal to recipient) or to change. Undecodable outputs are skipped.
//
// Only one change output is kept: when several outputs are not the
// recipient, the last one in transaction order wins.
func ClassifyOutputs(outs []*wire.TxOut, recipient string) Outputs {
	var res Outputs

	for _, out := range outs {
		addr, ok := DecodeAddress(out.PkScript)
		if !ok {
			continue
		}

		encoded := addr.EncodeAddress()
		if encoded == recipient {
			res.RecipientAddress = encoded
			res.RecipientAmount = btcutil.Amount(out.Value)
		} else {
			res.ChangeAddress = encoded
			res.ChangeAmount = btcutil.Amount(out.Value)
		}
	}

	return res
}

// Fee is what is left of input after paying the recipient and change.
func (o Outputs) Fee(input btcutil.Amount) btcutil.Amount {
	return input - (o.RecipientAmount + o.ChangeAmount)
}
