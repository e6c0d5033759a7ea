// Package report drives the Miner -> Trader transfer on a regtest node and
// reconstructs the resulting transaction into a TransactionReport.
package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	log "github.com/sirupsen/logrus"

	regtest "github.com/neverDefined/regtest-report"
)

const (
	// MaturityBlocks is enough blocks for the first coinbase to reach the
	// 100 confirmations it needs before it can be spent.
	MaturityBlocks = 101

	// TransferAmount is what Miner sends to Trader.
	TransferAmount = btcutil.Amount(20 * btcutil.SatoshiPerBitcoin)

	miningLabel  = "Mining Reward"
	receiveLabel = "Received"
)

var (
	// ErrNoInputs is returned when the transfer has no inputs to trace.
	ErrNoInputs = errors.New("transaction has no inputs")

	// ErrPrevOutIndex is returned when the funding input points past the end
	// of the previous transaction's outputs.
	ErrPrevOutIndex = errors.New("previous output index out of range")

	// ErrInputAddress is returned when the funding output script does not
	// decode to a standard address.
	ErrInputAddress = errors.New("unable to decode input script to address")
)

// Generator runs the report procedure over an open session. It is single
// use and not safe for concurrent calls.
type Generator struct {
	node   regtest.NodeRPC
	miner  regtest.WalletRPC
	trader regtest.WalletRPC

	outputPath string
	out        io.Writer
	logger     log.FieldLogger

	// filled in as the phases run
	miningAddr btcutil.Address
	traderAddr btcutil.Address
	txid       *chainhash.Hash
	blockHash  *chainhash.Hash
	height     int32
}

// NewGenerator returns a Generator that writes its report to outputPath and
// its human-readable progress to out.
func NewGenerator(s *regtest.Session, outputPath string, out io.Writer, logger log.FieldLogger) *Generator {
	return &Generator{
		node:       s.Node,
		miner:      s.Miner,
		trader:     s.Trader,
		outputPath: outputPath,
		out:        out,
		logger:     logger,
	}
}

// Run executes every phase in order and returns the written report. The
// first failing RPC aborts the run.
func (g *Generator) Run() (*TransactionReport, error) {
	info, err := regtest.GetBlockChainInfo(g.node)
	if err != nil {
		return nil, fmt.Errorf("failed to get blockchain info: %w", err)
	}
	fmt.Fprintf(g.out, "Blockchain Info: %+v\n", *info)

	if err := g.fund(); err != nil {
		return nil, err
	}
	if err := g.transfer(); err != nil {
		return nil, err
	}
	if err := g.confirm(); err != nil {
		return nil, err
	}

	rep, err := g.reconstruct()
	if err != nil {
		return nil, err
	}

	if err := g.emit(rep); err != nil {
		return nil, err
	}

	if err := g.printBalances(); err != nil {
		return nil, err
	}

	return rep, nil
}

func (g *Generator) fund() error {
	addr, err := g.miner.GetNewAddress(miningLabel)
	if err != nil {
		return fmt.Errorf("failed to get mining address: %w", err)
	}
	g.miningAddr = addr

	if _, err := g.node.GenerateToAddress(MaturityBlocks, addr, nil); err != nil {
		return fmt.Errorf("failed to mine %d blocks: %w", MaturityBlocks, err)
	}
	g.logger.WithField("address", addr.EncodeAddress()).Infof("mined %d maturity blocks", MaturityBlocks)

	balance, err := g.miner.GetBalance("*")
	if err != nil {
		return fmt.Errorf("failed to get miner balance: %w", err)
	}
	fmt.Fprintf(g.out, "Miner Balance: %s BTC\n", FormatAmount(balance))

	return nil
}

func (g *Generator) transfer() error {
	addr, err := g.trader.GetNewAddress(receiveLabel)
	if err != nil {
		return fmt.Errorf("failed to get trader address: %w", err)
	}
	g.traderAddr = addr

	txid, err := g.miner.SendToAddress(addr, TransferAmount)
	if err != nil {
		return fmt.Errorf("failed to send %s BTC: %w", FormatAmount(TransferAmount), err)
	}
	g.txid = txid
	g.logger.WithField("to", addr.EncodeAddress()).Infof("sent transfer %s", txid)

	entry, err := g.node.GetMempoolEntry(txid.String())
	if err != nil {
		return fmt.Errorf("failed to get mempool entry: %w", err)
	}
	fmt.Fprintf(g.out, "Unconfirmed transaction: %+v\n", *entry)

	return nil
}

func (g *Generator) confirm() error {
	hashes, err := g.node.GenerateToAddress(1, g.miningAddr, nil)
	if err != nil {
		return fmt.Errorf("failed to mine confirmation block: %w", err)
	}
	if len(hashes) == 0 {
		return errors.New("generatetoaddress returned no block hashes")
	}
	g.blockHash = hashes[0]

	header, err := g.node.GetBlockHeaderVerbose(g.blockHash)
	if err != nil {
		return fmt.Errorf("failed to get block header: %w", err)
	}
	g.height = header.Height
	g.logger.Infof("confirmed transfer in block %s at height %d", g.blockHash, g.height)

	return nil
}

func (g *Generator) reconstruct() (*TransactionReport, error) {
	walletTx, err := g.miner.GetTransactionWatchOnly(g.txid, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet transaction: %w", err)
	}

	tx, err := regtest.GetRawTransactionInBlock(g.node, g.txid, g.blockHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get raw transaction: %w", err)
	}
	if len(tx.TxIn) == 0 {
		return nil, ErrNoInputs
	}

	prevOut := tx.TxIn[0].PreviousOutPoint
	prevTx, err := g.node.GetRawTransaction(&prevOut.Hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get previous transaction %s: %w", prevOut.Hash, err)
	}

	prevOuts := prevTx.MsgTx().TxOut
	if int(prevOut.Index) >= len(prevOuts) {
		return nil, fmt.Errorf("%w: %s", ErrPrevOutIndex, prevOut)
	}
	funding := prevOuts[prevOut.Index]

	inputAddr, ok := DecodeAddress(funding.PkScript)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInputAddress, prevOut)
	}
	inputAmount := btcutil.Amount(funding.Value)

	outs := ClassifyOutputs(tx.TxOut, g.traderAddr.EncodeAddress())
	fee := outs.Fee(inputAmount)

	// The wallet fee is negative for sends and covers every input, so a
	// mismatch means the transfer spent more than the first input.
	if walletFee, err := btcutil.NewAmount(-walletTx.Fee); err == nil && walletFee != fee {
		g.logger.WithField("inputs", len(tx.TxIn)).Warnf("computed fee %s BTC differs from wallet fee %s BTC",
			FormatAmount(fee), FormatAmount(walletFee))
	}

	return &TransactionReport{
		TxID:             g.txid.String(),
		InputAddress:     inputAddr.EncodeAddress(),
		InputAmount:      inputAmount,
		RecipientAddress: outs.RecipientAddress,
		RecipientAmount:  outs.RecipientAmount,
		ChangeAddress:    outs.ChangeAddress,
		ChangeAmount:     outs.ChangeAmount,
		Fee:              fee,
		BlockHeight:      g.height,
		BlockHash:        g.blockHash.String(),
	}, nil
}

func (g *Generator) emit(rep *TransactionReport) error {
	fmt.Fprintln(g.out, rep.TxID)

	if err := rep.WriteFile(g.outputPath); err != nil {
		return err
	}
	g.logger.Infof("wrote report to %s", g.outputPath)

	return nil
}

func (g *Generator) printBalances() error {
	minerBalance, err := g.miner.GetBalance("*")
	if err != nil {
		return fmt.Errorf("failed to get miner balance: %w", err)
	}
	traderBalance, err := g.trader.GetBalance("*")
	if err != nil {
		return fmt.Errorf("failed to get trader balance: %w", err)
	}

	fmt.Fprintln(g.out, "\n=== Wallet Balances ===")
	fmt.Fprintf(g.out, "Miner Balance: %s BTC\n", FormatAmount(minerBalance))
	fmt.Fprintf(g.out, "Trader Balance: %s BTC\n", FormatAmount(traderBalance))

	return nil
}
