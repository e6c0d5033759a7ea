/*
Package regtest connects to a Bitcoin Core regtest node and its wallets for the
txreport tool.

It owns the pieces every caller needs before a report can be produced: the
connection settings, the bitcoind lifecycle script, a Session bundling the node
connection with one connection per wallet, and helpers for RPCs that
rpcclient has no typed binding for.

Quick Start

	cfg := regtest.DefaultConfig()
	if err := regtest.StartBitcoinRegtest(cfg); err != nil {
		log.Fatal(err)
	}
	defer regtest.StopBitcoinRegtest(cfg)

	s, err := regtest.Dial(cfg, logrus.StandardLogger())
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()

	addr, _ := s.Miner.GetNewAddress("Mining Reward")
	s.Node.GenerateToAddress(101, addr, nil) // Mine to maturity

# Configuration

Default settings:
  - RPC host: 127.0.0.1:18443
  - RPC user: alice
  - RPC pass: password
  - Wallets: Miner and Trader
  - Report file: ../out.txt
  - Data directory: ./bitcoind_regtest

The connection values are constants. LoadConfig lets an explicit JSON file set
the wallets, paths and log level, but refuses one that sets host, user or pass.
Nothing is read from the environment.

# Wallets

Dial creates both wallets. A wallet that already exists on disk is loaded
instead, and one that is already loaded is used as is, so running the tool
twice against the same node works.

# Untyped RPCs

Call sends any method with positional parameters and decodes the reply:

	var info map[string]any
	err := regtest.Call(s.Node, "getnetworkinfo", &info)

GetBlockChainInfo goes through Call as well. The typed rpcclient method first
asks getnetworkinfo for the node version, and Bitcoin Core 28 answers it with a
warnings list rpcclient cannot decode.

Send wraps the send wallet RPC:

	txid, err := regtest.Send(s.Miner, map[string]btcutil.Amount{addr: 100 * btcutil.SatoshiPerBitcoin})

# Prerequisites

bitcoind and bitcoin-cli must be in PATH for StartBitcoinRegtest. The node is
started with -txindex=1 so getrawtransaction can find the funding coinbase, and
with -deprecatedrpc=warnings so other clients still get warnings as a string.
*/
package regtest
