package regtest

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// ---------------------------------------------------------------
//  Bitcoin Core Node Management
// ---------------------------------------------------------------

var (
	// bitcoindMutex serializes invocations of the manager script so two
	// callers never start or stop the node at the same time.
	bitcoindMutex sync.Mutex

	// scriptPath holds the absolute path to scripts/bitcoind_manager.sh,
	// resolved relative to the module root (the nearest go.mod).
	scriptPath string
)

func init() {
	workDir, _ := os.Getwd()

	for {
		if _, err := os.Stat(filepath.Join(workDir, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(workDir)
		if parent == workDir {
			// Reached root, fallback to current directory
			workDir, _ = os.Getwd()
			break
		}
		workDir = parent
	}

	scriptPath = filepath.Join(workDir, "scripts", "bitcoind_manager.sh")
}

// ScriptPath returns the resolved location of the bitcoind manager script.
func ScriptPath() string {
	return scriptPath
}

// scriptEnv passes the node settings to the manager script.
func scriptEnv(cfg *Config) []string {
	return append(os.Environ(),
		"BITCOIND_RPCPORT="+cfg.Port(),
		"BITCOIND_RPCUSER="+cfg.User,
		"BITCOIND_RPCPASS="+cfg.Pass,
		"BITCOIND_DATADIR="+cfg.DataDir,
		"BITCOIND_EXTRA_ARGS="+strings.Join(cfg.ExtraArgs, " "),
	)
}

func runScript(cfg *Config, action string) ([]byte, error) {
	cmd := exec.Command("bash", scriptPath, action)
	cmd.Env = scriptEnv(cfg)
	return cmd.CombinedOutput()
}

// StartBitcoinRegtest starts a regtest bitcoind with the RPC port,
// credentials and data directory from cfg.
//
// The started node will:
//   - Run on the regtest network
//   - Accept RPC on cfg.Host with cfg.User/cfg.Pass
//   - Keep a transaction index (-txindex=1 by default), so any
//     confirmed transaction can be fetched with getrawtransaction
//
// Returns:
//   - error: if the script is missing or bitcoind fails to come up
func StartBitcoinRegtest(cfg *Config) error {
	bitcoindMutex.Lock()
	defer bitcoindMutex.Unlock()

	if _, err := os.Stat(scriptPath); os.IsNotExist(err) {
		return fmt.Errorf("bitcoind manager script not found at: %s", scriptPath)
	}

	output, err := runScript(cfg, "start")
	if err != nil {
		return fmt.Errorf("failed to start bitcoind (script: %s): %s", scriptPath, string(output))
	}

	return nil
}

// StopBitcoinRegtest stops the node started by StartBitcoinRegtest and
// removes its data directory.
func StopBitcoinRegtest(cfg *Config) error {
	bitcoindMutex.Lock()
	defer bitcoindMutex.Unlock()

	output, err := runScript(cfg, "stop")
	if err != nil {
		return fmt.Errorf("failed to stop bitcoind: %s", string(output))
	}

	return nil
}

// IsBitcoindRunning reports whether the manager script sees a live node.
func IsBitcoindRunning(cfg *Config) (bool, error) {
	bitcoindMutex.Lock()
	defer bitcoindMutex.Unlock()

	output, err := runScript(cfg, "status")
	if err != nil {
		return false, fmt.Errorf("failed to check bitcoind status: %s", string(output))
	}

	return strings.Contains(string(output), "is running"), nil
}
