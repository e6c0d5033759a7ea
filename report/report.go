package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"
)

// TransactionReport describes one confirmed Miner -> Trader transfer.
// RecipientAmount + ChangeAmount + Fee always equals InputAmount.
type TransactionReport struct {
	TxID string

	InputAddress string
	InputAmount  btcutil.Amount

	RecipientAddress string
	RecipientAmount  btcutil.Amount

	ChangeAddress string
	ChangeAmount  btcutil.Amount

	Fee btcutil.Amount

	BlockHeight int32
	BlockHash   string
}

// Lines returns the report in file order, one value per line.
func (r *TransactionReport) Lines() []string {
	return []string{
		r.TxID,
		r.InputAddress,
		FormatAmount(r.InputAmount),
		r.RecipientAddress,
		FormatAmount(r.RecipientAmount),
		r.ChangeAddress,
		FormatAmount(r.ChangeAmount),
		FormatAmount(r.Fee),
		strconv.FormatInt(int64(r.BlockHeight), 10),
		r.BlockHash,
	}
}

// WriteTo writes the report lines to w, newline terminated.
func (r *TransactionReport) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, line := range r.Lines() {
		n, err := fmt.Fprintln(w, line)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteFile creates (or truncates) path and writes the report into it. The
// file is written line by line, so a failure can leave it truncated.
func (r *TransactionReport) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}

	if _, err := r.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write report file: %w", err)
	}

	return f.Close()
}

// FormatAmount renders a in coin units with exactly eight fractional digits,
// without going through float64.
func FormatAmount(a btcutil.Amount) string {
	return decimal.New(int64(a), -8).StringFixed(8)
}

// ErrAmountPrecision is returned by ParseAmount for values finer than one
// satoshi.
var ErrAmountPrecision = errors.New("amount has more than 8 decimal places")

// ParseAmount parses a positive coin amount such as "20" or "0.00001410"
// into satoshis without going through float64.
func ParseAmount(s string) (btcutil.Amount, error) {
	btc, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	sats := btc.Shift(8)
	switch {
	case !sats.IsInteger():
		return 0, fmt.Errorf("invalid amount %q: %w", s, ErrAmountPrecision)
	case !sats.IsPositive():
		return 0, fmt.Errorf("invalid amount %q: must be positive", s)
	case sats.GreaterThan(decimal.NewFromInt(btcutil.MaxSatoshi)):
		return 0, fmt.Errorf("invalid amount %q: exceeds the coin supply", s)
	}

	return btcutil.Amount(sats.IntPart()), nil
}
