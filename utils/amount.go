package utils

import (
	"fmt"
	"math"
	"math/big"
	"strings"
)

var weiPerEth = new(big.Rat).SetInt(big.NewInt(1_000_000_000_000_000_000))

// ParseGasPriceToBigInt converts a decimal amount with prec decimals to its
// integer unit. Fractions below one unit fall back to 10 gwei.
func ParseGasPriceToBigInt(gasPriceFloat float64, prec int) *big.Int {
	gasPriceWeiFloat := gasPriceFloat * math.Pow10(prec)
	if hasDecimal(gasPriceWeiFloat) {
		return new(big.Int).SetUint64(10_000_000_000)
	}
	return new(big.Int).SetUint64(uint64(gasPriceWeiFloat))
}

func hasDecimal(num float64) bool {
	return math.Floor(num) != num
}

// ParseAmount reads a transfer value. A plain integer is taken as wei; a value
// ending in ETH (e.g. "0.01ETH") is converted from ether.
func ParseAmount(amountStr string) (*big.Int, error) {
	amountStr = strings.TrimSpace(amountStr)
	upper := strings.ToUpper(amountStr)

	if !strings.HasSuffix(upper, "ETH") {
		wei, ok := new(big.Int).SetString(amountStr, 10)
		if !ok {
			return nil, fmt.Errorf("invalid amount %q: want wei or an 'ETH' suffix", amountStr)
		}
		if wei.Sign() < 0 {
			return nil, fmt.Errorf("amount must not be negative")
		}
		return wei, nil
	}

	ethValue := strings.TrimSpace(strings.TrimSuffix(upper, "ETH"))
	eth, ok := new(big.Rat).SetString(ethValue)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value: %s", ethValue)
	}
	weiRat := new(big.Rat).Mul(eth, weiPerEth)
	if !weiRat.IsInt() {
		return nil, fmt.Errorf("amount %s has more than 18 decimals", amountStr)
	}
	wei := new(big.Int).Set(weiRat.Num())
	if wei.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return wei, nil
}
