// Copyright 2026 The Coredrain Authors
// This file is part of Coredrain.
//
// Coredrain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Coredrain is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Coredrain. If not, see <http://www.gnu.org/licenses/>.

package evmtx

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a human-scale decimal string (e.g. "100.5") into
// its smallest-unit integer representation at the given number of EVM
// decimals, rounding (never truncating) any excess fractional digits.
func ParseAmount(humanAmount string, evmDecimals int) (*big.Int, error) {
	d, err := decimal.NewFromString(humanAmount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", humanAmount, err)
	}
	scaled := d.Shift(int32(evmDecimals)).Round(0)
	return scaled.BigInt(), nil
}

// AmountsEqual reports whether a stored smallest-unit decimal string
// equals the human-scale amount once scaled to evmDecimals.
func AmountsEqual(amountSmallestUnit string, humanAmount string, evmDecimals int) bool {
	stored, ok := new(big.Int).SetString(amountSmallestUnit, 10)
	if !ok {
		return false
	}
	want, err := ParseAmount(humanAmount, evmDecimals)
	if err != nil {
		return false
	}
	return stored.Cmp(want) == 0
}
