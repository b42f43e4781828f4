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

// Package evmtx computes the two bridge-identifier hashes every system
// transaction carries, and the amount conversion the match predicate
// depends on.
package evmtx

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// legacyTxRLP is the canonical RLP shape of a legacy (pre-EIP-2718)
// transaction, the form system transactions are hashed as.
type legacyTxRLP struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       *common.Address `rlp:"nil"`
	Value    *big.Int
	Data     []byte
	V        *big.Int
	R        *big.Int
	S        *big.Int
}

// RawTx is the pre-hash shape of a system transaction, independent of
// whether it materializes a native transfer or a contract call.
type RawTx struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       common.Address
	Value    *big.Int
	Data     []byte
}

// Hashes computes (internalHash, explorerHash) for a system transaction
// given the chain ID and the sender system address. Both hashes are
// Keccak-256 of the same canonical RLP encoding; they differ only in the
// signature fields (v, r, s).
func Hashes(tx RawTx, chainID int64, senderSystemAddress common.Address) (internalHash, explorerHash common.Hash) {
	cid := big.NewInt(chainID)

	internal := legacyTxRLP{
		Nonce: tx.Nonce, GasPrice: tx.GasPrice, Gas: tx.Gas, To: &tx.To, Value: tx.Value, Data: tx.Data,
		V: new(big.Int).Add(new(big.Int).Mul(cid, big.NewInt(2)), big.NewInt(35)),
		R: big.NewInt(0),
		S: big.NewInt(0),
	}
	explorer := legacyTxRLP{
		Nonce: tx.Nonce, GasPrice: tx.GasPrice, Gas: tx.Gas, To: &tx.To, Value: tx.Value, Data: tx.Data,
		V: new(big.Int).Add(new(big.Int).Mul(cid, big.NewInt(2)), big.NewInt(36)),
		R: big.NewInt(1),
		S: new(big.Int).SetBytes(senderSystemAddress.Bytes()),
	}

	internalHash = crypto.Keccak256Hash(mustEncode(internal))
	explorerHash = crypto.Keccak256Hash(mustEncode(explorer))
	return
}

func mustEncode(v interface{}) []byte {
	b, err := rlp.EncodeToBytes(v)
	if err != nil {
		// The shapes encoded here are fixed and always RLP-encodable;
		// a failure means a programming error, not bad input.
		panic(err)
	}
	return b
}
