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

package fetch

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/d4mr/coredrain/internal/assetcache"
	"github.com/d4mr/coredrain/internal/evmtx"
	"github.com/d4mr/coredrain/internal/model"
)

// erc20TransferSelector is the 4-byte function selector for
// transfer(address,uint256).
var erc20TransferSelector = crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]

// transferEventTopic is keccak256("Transfer(address,address,uint256)"),
// the canonical ERC-20 Transfer event signature.
var transferEventTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// rawTxWithLogs is the minimal per-transaction shape both fetcher
// variants assemble before normalization, independent of how each
// variant sourced the transaction and its logs.
type rawTxWithLogs struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       *common.Address
	Value    *big.Int
	Data     []byte
	Logs     []*types.Log
}

// normalizeTx extracts a SystemTx from a single transaction, or returns
// (zero, false) if the transaction is not an asset-transfer system
// transaction. chainID is required to compute the dual signature hash.
func normalizeTx(tx rawTxWithLogs, chainID int64) (model.SystemTx, bool) {
	if tx.To == nil {
		return model.SystemTx{}, false
	}

	switch {
	case len(tx.Data) == 0 && tx.Value != nil && tx.Value.Sign() > 0:
		return normalizeNative(tx, chainID)
	case len(tx.Data) >= 68 && hasSelector(tx.Data, erc20TransferSelector):
		return normalizeContractTransfer(tx, chainID)
	default:
		return model.SystemTx{}, false
	}
}

func hasSelector(data []byte, selector []byte) bool {
	if len(data) < len(selector) {
		return false
	}
	for i, b := range selector {
		if data[i] != b {
			return false
		}
	}
	return true
}

func normalizeNative(tx rawTxWithLogs, chainID int64) (model.SystemTx, bool) {
	sender := common.HexToAddress(assetcache.NativeSystemAddress)
	raw := evmtx.RawTx{Nonce: tx.Nonce, GasPrice: tx.GasPrice, Gas: tx.Gas, To: *tx.To, Value: tx.Value, Data: tx.Data}
	internal, explorer := evmtx.Hashes(raw, chainID, sender)

	return model.SystemTx{
		InternalHash:       internal.Hex(),
		ExplorerHash:       explorer.Hex(),
		From:               assetcache.NativeSystemAddress,
		AssetRecipient:     tx.To.Hex(),
		AmountSmallestUnit: tx.Value.String(),
		ContractAddress:    nil,
	}, true
}

// normalizeContractTransfer decodes the ERC-20 transfer call data for
// (to, amount) and recovers the sender from the matching Transfer event
// log. A transaction with no matching log is skipped: decode-without-log
// is treated as "not a system transaction" rather than an error.
func normalizeContractTransfer(tx rawTxWithLogs, chainID int64) (model.SystemTx, bool) {
	to := common.BytesToAddress(tx.Data[4:36])
	amount := new(big.Int).SetBytes(tx.Data[36:68])
	contract := *tx.To

	from, ok := senderFromTransferLog(tx.Logs, contract, to, amount)
	if !ok {
		return model.SystemTx{}, false
	}

	raw := evmtx.RawTx{Nonce: tx.Nonce, GasPrice: tx.GasPrice, Gas: tx.Gas, To: *tx.To, Value: big.NewInt(0), Data: tx.Data}
	internal, explorer := evmtx.Hashes(raw, chainID, from)
	contractHex := contract.Hex()

	return model.SystemTx{
		InternalHash:       internal.Hex(),
		ExplorerHash:       explorer.Hex(),
		From:               from.Hex(),
		AssetRecipient:     to.Hex(),
		AmountSmallestUnit: amount.String(),
		ContractAddress:    &contractHex,
	}, true
}

// senderFromTransferLog finds the Transfer(from, to, value) log emitted
// by contract matching the decoded recipient and amount, and returns its
// indexed sender (topic[1]).
func senderFromTransferLog(logs []*types.Log, contract, to common.Address, amount *big.Int) (common.Address, bool) {
	for _, lg := range logs {
		if lg.Address != contract {
			continue
		}
		if len(lg.Topics) != 3 || lg.Topics[0] != transferEventTopic {
			continue
		}
		logTo := common.BytesToAddress(lg.Topics[2].Bytes())
		if logTo != to {
			continue
		}
		logAmount := new(big.Int).SetBytes(lg.Data)
		if logAmount.Cmp(amount) != 0 {
			continue
		}
		return common.BytesToAddress(lg.Topics[1].Bytes()), true
	}
	return common.Address{}, false
}
