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
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	coordpkg "github.com/d4mr/coredrain/internal/backoff"
	"github.com/d4mr/coredrain/internal/fetchretry"
	"github.com/d4mr/coredrain/internal/model"
)

// rpcMaxAttempts is the retry budget for a single batch of RPC calls:
// 3 attempts with jittered exponential backoff.
const rpcMaxAttempts = 3

// blockHeaderWire is the reduced eth_getBlockByNumber(hex, false) shape
// this fetcher needs.
type blockHeaderWire struct {
	Number    hexutil.Uint64 `json:"number"`
	Hash      common.Hash    `json:"hash"`
	Timestamp hexutil.Uint64 `json:"timestamp"`
}

// systemTxWire is a single entry from eth_getSystemTxsByBlockNumber: a
// transaction the node has already identified as asset-transfer related,
// together with the logs it emitted.
type systemTxWire struct {
	Nonce    hexutil.Uint64  `json:"nonce"`
	GasPrice *hexutil.Big    `json:"gasPrice"`
	Gas      hexutil.Uint64  `json:"gas"`
	To       *common.Address `json:"to"`
	Value    *hexutil.Big    `json:"value"`
	Input    hexutil.Bytes   `json:"input"`
	Logs     []*types.Log    `json:"logs"`
}

// RPCFetcher fetches blocks over JSON-RPC, batching eth_getBlockByNumber
// and eth_getSystemTxsByBlockNumber calls.
type RPCFetcher struct {
	client  *gethrpc.Client
	chainID int64
	coord   *coordpkg.Coordinator
	logger  *zap.Logger
}

func NewRPCFetcher(client *gethrpc.Client, chainID int64, coord *coordpkg.Coordinator, logger *zap.Logger) *RPCFetcher {
	return &RPCFetcher{client: client, chainID: chainID, coord: coord, logger: logger}
}

// FetchBlocks batches blockNumbers in groups of MaxBatchSize/2 (each
// block costs two RPC calls in one batch), concurrency 1, retrying each
// batch as a unit via internal/fetchretry.
func (f *RPCFetcher) FetchBlocks(ctx context.Context, blockNumbers []uint64) ([]model.BlockData, error) {
	const perCallCap = MaxBatchSize / 2
	out := make([]model.BlockData, 0, len(blockNumbers))

	for start := 0; start < len(blockNumbers); start += perCallCap {
		end := start + perCallCap
		if end > len(blockNumbers) {
			end = len(blockNumbers)
		}
		chunk := blockNumbers[start:end]

		var headers []blockHeaderWire
		var txSets [][]systemTxWire
		err := fetchretry.Do(ctx, f.coord, rpcMaxAttempts, func(ctx context.Context) error {
			h, t, err := f.fetchChunk(ctx, chunk)
			if err != nil {
				return err
			}
			headers, txSets = h, t
			return nil
		})
		if err != nil {
			return out, fmt.Errorf("fetch blocks %v: %w", chunk, err)
		}

		for i, hdr := range headers {
			txs := make([]model.SystemTx, 0, len(txSets[i]))
			for _, w := range txSets[i] {
				raw := rawTxWithLogs{
					Nonce:    uint64(w.Nonce),
					GasPrice: bigOrZero(w.GasPrice),
					Gas:      uint64(w.Gas),
					To:       w.To,
					Value:    bigOrZero(w.Value),
					Data:     []byte(w.Input),
					Logs:     w.Logs,
				}
				if stx, ok := normalizeTx(raw, f.chainID); ok {
					txs = append(txs, stx)
				}
			}
			out = append(out, model.BlockData{
				Number:    uint64(hdr.Number),
				Hash:      hdr.Hash.Hex(),
				Timestamp: int64(hdr.Timestamp) * 1000,
				Txs:       txs,
			})
		}
	}
	return out, nil
}

func (f *RPCFetcher) fetchChunk(ctx context.Context, blockNumbers []uint64) ([]blockHeaderWire, [][]systemTxWire, error) {
	n := len(blockNumbers)
	headers := make([]blockHeaderWire, n)
	txSets := make([][]systemTxWire, n)
	batch := make([]gethrpc.BatchElem, 0, 2*n)

	for i, num := range blockNumbers {
		batch = append(batch,
			gethrpc.BatchElem{
				Method: "eth_getBlockByNumber",
				Args:   []interface{}{hexutil.EncodeUint64(num), false},
				Result: &headers[i],
			},
			gethrpc.BatchElem{
				Method: "eth_getSystemTxsByBlockNumber",
				Args:   []interface{}{hexutil.EncodeUint64(num)},
				Result: &txSets[i],
			},
		)
	}

	if err := f.client.BatchCallContext(ctx, batch); err != nil {
		return nil, nil, err
	}
	for _, elem := range batch {
		if elem.Error != nil {
			return nil, nil, elem.Error
		}
	}
	return headers, txSets, nil
}

func bigOrZero(v *hexutil.Big) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return (*big.Int)(v)
}
