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
	"bytes"
	"context"
	"fmt"
	"io"
	"math/big"
	"sort"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hashicorp/go-msgpack/v2/codec"
	"github.com/pierrec/lz4/v4"
	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	coordpkg "github.com/d4mr/coredrain/internal/backoff"
	"github.com/d4mr/coredrain/internal/fetchretry"
	"github.com/d4mr/coredrain/internal/model"
)

// objectMaxAttempts mirrors the RPC variant's retry budget.
const objectMaxAttempts = 3

// objectBlockRecord is the on-disk, msgpack-encoded shape of one
// <million>/<thousand>/<block>.mpz object.
type objectBlockRecord struct {
	Number    uint64               `codec:"number"`
	Hash      string               `codec:"hash"`
	Timestamp int64                `codec:"timestamp"`
	Txs       []objectSystemTxWire `codec:"txs"`
}

type objectSystemTxWire struct {
	Nonce    uint64          `codec:"nonce"`
	GasPrice []byte          `codec:"gasPrice"`
	Gas      uint64          `codec:"gas"`
	To       string          `codec:"to"`
	Value    []byte          `codec:"value"`
	Input    []byte          `codec:"input"`
	Logs     []objectLogWire `codec:"logs"`
}

type objectLogWire struct {
	Address string   `codec:"address"`
	Topics  []string `codec:"topics"`
	Data    []byte   `codec:"data"`
}

// S3API is the subset of the S3 client this fetcher uses, so tests can
// substitute a fake.
type S3API interface {
	GetObject(ctx context.Context, input *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ObjectStoreFetcher fetches blocks from a requester-pays bucket of
// LZ4-frame-compressed, msgpack-encoded block records.
type ObjectStoreFetcher struct {
	s3      S3API
	bucket  string
	chainID int64
	coord   *coordpkg.Coordinator
	logger  *zap.Logger
}

func NewObjectStoreFetcher(s3api S3API, bucket string, chainID int64, coord *coordpkg.Coordinator, logger *zap.Logger) *ObjectStoreFetcher {
	return &ObjectStoreFetcher{s3: s3api, bucket: bucket, chainID: chainID, coord: coord, logger: logger}
}

// objectKey derives the deterministic <million>/<thousand>/<block>.mpz
// path for a block number.
func objectKey(blockNumber uint64) string {
	million := blockNumber / 1_000_000
	thousand := (blockNumber / 1_000) % 1_000
	return fmt.Sprintf("%d/%d/%d.mpz", million, thousand, blockNumber)
}

type fetchOutcome struct {
	data model.BlockData
	err  error
}

// FetchBlocks fans out one goroutine per block number, unbounded
// concurrency within the call, collecting results through a buffered
// channel.
func (f *ObjectStoreFetcher) FetchBlocks(ctx context.Context, blockNumbers []uint64) ([]model.BlockData, error) {
	results := make(chan fetchOutcome, len(blockNumbers))

	for _, num := range blockNumbers {
		num := num
		go func() {
			var bd model.BlockData
			err := fetchretry.Do(ctx, f.coord, objectMaxAttempts, func(ctx context.Context) error {
				fetched, err := f.fetchOne(ctx, num)
				if err != nil {
					return err
				}
				bd = fetched
				return nil
			})
			results <- fetchOutcome{data: bd, err: err}
		}()
	}

	out := make([]model.BlockData, 0, len(blockNumbers))
	var firstErr error
	for range blockNumbers {
		r := <-results
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			f.logger.Warn("object-store block fetch failed", zap.Error(r.err))
			continue
		}
		out = append(out, r.data)
	}
	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (f *ObjectStoreFetcher) fetchOne(ctx context.Context, blockNumber uint64) (model.BlockData, error) {
	key := objectKey(blockNumber)
	resp, err := f.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket:       &f.bucket,
		Key:          &key,
		RequestPayer: types.RequestPayerRequester,
	})
	if err != nil {
		return model.BlockData{}, fmt.Errorf("get object %s: %w", key, err)
	}
	defer resp.Body.Close()

	compressed, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.BlockData{}, fmt.Errorf("read object %s: %w", key, err)
	}

	decompressed, err := decompressLZ4(compressed)
	if err != nil {
		return model.BlockData{}, fmt.Errorf("decompress object %s: %w", key, err)
	}

	var rec objectBlockRecord
	var mh codec.MsgpackHandle
	if err := codec.NewDecoderBytes(decompressed, &mh).Decode(&rec); err != nil {
		return model.BlockData{}, fmt.Errorf("decode object %s: %w", key, err)
	}

	return f.toBlockData(rec), nil
}

func (f *ObjectStoreFetcher) toBlockData(rec objectBlockRecord) model.BlockData {
	txs := make([]model.SystemTx, 0, len(rec.Txs))
	for _, w := range rec.Txs {
		to := common.HexToAddress(w.To)
		logs := make([]*types.Log, 0, len(w.Logs))
		for _, lg := range w.Logs {
			topics := make([]common.Hash, len(lg.Topics))
			for i, t := range lg.Topics {
				topics[i] = common.HexToHash(t)
			}
			logs = append(logs, &types.Log{Address: common.HexToAddress(lg.Address), Topics: topics, Data: lg.Data})
		}
		raw := rawTxWithLogs{
			Nonce:    w.Nonce,
			GasPrice: new(big.Int).SetBytes(w.GasPrice),
			Gas:      w.Gas,
			To:       &to,
			Value:    new(big.Int).SetBytes(w.Value),
			Data:     w.Input,
			Logs:     logs,
		}
		if stx, ok := normalizeTx(raw, f.chainID); ok {
			txs = append(txs, stx)
		}
	}
	return model.BlockData{
		Number:    rec.Number,
		Hash:      rec.Hash,
		Timestamp: rec.Timestamp,
		Txs:       txs,
	}
}

func decompressLZ4(compressed []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(compressed))
	return io.ReadAll(r)
}
