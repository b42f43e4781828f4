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

// Package metadataclient is the external asset-metadata endpoint: a
// POST returning every known token's EVM decimal/contract encoding.
package metadataclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/d4mr/coredrain/internal/assetcache"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: 30 * time.Second}}
}

type tokenWire struct {
	Name        string `json:"name"`
	Index       int    `json:"index"`
	WeiDecimals int    `json:"weiDecimals"`
	EVMContract *struct {
		Address          string `json:"address"`
		EVMExtraDecimals int    `json:"evm_extra_wei_decimals"`
	} `json:"evmContract"`
}

type metaResponse struct {
	Tokens []tokenWire `json:"tokens"`
}

func (c *Client) FetchTokens(ctx context.Context) ([]assetcache.TokenMeta, error) {
	body, _ := json.Marshal(map[string]string{"type": "spotMeta"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata endpoint returned %d", resp.StatusCode)
	}
	var mr metaResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, fmt.Errorf("decode metadata response: %w", err)
	}
	out := make([]assetcache.TokenMeta, 0, len(mr.Tokens))
	for _, t := range mr.Tokens {
		tm := assetcache.TokenMeta{Name: t.Name, Index: t.Index, WeiDecimals: t.WeiDecimals}
		if t.EVMContract != nil {
			tm.HasEVMContract = true
			tm.EVMExtraWeiDecimals = t.EVMContract.EVMExtraDecimals
		}
		out = append(out, tm)
	}
	return out, nil
}
