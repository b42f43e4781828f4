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

package metadataclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchTokensDecodesNativeAndContractEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tokens": [
			{"name": "CORE", "index": 0, "weiDecimals": 8},
			{"name": "USDT", "index": 1, "weiDecimals": 6, "evmContract": {"address": "0x4444444444444444444444444444444444444444", "evm_extra_wei_decimals": 12}}
		]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	tokens, err := c.FetchTokens(context.Background())
	if err != nil {
		t.Fatalf("FetchTokens: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("got %d tokens, want 2", len(tokens))
	}
	if tokens[0].HasEVMContract {
		t.Fatal("CORE must not be reported as having an EVM contract")
	}
	if !tokens[1].HasEVMContract || tokens[1].EVMExtraWeiDecimals != 12 {
		t.Fatalf("USDT contract decimals wrong: %+v", tokens[1])
	}
}

func TestFetchTokensNonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.FetchTokens(context.Background()); err == nil {
		t.Fatal("expected a non-200 response to return an error")
	}
}
