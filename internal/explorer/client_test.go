package explorer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *Client {
	return NewClient(&Config{
		BaseURL: baseURL,
		APIKey:  "test-key",
		ChainID: "1",
		Timeout: 2 * time.Second,
	}, slog.New(slog.DiscardHandler))
}

func TestFetchSource(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		statusCode  int
		want        string
		wantErr     bool
		notVerified bool
	}{
		{
			name:       "verified contract",
			body:       `{"status":"1","message":"OK","result":[{"SourceCode":"pragma solidity ^0.8.0; contract A {}","ContractName":"A"}]}`,
			statusCode: http.StatusOK,
			want:       "pragma solidity ^0.8.0; contract A {}",
		},
		{
			name:       "double-brace wrapped standard json is unwrapped",
			body:       `{"status":"1","message":"OK","result":[{"SourceCode":"{{\"language\":\"Solidity\"}}","ContractName":"B"}]}`,
			statusCode: http.StatusOK,
			want:       `{"language":"Solidity"}`,
		},
		{
			name:        "status zero means not verified",
			body:        `{"status":"0","message":"NOTOK","result":[]}`,
			statusCode:  http.StatusOK,
			wantErr:     true,
			notVerified: true,
		},
		{
			name:        "empty source code means not verified",
			body:        `{"status":"1","message":"OK","result":[{"SourceCode":"","ContractName":""}]}`,
			statusCode:  http.StatusOK,
			wantErr:     true,
			notVerified: true,
		},
		{
			name:       "non-200 response is a lookup failure",
			body:       `rate limited`,
			statusCode: http.StatusTooManyRequests,
			wantErr:    true,
		},
		{
			name:       "malformed json is a lookup failure",
			body:       `{nope`,
			statusCode: http.StatusOK,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api", r.URL.Path)
				assert.Equal(t, "contract", r.URL.Query().Get("module"))
				assert.Equal(t, "getsourcecode", r.URL.Query().Get("action"))
				assert.Equal(t, "1", r.URL.Query().Get("chainid"))
				w.WriteHeader(tt.statusCode)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			client := newTestClient(srv.URL)
			got, err := client.FetchSource(context.Background(), "0x1234567890abcdef1234567890abcdef12345678")

			if tt.wantErr {
				require.Error(t, err)
				if tt.notVerified {
					assert.ErrorIs(t, err, ErrContractNotVerified)
				} else {
					assert.NotErrorIs(t, err, ErrContractNotVerified)
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFetchSource_EmptyAddress(t *testing.T) {
	client := newTestClient("http://localhost:0")
	_, err := client.FetchSource(context.Background(), "   ")
	require.Error(t, err)
}

func TestUnwrapSource(t *testing.T) {
	assert.Equal(t, `{"a":1}`, unwrapSource(`{{"a":1}}`))
	assert.Equal(t, `contract A {}`, unwrapSource(`contract A {}`))
	assert.Equal(t, `{"a":1}`, unwrapSource(`{"a":1}`))
}
