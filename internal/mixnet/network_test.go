package mixnet_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"privmsg/internal/mixnet"
)

var testNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func definitionJSON(t *testing.T, mutate func(m map[string]any)) []byte {
	t.Helper()
	m := map[string]any{
		"version":      3,
		"network":      "testnet",
		"generated_at": testNow.Add(-time.Hour).Format(time.RFC3339),
		"expires_at":   testNow.Add(time.Hour).Format(time.RFC3339),
		"gateways": []map[string]any{
			{"id": "gw1", "address": "10.0.0.1:30000"},
			{"id": "gw2", "address": "10.0.0.2:30000"},
		},
	}
	if mutate != nil {
		mutate(m)
	}
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	return raw
}

func TestParseNetworkDefinition_OK(t *testing.T) {
	def, err := mixnet.ParseNetworkDefinition(definitionJSON(t, nil), testNow)
	require.NoError(t, err)
	require.Equal(t, 3, def.Version)
	require.Equal(t, "testnet", def.Network)
	require.Len(t, def.Gateways, 2)
}

func TestParseNetworkDefinition_Rejects(t *testing.T) {
	cases := []struct {
		name string
		raw  []byte
		code mixnet.DefinitionCode
	}{
		{"unknown field", definitionJSON(t, func(m map[string]any) { m["extra"] = true }), mixnet.DefinitionSchemaInvalid},
		{"no gateways", definitionJSON(t, func(m map[string]any) { m["gateways"] = []any{} }), mixnet.DefinitionSchemaInvalid},
		{"bad version", definitionJSON(t, func(m map[string]any) { m["version"] = 0 }), mixnet.DefinitionSchemaInvalid},
		{"duplicate gateway", definitionJSON(t, func(m map[string]any) {
			m["gateways"] = []map[string]any{{"id": "a", "address": "x"}, {"id": "a", "address": "y"}}
		}), mixnet.DefinitionSchemaInvalid},
		{"expired", definitionJSON(t, func(m map[string]any) {
			m["expires_at"] = testNow.Add(-time.Minute).Format(time.RFC3339)
		}), mixnet.DefinitionExpired},
		{"trailing tokens", append(definitionJSON(t, nil), []byte(` {}`)...), mixnet.DefinitionSchemaInvalid},
		{"not json", []byte("<html>"), mixnet.DefinitionSchemaInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := mixnet.ParseNetworkDefinition(tc.raw, testNow)
			code, ok := mixnet.DefinitionCodeOf(err)
			require.True(t, ok, "want definition error, got %v", err)
			require.Equal(t, tc.code, code)
		})
	}
}

func TestFetchNetworkDefinition(t *testing.T) {
	raw := definitionJSON(t, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/mixnet.json" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(raw)
	}))
	defer srv.Close()

	def, err := mixnet.FetchNetworkDefinition(context.Background(), srv.Client(), srv.URL+"/.well-known/mixnet.json", testNow)
	require.NoError(t, err)
	require.Equal(t, "testnet", def.Network)

	_, err = mixnet.FetchNetworkDefinition(context.Background(), srv.Client(), srv.URL+"/missing", testNow)
	code, _ := mixnet.DefinitionCodeOf(err)
	require.Equal(t, mixnet.DefinitionFetchFailed, code)

	_, err = mixnet.FetchNetworkDefinition(context.Background(), nil, "ftp://example.org/x", testNow)
	code, _ = mixnet.DefinitionCodeOf(err)
	require.Equal(t, mixnet.DefinitionFetchFailed, code)
	require.True(t, strings.Contains(err.Error(), "invalid definition url"))
}
