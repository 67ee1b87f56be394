package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rentescrow/core"
	"rentescrow/core/genesis"
	"rentescrow/crypto"
	"rentescrow/storage"
)

const testJWTEnvVar = "RPC_TEST_JWT_SECRET"
const testJWTSecret = "rpc-test-secret"

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

type testKey struct {
	key  *crypto.PrivateKey
	addr [20]byte
}

func newTestKey(t testing.TB) testKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return testKey{key: key, addr: key.PubKey().Address().Array()}
}

func newTestNode(t testing.TB, clock *testClock, funded ...testKey) *core.Node {
	t.Helper()
	spec := &genesis.GenesisSpec{GenesisTime: "2024-01-01T00:00:00Z", Alloc: map[string]string{}}
	for _, k := range funded {
		spec.Alloc[crypto.FormatAddress(k.addr)] = "1000"
	}
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	node, err := core.NewNode(db, core.NodeConfig{Genesis: spec, Clock: clock.Now})
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

func newTestServer(t testing.TB, node Ledger, events EventSource, cfg ServerConfig) *Server {
	t.Helper()
	if !cfg.JWT.Enable {
		t.Setenv(testJWTEnvVar, testJWTSecret)
		cfg.JWT = JWTConfig{
			Enable:      true,
			HSSecretEnv: testJWTEnvVar,
			Issuer:      "rpc-tests",
		}
	}
	srv, err := NewServer(node, events, cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv
}

func testToken(t testing.TB) string {
	t.Helper()
	token, err := IssueToken([]byte(testJWTSecret), "rpc-tests", "tester", time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func call(t testing.TB, srv *Server, token, method string, params ...interface{}) (*httptest.ResponseRecorder, RPCResponse) {
	t.Helper()
	raw := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		b, err := json.Marshal(p)
		if err != nil {
			t.Fatalf("marshal param: %v", err)
		}
		raw = append(raw, b)
	}
	body, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: method, Params: raw, ID: 1})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.RemoteAddr = "127.0.0.1:5000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	var resp RPCResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

func decodeResult(t testing.TB, resp RPCResponse, out interface{}) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected rpc error: %+v", resp.Error)
	}
	b, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}
