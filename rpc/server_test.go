package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"stakepool/core"
	"stakepool/core/events"
	"stakepool/core/genesis"
	"stakepool/crypto"
	"stakepool/rpc/middleware"
	"stakepool/storage"
	"stakepool/storage/receipts"
)

const testSecret = "rpc-test-secret-0123456789"

var genesisTime = time.Unix(1_700_000_000, 0).UTC()

type testEnv struct {
	t      *testing.T
	server *httptest.Server
	node   *core.Node
	mu     sync.Mutex
	now    time.Time
	owner  crypto.Address
	mod    crypto.Address
	alice  crypto.Address
}

func account(b byte) crypto.Address {
	return crypto.MustNewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{b}, 20))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{t: t, now: genesisTime, owner: account(0x01), mod: account(0x02), alice: account(0x0a)}

	node, err := core.NewNode(storage.NewMemDB())
	require.NoError(t, err)
	node.SetNowFunc(func() time.Time {
		env.mu.Lock()
		defer env.mu.Unlock()
		return env.now
	})
	store, err := receipts.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	node.SetReceipts(store)

	spec, err := genesis.ParseSpec([]byte(fmt.Sprintf(`
tokens:
  - {symbol: ST, name: Staking Token, decimals: 12, issuer: %[1]s}
  - {symbol: RT, name: RewardToken, decimals: 18, issuer: %[1]s}
pool:
  owner: %[1]s
  stakingToken: ST
  rewardToken: RT
  startTime: "%[4]d"
  endTime: "%[5]d"
moderators: [%[2]s]
alloc:
  %[2]s: {RT: "1000"}
  %[3]s: {ST: "1000"}
`, env.owner, env.mod, env.alice, genesisTime.Add(24*time.Hour).Unix(), genesisTime.Add(48*time.Hour).Unix())))
	require.NoError(t, err)
	_, err = node.Bootstrap(context.Background(), spec)
	require.NoError(t, err)
	env.node = node

	srv := NewServer(node, store, ServerConfig{
		Auth: middleware.AuthConfig{HMACSecret: testSecret, Issuer: "stakectl", Audience: "stakepool"},
	}, nil)
	env.server = httptest.NewServer(srv.Handler())
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) setNow(ts time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = ts
}

func (e *testEnv) token(who crypto.Address) string {
	tok, err := middleware.IssueToken(testSecret, who.String(), "stakectl", "stakepool", time.Hour, time.Now())
	require.NoError(e.t, err)
	return tok
}

func (e *testEnv) do(method, path string, who *crypto.Address, body interface{}) (int, map[string]interface{}) {
	e.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(e.t, err)
	if who != nil {
		req.Header.Set("Authorization", "Bearer "+e.token(*who))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()
	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func errorKind(t *testing.T, payload map[string]interface{}) (string, string) {
	t.Helper()
	body, ok := payload["error"].(map[string]interface{})
	require.True(t, ok, "expected error body, got %v", payload)
	return body["kind"].(string), body["message"].(string)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMutationsRequireToken(t *testing.T) {
	env := newTestEnv(t)
	status, _ := env.do(http.MethodPost, "/v1/pool/deposite", nil, amountParams{Amount: "10"})
	require.Equal(t, http.StatusUnauthorized, status)

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/v1/pool/deposite", strings.NewReader(`{"amount":"10"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPoolFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	vault := encodeAccount(env.node.Vault())

	status, _ := env.do(http.MethodPost, "/v1/tokens/st/approve", &env.alice, approveParams{Spender: vault, Amount: "100"})
	require.Equal(t, http.StatusOK, status)
	status, _ = env.do(http.MethodPost, "/v1/tokens/RT/approve", &env.mod, approveParams{Spender: vault, Amount: "50"})
	require.Equal(t, http.StatusOK, status)

	status, body := env.do(http.MethodPost, "/v1/pool/deposite", &env.alice, amountParams{Amount: "100"})
	require.Equal(t, http.StatusConflict, status)
	kind, message := errorKind(t, body)
	require.Equal(t, core.KindWindow, kind)
	require.Equal(t, "you should wait until startTime", message)

	env.setNow(genesisTime.Add(25 * time.Hour))
	status, body = env.do(http.MethodPost, "/v1/pool/deposite", &env.alice, amountParams{Amount: "0"})
	require.Equal(t, http.StatusBadRequest, status)
	_, message = errorKind(t, body)
	require.Equal(t, "you should deposite more than 0 token", message)

	status, _ = env.do(http.MethodPost, "/v1/pool/deposite", &env.alice, amountParams{Amount: "100"})
	require.Equal(t, http.StatusOK, status)

	status, body = env.do(http.MethodPost, "/v1/pool/rewards", &env.alice, amountParams{Amount: "50"})
	require.Equal(t, http.StatusForbidden, status)
	kind, _ = errorKind(t, body)
	require.Equal(t, core.KindAuthorization, kind)

	status, _ = env.do(http.MethodPost, "/v1/pool/rewards", &env.mod, amountParams{Amount: "50"})
	require.Equal(t, http.StatusOK, status)

	status, body = env.do(http.MethodGet, "/v1/pool/pending/"+env.alice.String(), nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "50", body["pending"])

	status, body = env.do(http.MethodGet, "/v1/pool", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "100", body["totalStaked"])
	require.Equal(t, "50", body["totalReward"])
	require.Equal(t, env.owner.String(), body["owner"])

	status, body = env.do(http.MethodGet, "/v1/pool/window", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "open-for-deposit", body["phase"])

	env.setNow(genesisTime.Add(49 * time.Hour))
	status, body = env.do(http.MethodPost, "/v1/pool/withdraw", &env.alice, amountParams{Amount: "101"})
	require.Equal(t, http.StatusBadRequest, status)
	_, message = errorKind(t, body)
	require.Equal(t, "you can not withdraw your requirement", message)

	status, body = env.do(http.MethodPost, "/v1/pool/withdraw", &env.alice, amountParams{Amount: "100"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "100", body["principal"])
	require.Equal(t, "50", body["reward"])

	status, body = env.do(http.MethodGet, "/v1/tokens/RT/balances/"+env.alice.String(), nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "50", body["balance"])
}

func TestTransferFailureMapsTo422(t *testing.T) {
	env := newTestEnv(t)
	env.setNow(genesisTime.Add(25 * time.Hour))
	status, body := env.do(http.MethodPost, "/v1/pool/deposite", &env.alice, amountParams{Amount: "10"})
	require.Equal(t, http.StatusUnprocessableEntity, status)
	kind, _ := errorKind(t, body)
	require.Equal(t, core.KindTransfer, kind)
}

func TestModeratorManagementOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	payload := accountsParams{Accounts: []string{env.alice.String()}}

	status, _ := env.do(http.MethodPost, "/v1/pool/moderators", &env.mod, payload)
	require.Equal(t, http.StatusForbidden, status)
	status, _ = env.do(http.MethodPost, "/v1/pool/moderators", &env.owner, payload)
	require.Equal(t, http.StatusOK, status)
	status, _ = env.do(http.MethodDelete, "/v1/pool/moderators", &env.owner, accountsParams{Accounts: []string{env.mod.String()}})
	require.Equal(t, http.StatusOK, status)

	status, body := env.do(http.MethodGet, "/v1/pool", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, []interface{}{env.alice.String()}, body["moderators"])

	status, _ = env.do(http.MethodPost, "/v1/pool/moderators", &env.owner, accountsParams{Accounts: []string{"garbage"}})
	require.Equal(t, http.StatusBadRequest, status)
}

func TestReceiptsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodPost, "/v1/pool/deposite", &env.alice, amountParams{Amount: "5"})

	resp, err := http.Get(env.server.URL + "/v1/receipts?operation=deposit")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rows []receiptResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	require.Len(t, rows, 1)
	require.Equal(t, string(receipts.OutcomeReverted), rows[0].Outcome)
	require.Equal(t, core.KindWindow, rows[0].ErrorKind)
	require.Equal(t, env.alice.String(), rows[0].Caller)

	bad, err := http.Get(env.server.URL + "/v1/receipts?since=yesterday")
	require.NoError(t, err)
	bad.Body.Close()
	require.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/v1/events/ws?types=" + events.TypeApproval
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The subscription is registered after the upgrade; retry until it lands.
	vault := encodeAccount(env.node.Vault())
	received := make(chan eventPayload, 1)
	go func() {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var evt eventPayload
		if json.Unmarshal(data, &evt) == nil {
			received <- evt
		}
	}()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		status, _ := env.do(http.MethodPost, "/v1/tokens/ST/approve", &env.alice, approveParams{Spender: vault, Amount: "1"})
		require.Equal(t, http.StatusOK, status)
		select {
		case evt := <-received:
			require.Equal(t, events.TypeApproval, evt.Type)
			return
		case <-ctx.Done():
			t.Fatal("no event received")
		case <-ticker.C:
		}
	}
}
