package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/ledgerbank/internal/analytics"
	"github.com/punchamoorthee/ledgerbank/internal/auth"
	"github.com/punchamoorthee/ledgerbank/internal/domain"
	"github.com/punchamoorthee/ledgerbank/internal/notify"
	"github.com/punchamoorthee/ledgerbank/internal/service"
	"github.com/punchamoorthee/ledgerbank/internal/store"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type testServer struct {
	t        *testing.T
	srv      *httptest.Server
	store    store.Store
	verifier *auth.Verifier
	notes    *notify.Dispatcher
}

func newTestServer(t *testing.T, s store.Store) *testServer {
	t.Helper()
	notes := notify.NewDispatcher(s, s, 1, 16, quiet)
	notes.Start()
	ledger := service.NewLedger(s, service.WithNotifier(notes), service.WithLogger(quiet))
	v := auth.NewVerifier("test-secret")
	h := NewHandler(ledger, analytics.NewAggregator(s, nil), notify.NewInbox(s), v, quiet)
	ts := &testServer{t: t, srv: httptest.NewServer(h.Router()), store: s, verifier: v, notes: notes}
	t.Cleanup(func() {
		ts.srv.Close()
		notes.Close()
	})
	return ts
}

func (ts *testServer) token(user uuid.UUID) string {
	ts.t.Helper()
	tok, err := ts.verifier.IssueToken(user, time.Hour)
	if err != nil {
		ts.t.Fatal(err)
	}
	return tok
}

func (ts *testServer) do(method, path, token string, body any) *http.Response {
	ts.t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			ts.t.Fatal(err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rdr)
	if err != nil {
		ts.t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		ts.t.Fatal(err)
	}
	ts.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func expectError(t *testing.T, resp *http.Response, status int, kind string) errorBody {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("status=%d want=%d", resp.StatusCode, status)
	}
	var body errorBody
	decode(t, resp, &body)
	if body.Kind != kind {
		t.Fatalf("kind=%q want=%q (error %q)", body.Kind, kind, body.Error)
	}
	return body
}

func (ts *testServer) openAccount(token string, opening string) domain.Account {
	ts.t.Helper()
	resp := ts.do(http.MethodPost, "/api/v1/accounts", token, map[string]any{
		"name":           "Main",
		"openingBalance": json.Number(opening),
	})
	if resp.StatusCode != http.StatusCreated {
		ts.t.Fatalf("create account status=%d", resp.StatusCode)
	}
	var a domain.Account
	decode(ts.t, resp, &a)
	if got := resp.Header.Get("Location"); got != "/api/v1/accounts/"+a.ID.String() {
		ts.t.Fatalf("location=%q", got)
	}
	return a
}

func TestHealthAndAuth(t *testing.T) {
	ts := newTestServer(t, store.NewMemory())

	resp := ts.do(http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status=%d", resp.StatusCode)
	}

	expectError(t, ts.do(http.MethodGet, "/api/v1/accounts", "", nil), http.StatusUnauthorized, "unauthenticated")
	expectError(t, ts.do(http.MethodGet, "/api/v1/accounts", "garbage", nil), http.StatusUnauthorized, "unauthenticated")
}

func TestTransferFlow(t *testing.T) {
	ts := newTestServer(t, store.NewMemory())
	alice, bob := uuid.New(), uuid.New()
	aliceTok, bobTok := ts.token(alice), ts.token(bob)
	src := ts.openAccount(aliceTok, "100.00")
	dst := ts.openAccount(bobTok, "0")

	resp := ts.do(http.MethodPost, "/api/v1/transfers", aliceTok, map[string]any{
		"sourceAccountId":      src.ID,
		"destinationAccountId": dst.ID,
		"amount":               json.Number("25.50"),
		"description":          "Dinner",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("transfer status=%d", resp.StatusCode)
	}
	var result map[string]any
	decode(t, resp, &result)
	if result["status"] != "completed" || result["amount"] != 25.5 {
		t.Fatalf("result=%v", result)
	}
	if ref, _ := result["transactionReference"].(string); !strings.HasPrefix(ref, "TXN") {
		t.Fatalf("reference=%v", result["transactionReference"])
	}

	resp = ts.do(http.MethodGet, "/api/v1/accounts/"+src.ID.String(), aliceTok, nil)
	var after domain.Account
	decode(t, resp, &after)
	if after.Balance.String() != "74.5" {
		t.Fatalf("source balance=%s want=74.5", after.Balance)
	}

	// The destination is not visible to its non-owner.
	expectError(t, ts.do(http.MethodGet, "/api/v1/accounts/"+dst.ID.String(), aliceTok, nil), http.StatusNotFound, "not_found")

	resp = ts.do(http.MethodGet, "/api/v1/transactions?limit=500", aliceTok, nil)
	var page struct {
		Transactions []domain.Transaction `json:"transactions"`
		Limit        int                  `json:"limit"`
	}
	decode(t, resp, &page)
	if len(page.Transactions) != 1 || page.Transactions[0].Type != domain.TxTransferOut || page.Limit != service.MaxPageSize {
		t.Fatalf("page=%+v", page)
	}
}

func TestTransferErrors(t *testing.T) {
	ts := newTestServer(t, store.NewMemory())
	alice := uuid.New()
	tok := ts.token(alice)
	src := ts.openAccount(tok, "10")
	other := ts.openAccount(ts.token(uuid.New()), "0")

	transfer := func(dst uuid.UUID, amount string) *http.Response {
		return ts.do(http.MethodPost, "/api/v1/transfers", tok, map[string]any{
			"sourceAccountId":      src.ID,
			"destinationAccountId": dst,
			"amount":               json.Number(amount),
		})
	}

	body := expectError(t, transfer(src.ID, "1"), http.StatusBadRequest, "validation_error")
	if body.Error != domain.ErrSameAccount.Message {
		t.Fatalf("message=%q", body.Error)
	}
	expectError(t, transfer(other.ID, "0"), http.StatusBadRequest, "validation_error")
	expectError(t, transfer(other.ID, "10.01"), http.StatusBadRequest, "business_rule_violation")
	expectError(t, transfer(uuid.New(), "1"), http.StatusNotFound, "not_found")

	resp := ts.do(http.MethodPost, "/api/v1/transfers", tok, map[string]any{"amount": 1, "surprise": true})
	expectError(t, resp, http.StatusBadRequest, "validation_error")
}

func TestStatementAndAnalytics(t *testing.T) {
	ts := newTestServer(t, store.NewMemory())
	user := uuid.New()
	tok := ts.token(user)
	a := ts.openAccount(tok, "0")

	for _, entry := range []map[string]any{
		{"accountId": a.ID, "type": "salary", "amount": json.Number("500"), "category": "Payroll"},
		{"accountId": a.ID, "type": "card_payment", "amount": json.Number("20"), "category": "Food"},
	} {
		if resp := ts.do(http.MethodPost, "/api/v1/transactions", tok, entry); resp.StatusCode != http.StatusCreated {
			t.Fatalf("record status=%d", resp.StatusCode)
		}
	}

	resp := ts.do(http.MethodGet, "/api/v1/accounts/"+a.ID.String()+"/statement.csv", tok, nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "text/csv" {
		t.Fatalf("statement status=%d type=%q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Disposition"), `attachment; filename="statement-`) {
		t.Fatalf("disposition=%q", resp.Header.Get("Content-Disposition"))
	}
	csvBody, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(csvBody), "Total Credits,500.00") || !strings.Contains(string(csvBody), "Total Debits,20.00") {
		t.Fatalf("statement:\n%s", csvBody)
	}

	resp = ts.do(http.MethodGet, "/api/v1/analytics/summary?period=month", tok, nil)
	var summary map[string]any
	decode(t, resp, &summary)
	if summary["totalSpent"] != 20.0 || summary["totalIncome"] != 500.0 || summary["topCategory"] != "Food" {
		t.Fatalf("summary=%v", summary)
	}

	expectError(t, ts.do(http.MethodGet, "/api/v1/analytics/summary?period=decade", tok, nil), http.StatusBadRequest, "validation_error")

	resp = ts.do(http.MethodGet, "/api/v1/analytics/timeseries?period=week", tok, nil)
	var series analytics.Series
	decode(t, resp, &series)
	if len(series.Points) != 8 {
		t.Fatalf("points=%d want=8", len(series.Points))
	}
}

func TestNotificationsFlow(t *testing.T) {
	ts := newTestServer(t, store.NewMemory())
	alice, bob := uuid.New(), uuid.New()
	aliceTok, bobTok := ts.token(alice), ts.token(bob)
	src := ts.openAccount(aliceTok, "50")
	dst := ts.openAccount(bobTok, "0")

	resp := ts.do(http.MethodPost, "/api/v1/transfers", aliceTok, map[string]any{
		"sourceAccountId":      src.ID,
		"destinationAccountId": dst.ID,
		"amount":               json.Number("5"),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("transfer status=%d", resp.StatusCode)
	}
	// Flush the queue so the notifications are visible.
	ts.notes.Close()

	resp = ts.do(http.MethodGet, "/api/v1/notifications", bobTok, nil)
	var list []domain.Notification
	decode(t, resp, &list)
	if len(list) != 1 || list[0].Type != notify.TypeTransferReceived {
		t.Fatalf("bob notifications=%+v", list)
	}

	path := "/api/v1/notifications/" + list[0].ID.String()
	expectError(t, ts.do(http.MethodPatch, path, aliceTok, map[string]string{"status": "read"}), http.StatusNotFound, "not_found")
	if resp := ts.do(http.MethodPatch, path, bobTok, map[string]string{"status": "read"}); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("mark status=%d", resp.StatusCode)
	}

	resp = ts.do(http.MethodPost, "/api/v1/notifications/read-all", aliceTok, nil)
	var updated map[string]int64
	decode(t, resp, &updated)
	if updated["updated"] != 1 {
		t.Fatalf("updated=%v", updated)
	}

	if resp := ts.do(http.MethodDelete, path, bobTok, nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status=%d", resp.StatusCode)
	}
	expectError(t, ts.do(http.MethodDelete, path, bobTok, nil), http.StatusNotFound, "not_found")
}

type brokenStore struct {
	*store.Memory
}

func (brokenStore) ListAccountsForUser(context.Context, uuid.UUID, domain.AccountStatus) ([]domain.Account, error) {
	return nil, errors.New("pq: relation \"accounts\" does not exist")
}

func TestStoreFailureIsNotLeaked(t *testing.T) {
	ts := newTestServer(t, brokenStore{store.NewMemory()})
	resp := ts.do(http.MethodGet, "/api/v1/accounts", ts.token(uuid.New()), nil)
	body := expectError(t, resp, http.StatusInternalServerError, "unknown")
	if body.Error != "internal server error" {
		t.Fatalf("error=%q", body.Error)
	}
}
