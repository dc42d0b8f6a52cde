package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"customs-ledger/internal/domain"
	"customs-ledger/internal/matching"
	"customs-ledger/internal/repository/memory"
	"customs-ledger/internal/service"
	"customs-ledger/internal/transport/auth"
)

type testKeys struct {
	mu   sync.Mutex
	keys map[string][2]string
}

func (k *testKeys) Reserve(ctx context.Context, key, fingerprint string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if e, ok := k.keys[key]; ok {
		switch {
		case e[0] != fingerprint:
			return "", domain.ErrIdempotencyKeyReused
		case e[1] == "":
			return "", domain.ErrIdempotencyInFlight
		}
		return e[1], nil
	}
	k.keys[key] = [2]string{fingerprint, ""}
	return "", nil
}

func (k *testKeys) Bind(ctx context.Context, key, fingerprint, id string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[key] = [2]string{fingerprint, id}
	return nil
}

func (k *testKeys) Release(ctx context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.keys, key)
	return nil
}

type resetCounter struct{ removed int64 }

func (c *resetCounter) BroadcastLedgerReset(ctx context.Context, removed int64) error {
	c.removed = removed
	return nil
}

// headerAuth trusts X-User-ID / X-Admin so tests can pick the caller.
func headerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := auth.Identity{UserID: 1, Admin: r.Header.Get("X-Admin") == "1"}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

type testServer struct {
	*httptest.Server
	procedures *memory.Procedures
	resets     *resetCounter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ledger := memory.NewLedger()
	procs := memory.NewProcedures()
	procs.Put(domain.Procedure{ID: "p1", Reference: "IMP-2024/001", Fields: map[string]*string{"invoice_no": strPtr("INV-1")}})
	procs.Put(domain.Procedure{ID: "p2", Reference: "IMP-2024/002"})

	dict, err := matching.DefaultDictionary()
	if err != nil {
		t.Fatalf("dictionary: %v", err)
	}

	ledgerSvc := service.NewLedgerService(ledger, procs, &testKeys{keys: map[string][2]string{}}, "USD")
	reportSvc := service.NewReportService(ledger, procs, "USD")
	resets := &resetCounter{}

	h := NewHandler(
		ledgerSvc,
		service.NewEnrichmentService(procs, dict),
		reportSvc,
		service.NewReportExportService(reportSvc, nil, nil, nil, ""),
		service.NewExportService(nil),
		resets,
		Options{MaxUploadBytes: 1 << 20},
	)
	srv := httptest.NewServer(h.InitRouterWithAuth(headerAuth))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, procedures: procs, resets: resets}
}

func strPtr(s string) *string { return &s }

func (s *testServer) do(t *testing.T, method, path, body string, headers ...string) (*http.Response, APIResponse, json.RawMessage) {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return s.send(t, req)
}

func (s *testServer) send(t *testing.T, req *http.Request) (*http.Response, APIResponse, json.RawMessage) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var envelope struct {
		APIResponse
		Data json.RawMessage `json:"data"`
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp, envelope.APIResponse, envelope.Data
}

func (s *testServer) createPayment(t *testing.T, ref, total string) string {
	t.Helper()
	resp, _, data := s.do(t, http.MethodPost, "/incoming-payments", `{"paymentId":"`+ref+`","payerInfo":"ACME","totalAmount":`+total+`}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create payment: status %d", resp.StatusCode)
	}
	var p domain.IncomingPayment
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("decode payment: %v", err)
	}
	return p.ID
}

func distributionBody(paymentID, ref, amount string) string {
	return `{"incomingPaymentId":"` + paymentID + `","procedureReference":"` + ref + `","distributedAmount":"` + amount + `","paymentType":"advance"}`
}

func TestDistributionLifecycle(t *testing.T) {
	s := newTestServer(t)
	paymentID := s.createPayment(t, "PAY-1", "1000")

	resp, _, data := s.do(t, http.MethodPost, "/payment-distributions", distributionBody(paymentID, "IMP-2024/001", "700"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var first service.DistributionResult
	if err := json.Unmarshal(data, &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Distribution.CreatedBy != "1" {
		t.Fatalf("expected createdBy from identity, got %q", first.Distribution.CreatedBy)
	}

	resp, body, _ := s.do(t, http.MethodPost, "/payment-distributions", distributionBody(paymentID, "IMP-2024/002", "400"))
	if resp.StatusCode != http.StatusConflict || body.ErrorCode != 409 || body.Status != "error" {
		t.Fatalf("expected 409 over-allocation, got %d %+v", resp.StatusCode, body)
	}

	resp, _, data = s.do(t, http.MethodPost, "/payment-distributions", distributionBody(paymentID, "IMP-2024/002", "300"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var second service.DistributionResult
	_ = json.Unmarshal(data, &second)
	if second.Payment.DistributionStatus != domain.StatusFullyDistributed || !second.Payment.RemainingBalance.IsZero() {
		t.Fatalf("expected fully distributed, got %+v", second.Payment)
	}

	resp, _, data = s.do(t, http.MethodGet, "/payment-distributions/payment/"+paymentID, "")
	var byPayment struct {
		Distributions []domain.PaymentDistribution `json:"distributions"`
	}
	_ = json.Unmarshal(data, &byPayment)
	if resp.StatusCode != http.StatusOK || len(byPayment.Distributions) != 2 {
		t.Fatalf("expected 2 rows by payment, got %d %d", resp.StatusCode, len(byPayment.Distributions))
	}

	resp, _, data = s.do(t, http.MethodGet, "/payment-distributions/procedure/IMP-2024%2F001", "")
	var byProcedure struct {
		Distributions []domain.DistributionView `json:"distributions"`
	}
	_ = json.Unmarshal(data, &byProcedure)
	if resp.StatusCode != http.StatusOK || len(byProcedure.Distributions) != 1 {
		t.Fatalf("expected 1 row by procedure, got %d %d", resp.StatusCode, len(byProcedure.Distributions))
	}
	if byProcedure.Distributions[0].Payment == nil {
		t.Fatalf("procedure view must carry the payment header")
	}

	resp, _, _ = s.do(t, http.MethodDelete, "/incoming-payments/"+paymentID, "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 deleting a payment with distributions, got %d", resp.StatusCode)
	}

	resp, _, _ = s.do(t, http.MethodDelete, "/payment-distributions/"+first.Distribution.ID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", resp.StatusCode)
	}
	resp, _, _ = s.do(t, http.MethodDelete, "/payment-distributions/"+first.Distribution.ID, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", resp.StatusCode)
	}
}

func TestListDistributionsByProcedure_PercentInReference(t *testing.T) {
	s := newTestServer(t)
	s.procedures.Put(domain.Procedure{ID: "p-pct", Reference: "DISC%41"})
	s.procedures.Put(domain.Procedure{ID: "p-plain", Reference: "DISCA"})
	s.procedures.Put(domain.Procedure{ID: "p-off", Reference: "50%OFF/2024"})
	paymentID := s.createPayment(t, "PAY-1", "100")

	for _, d := range [][2]string{{"DISC%41", "10"}, {"DISCA", "20"}, {"50%OFF/2024", "5"}} {
		resp, _, _ := s.do(t, http.MethodPost, "/payment-distributions", distributionBody(paymentID, d[0], d[1]))
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("distribute to %s: status %d", d[0], resp.StatusCode)
		}
	}

	cases := map[string]string{
		"DISC%2541":       "DISC%41",
		"DISCA":           "DISCA",
		"50%25OFF%2F2024": "50%OFF/2024",
	}
	for path, want := range cases {
		resp, _, data := s.do(t, http.MethodGet, "/payment-distributions/procedure/"+path, "")
		var got struct {
			Distributions []domain.DistributionView `json:"distributions"`
		}
		_ = json.Unmarshal(data, &got)
		if resp.StatusCode != http.StatusOK || len(got.Distributions) != 1 {
			t.Fatalf("%s: expected 1 row, got %d %d", path, resp.StatusCode, len(got.Distributions))
		}
		if ref := got.Distributions[0].ProcedureReference; ref != want {
			t.Fatalf("%s: expected reference %q, got %q", path, want, ref)
		}
	}

	resp, _, _ := s.do(t, http.MethodGet, "/payment-distributions/procedure/50%25OFF", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for an unknown reference with %%, got %d", resp.StatusCode)
	}
}

func TestCreateDistribution_RejectsBadInput(t *testing.T) {
	s := newTestServer(t)
	paymentID := s.createPayment(t, "PAY-1", "100")

	cases := []string{
		`{not json`,
		distributionBody(paymentID, "IMP-2024/001", "abc"),
		distributionBody(paymentID, "IMP-2024/001", "0"),
		`{"incomingPaymentId":"` + paymentID + `","procedureReference":"IMP-2024/001","distributedAmount":5,"paymentType":"refund"}`,
	}
	for _, body := range cases {
		resp, env, _ := s.do(t, http.MethodPost, "/payment-distributions", body)
		if resp.StatusCode != http.StatusBadRequest || env.ErrorCode != 400 {
			t.Fatalf("%s: expected 400, got %d", body, resp.StatusCode)
		}
	}

	resp, _, _ := s.do(t, http.MethodPost, "/payment-distributions", distributionBody(paymentID, "IMP-UNKNOWN", "5"))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown procedure, got %d", resp.StatusCode)
	}
}

func TestCreateDistribution_IdempotencyKeyReplays(t *testing.T) {
	s := newTestServer(t)
	paymentID := s.createPayment(t, "PAY-1", "100")
	body := distributionBody(paymentID, "IMP-2024/001", "60")

	resp, _, _ := s.do(t, http.MethodPost, "/payment-distributions", body, "Idempotency-Key", "abc")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	resp, _, _ = s.do(t, http.MethodPost, "/payment-distributions", body, "Idempotency-Key", "abc")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replay, got %d", resp.StatusCode)
	}
	resp, _, _ = s.do(t, http.MethodPost, "/payment-distributions", distributionBody(paymentID, "IMP-2024/002", "60"), "Idempotency-Key", "abc")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for a reused key with another body, got %d", resp.StatusCode)
	}

	_, _, data := s.do(t, http.MethodGet, "/incoming-payments/"+paymentID, "")
	var p domain.IncomingPayment
	_ = json.Unmarshal(data, &p)
	if p.RemainingBalance.String() != "40" {
		t.Fatalf("expected remaining 40 after replay, got %s", p.RemainingBalance)
	}
}

func TestResetRequiresAdmin(t *testing.T) {
	s := newTestServer(t)
	paymentID := s.createPayment(t, "PAY-1", "100")
	s.do(t, http.MethodPost, "/payment-distributions", distributionBody(paymentID, "IMP-2024/001", "10"))
	s.do(t, http.MethodPost, "/payment-distributions", distributionBody(paymentID, "IMP-2024/002", "20"))

	resp, _, _ := s.do(t, http.MethodDelete, "/all-payment-distributions/reset", "")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", resp.StatusCode)
	}

	resp, _, data := s.do(t, http.MethodDelete, "/all-payment-distributions/reset", "", "X-Admin", "1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var res service.ResetResult
	_ = json.Unmarshal(data, &res)
	if res.DistributionsRemoved != 2 || s.resets.removed != 2 {
		t.Fatalf("expected 2 removed, got %+v (notified %d)", res, s.resets.removed)
	}

	_, _, data = s.do(t, http.MethodGet, "/incoming-payments?status=pending_distribution", "")
	var list struct {
		Payments []domain.IncomingPayment `json:"payments"`
	}
	_ = json.Unmarshal(data, &list)
	if len(list.Payments) != 1 {
		t.Fatalf("expected the payment back in pending, got %d", len(list.Payments))
	}
}

func TestEnrichmentPreviewAndApply(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "shipments.csv")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = part.Write([]byte("Fatura No,Renk,Gönderici\nINV-1,RED,Acme\nINV-404,RED,Nobody\n"))
	_ = mw.Close()

	req, _ := http.NewRequest(http.MethodPost, s.URL+"/enrichment/preview", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, _, data := s.send(t, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var preview domain.ReconciliationPreview
	if err := json.Unmarshal(data, &preview); err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if len(preview.Matches) != 1 || preview.Matches[0].ProcedureID != "p1" || preview.Stats.Unmatched != 1 {
		t.Fatalf("unexpected preview %+v", preview)
	}

	updates := map[string]any{"updates": []domain.ProcedureUpdate{{
		ProcedureID: "p1",
		Changes:     []domain.FieldValue{{Field: "shipper", NewValue: "Acme"}},
	}}}
	raw, _ := json.Marshal(updates)
	resp, _, data = s.do(t, http.MethodPost, "/enrichment/apply", string(raw))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var applied struct {
		Results []domain.ApplyResult `json:"results"`
	}
	_ = json.Unmarshal(data, &applied)
	if len(applied.Results) != 1 || applied.Results[0].Status != domain.ApplyUpdated {
		t.Fatalf("unexpected apply results %+v", applied.Results)
	}

	resp, _, _ = s.do(t, http.MethodPost, "/enrichment/apply", `{"updates":[]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty updates, got %d", resp.StatusCode)
	}
}

func TestGenerateReport(t *testing.T) {
	s := newTestServer(t)
	paymentID := s.createPayment(t, "PAY-1", "100")
	s.do(t, http.MethodPost, "/payment-distributions", distributionBody(paymentID, "IMP-2024/001", "25"))

	resp, err := http.Get(s.URL + "/payment-report/generate")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Fatalf("expected html report, got %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	resp, err = http.Get(s.URL + "/payment-report/generate?format=pdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("Content-Type") != "application/pdf" {
		t.Fatalf("expected pdf, got %q", resp.Header.Get("Content-Type"))
	}

	r, env, _ := s.do(t, http.MethodGet, "/payment-report/generate?format=docx", "")
	if r.StatusCode != http.StatusBadRequest || env.ErrorCode != 400 {
		t.Fatalf("expected 400 for unknown format, got %d", r.StatusCode)
	}
}
