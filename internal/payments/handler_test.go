package payments

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/docledger/internal/documents"
	"github.com/odyssey-erp/docledger/internal/platform/httpx"
	"github.com/odyssey-erp/docledger/internal/shared"
)

type recordingNotifier struct {
	calls int
}

func (n *recordingNotifier) NotifyDocument(context.Context, int64, int64, documents.Status) error {
	n.calls++
	return nil
}

func newTestRouter(repo *memoryRepo, notifier documents.Notifier) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), newTestService(repo, nil), notifier)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithCompany(req.Context(), 1)))
		})
	})
	r.Route("/documents", h.MountRoutes)
	return r
}

func post(router http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerApplyPayment(t *testing.T) {
	repo := newMemoryRepo(sentInvoice("100.00"))
	notifier := &recordingNotifier{}
	router := newTestRouter(repo, notifier)
	key := map[string]string{"Idempotency-Key": "abc"}

	rec := post(router, "/documents/10/payments", `{"amount":"100.00","method":"TRANSFER"}`, key)
	require.Equal(t, http.StatusCreated, rec.Code)
	var body ResultResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, documents.StatusPaid, body.Document.Status)
	require.Equal(t, "0.00", body.Document.Outstanding)
	require.Equal(t, 1, notifier.calls)

	rec = post(router, "/documents/10/payments", `{"amount":"100.00","method":"TRANSFER"}`, key)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, notifier.calls)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents/10/payments", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []PaymentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
}

func TestHandlerPaymentErrors(t *testing.T) {
	router := newTestRouter(newMemoryRepo(sentInvoice("10.00")), nil)

	rec := post(router, "/documents/10/payments", `{"amount":"10.01"}`, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "ExceedsBalance", problem.Type)

	rec = post(router, "/documents/10/payments", `{"amount":"1","method":"BARTER"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(router, "/documents/10/processor-payments", `{"amount_cents":500,"reference":"ch_1"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
}
