package documents

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

	"github.com/odyssey-erp/docledger/internal/platform/httpx"
	"github.com/odyssey-erp/docledger/internal/shared"
)

type recordingNotifier struct {
	calls []Status
}

func (n *recordingNotifier) NotifyDocument(_ context.Context, _ int64, _ int64, status Status) error {
	n.calls = append(n.calls, status)
	return nil
}

func newTestRouter(t *testing.T, notifier Notifier) http.Handler {
	t.Helper()
	svc := newTestService(newMemoryRepo(), nil)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, notifier)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithCompany(req.Context(), 1)))
		})
	})
	r.Route("/documents", h.MountRoutes)
	return r
}

func doRequest(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreateAndTransition(t *testing.T) {
	notifier := &recordingNotifier{}
	router := newTestRouter(t, notifier)

	rec := doRequest(router, http.MethodPost, "/documents", `{"type":"INVOICE","client_id":9,"lines":[{"description":"Audit","quantity":"2","unit_price":"50.00","tax_pct":"10"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "110.00", created.Total)
	require.Equal(t, "110.00", created.Outstanding)
	require.Equal(t, []Status{StatusSent, StatusCancelled}, created.Allowed)

	rec = doRequest(router, http.MethodPost, "/documents/1/transitions", `{"status":"SENT"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []Status{StatusSent}, notifier.calls)

	rec = doRequest(router, http.MethodGet, "/documents/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	require.Equal(t, StatusSent, fetched.Status)
	require.Len(t, fetched.Lines, 1)
}

func TestHandlerIllegalTransitionIsConflict(t *testing.T) {
	router := newTestRouter(t, nil)
	rec := doRequest(router, http.MethodPost, "/documents", `{"type":"QUOTE","lines":[{"description":"X","quantity":"1","unit_price":"1"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(router, http.MethodPost, "/documents/1/transitions", `{"status":"ACCEPTED"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "IllegalTransition", problem.Type)
}

func TestHandlerValidation(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := doRequest(router, http.MethodPost, "/documents", `{"type":"RECEIPT","lines":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Contains(t, problem.Fields, "Type")

	rec = doRequest(router, http.MethodGet, "/documents/abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(router, http.MethodGet, "/documents/99", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
