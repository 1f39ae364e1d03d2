package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsMiddleware_CountsResponseBytesAndInflight(t *testing.T) {
	before := testutil.ToFloat64(httpResponseBytes.WithLabelValues("/bytes"))
	var during float64
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = testutil.ToFloat64(httpInflight)
		_, _ = w.Write([]byte("0123456789"))
	})
	base := testutil.ToFloat64(httpInflight)
	MetricsMiddleware(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bytes", nil))

	if got := testutil.ToFloat64(httpResponseBytes.WithLabelValues("/bytes")); got != before+10 {
		t.Fatalf("expected %v response bytes, got %v", before+10, got)
	}
	if during < base+1 {
		t.Fatalf("inflight gauge not raised during request: base=%v during=%v", base, during)
	}
	if after := testutil.ToFloat64(httpInflight); after != base {
		t.Fatalf("inflight gauge not restored: base=%v after=%v", base, after)
	}
}
