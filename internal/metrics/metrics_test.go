package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHandlerExposesCounters(t *testing.T) {
	Deposits.WithLabelValues("COMPLETED").Inc()
	DuplicateReferences.Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`paydesk_deposit_transitions_total{status="COMPLETED"}`,
		"paydesk_duplicate_references_total",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("exposition missing %q", want)
		}
	}
}

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(Sweeps.WithLabelValues("ok"))
	Sweeps.WithLabelValues("ok").Inc()
	if got := testutil.ToFloat64(Sweeps.WithLabelValues("ok")); got != before+1 {
		t.Fatalf("sweeps = %v, want %v", got, before+1)
	}
}

func TestRegisterDeliveryFailuresRejectsDuplicate(t *testing.T) {
	read := func() float64 { return 3 }
	if err := RegisterDeliveryFailures(read); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := RegisterDeliveryFailures(read); err == nil {
		t.Fatal("duplicate registration accepted")
	}
}
