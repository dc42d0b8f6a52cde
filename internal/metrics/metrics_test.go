package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestObserveOperation(t *testing.T) {
	Init()
	Init()

	before := counterValue(t, operationsTotal.WithLabelValues("create_distribution", ResultConflict))
	ObserveOperation("create_distribution", ResultConflict, 5*time.Millisecond)
	after := counterValue(t, operationsTotal.WithLabelValues("create_distribution", ResultConflict))

	if after-before != 1 {
		t.Fatalf("expected counter to grow by 1, got %v -> %v", before, after)
	}
}

func TestAddEnrichmentRowsIgnoresZero(t *testing.T) {
	Init()

	before := counterValue(t, enrichmentRows.WithLabelValues("matched"))
	AddEnrichmentRows("matched", 0)
	AddEnrichmentRows("matched", 3)
	after := counterValue(t, enrichmentRows.WithLabelValues("matched"))

	if after-before != 3 {
		t.Fatalf("expected +3, got %v", after-before)
	}
}
