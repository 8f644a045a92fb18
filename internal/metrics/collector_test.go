package metrics

import (
	"math"
	"testing"
	"time"
)

func TestRecordAndGetTimeSeries(t *testing.T) {
	c := NewCollector()
	labels := map[string]string{"config": "config1"}

	base := time.Now()
	c.Record(MetricBatchMeanEnergy, -1.5, base, labels)
	c.Record(MetricBatchMeanEnergy, -2.5, base.Add(time.Second), labels)

	points := c.GetTimeSeries(MetricBatchMeanEnergy, labels)
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if points[0].Value != -1.5 || points[1].Value != -2.5 {
		t.Fatalf("unexpected values: %v, %v", points[0].Value, points[1].Value)
	}
	if points[0].Labels["config"] != "config1" {
		t.Fatalf("labels not preserved: %v", points[0].Labels)
	}
}

func TestTimeSeriesSeparatedByLabels(t *testing.T) {
	c := NewCollector()
	c.RecordNow(MetricBestEnergy, -3, map[string]string{"config": "config1"})
	c.RecordNow(MetricBestEnergy, -4, map[string]string{"config": "config2"})

	a := c.GetTimeSeries(MetricBestEnergy, map[string]string{"config": "config1"})
	b := c.GetTimeSeries(MetricBestEnergy, map[string]string{"config": "config2"})
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("label sets should be separate series: %d, %d", len(a), len(b))
	}
	if a[0].Value != -3 || b[0].Value != -4 {
		t.Fatalf("values crossed label sets")
	}
}

func TestGetAggregation(t *testing.T) {
	c := NewCollector()
	for _, v := range []float64{1, 2, 3, 4} {
		c.RecordNow("energy", v, nil)
	}

	agg := c.GetAggregation("energy", nil)
	if agg == nil {
		t.Fatalf("expected aggregation")
	}
	if agg.Count != 4 {
		t.Fatalf("count = %d, want 4", agg.Count)
	}
	if math.Abs(agg.Mean-2.5) > 1e-12 {
		t.Fatalf("mean = %f, want 2.5", agg.Mean)
	}
	if agg.Min != 1 || agg.Max != 4 {
		t.Fatalf("min/max = %f/%f, want 1/4", agg.Min, agg.Max)
	}
	if agg.Sum != 10 {
		t.Fatalf("sum = %f, want 10", agg.Sum)
	}
}

func TestGetAggregationMissing(t *testing.T) {
	c := NewCollector()
	if agg := c.GetAggregation("absent", nil); agg != nil {
		t.Fatalf("expected nil aggregation for unknown metric")
	}
}

func TestGetMetricNamesAndLabels(t *testing.T) {
	c := NewCollector()
	c.RecordNow(MetricBestEnergy, -1, map[string]string{"config": "config2"})
	c.RecordNow(MetricBestEnergy, -2, map[string]string{"config": "config1"})
	c.RecordNow(MetricBatchMeanEnergy, -1, map[string]string{"config": "config1"})

	names := c.GetMetricNames()
	if len(names) != 2 || names[0] != MetricBatchMeanEnergy || names[1] != MetricBestEnergy {
		t.Fatalf("unexpected names: %v", names)
	}

	labels := c.GetLabelsForMetric(MetricBestEnergy)
	if len(labels) != 2 {
		t.Fatalf("expected 2 label sets, got %d", len(labels))
	}
	if labels[0]["config"] != "config1" || labels[1]["config"] != "config2" {
		t.Fatalf("label sets not sorted: %v", labels)
	}
}

func TestGetTimeSeriesReturnsCopy(t *testing.T) {
	c := NewCollector()
	c.RecordNow("energy", 5, nil)

	points := c.GetTimeSeries("energy", nil)
	points[0].Value = 99

	again := c.GetTimeSeries("energy", nil)
	if again[0].Value != 5 {
		t.Fatalf("caller mutation leaked into collector")
	}
}

func TestClear(t *testing.T) {
	c := NewCollector()
	c.RecordNow("energy", 1, nil)
	c.Clear()
	if names := c.GetMetricNames(); len(names) != 0 {
		t.Fatalf("expected no metrics after clear, got %v", names)
	}
}

func TestConcurrentRecord(t *testing.T) {
	c := NewCollector()
	done := make(chan struct{})
	for g := 0; g < 4; g++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 100; i++ {
				c.RecordNow("energy", float64(i), map[string]string{"config": "config1"})
			}
		}()
	}
	for g := 0; g < 4; g++ {
		<-done
	}

	points := c.GetTimeSeries("energy", map[string]string{"config": "config1"})
	if len(points) != 400 {
		t.Fatalf("expected 400 points, got %d", len(points))
	}
}
