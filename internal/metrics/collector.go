// Package metrics collects time-series training metrics keyed by metric
// name and label set, for the daemon's metrics endpoints.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/tbi-sim/tbi-core/pkg/models"
	"github.com/tbi-sim/tbi-core/pkg/utils"
)

// Names of the metrics emitted during training
const (
	MetricBatchMeanEnergy = "batch_mean_energy"
	MetricBestEnergy      = "best_energy"
)

// Collector accumulates metric points, grouped by name and label set
type Collector struct {
	mu         sync.RWMutex
	timeSeries map[string]map[string][]*models.MetricPoint
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{
		timeSeries: make(map[string]map[string][]*models.MetricPoint),
	}
}

// Record appends a metric value at a specific timestamp
func (c *Collector) Record(name string, value float64, timestamp time.Time, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := labelKey(labels)
	if c.timeSeries[name] == nil {
		c.timeSeries[name] = make(map[string][]*models.MetricPoint)
	}
	c.timeSeries[name][key] = append(c.timeSeries[name][key], &models.MetricPoint{
		Timestamp: timestamp,
		Name:      name,
		Value:     value,
		Labels:    copyLabels(labels),
	})
}

// RecordNow appends a metric value at the current time
func (c *Collector) RecordNow(name string, value float64, labels map[string]string) {
	c.Record(name, value, time.Now(), labels)
}

// GetTimeSeries returns a copy of all points for a metric and label set
func (c *Collector) GetTimeSeries(name string, labels map[string]string) []*models.MetricPoint {
	c.mu.RLock()
	defer c.mu.RUnlock()

	points := c.timeSeries[name][labelKey(labels)]
	if points == nil {
		return nil
	}
	result := make([]*models.MetricPoint, len(points))
	for i, p := range points {
		result[i] = &models.MetricPoint{
			Timestamp: p.Timestamp,
			Name:      p.Name,
			Value:     p.Value,
			Labels:    copyLabels(p.Labels),
		}
	}
	return result
}

// GetAggregation computes summary statistics for a metric and label set
func (c *Collector) GetAggregation(name string, labels map[string]string) *models.Aggregation {
	c.mu.RLock()
	defer c.mu.RUnlock()

	points := c.timeSeries[name][labelKey(labels)]
	if len(points) == 0 {
		return nil
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	sort.Float64s(values)

	return &models.Aggregation{
		Count: int64(len(values)),
		Sum:   utils.Sum(values),
		Min:   values[0],
		Max:   values[len(values)-1],
		Mean:  utils.Mean(values),
		P50:   utils.Percentile(values, 0.50),
		P95:   utils.Percentile(values, 0.95),
		P99:   utils.Percentile(values, 0.99),
	}
}

// GetMetricNames returns all metric names seen so far, sorted
func (c *Collector) GetMetricNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.timeSeries))
	for name := range c.timeSeries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetLabelsForMetric returns every label combination recorded for a metric
func (c *Collector) GetLabelsForMetric(name string) []map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	series := c.timeSeries[name]
	if series == nil {
		return nil
	}
	keys := make([]string, 0, len(series))
	for key := range series {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	labelsList := make([]map[string]string, 0, len(keys))
	for _, key := range keys {
		if points := series[key]; len(points) > 0 {
			labelsList = append(labelsList, copyLabels(points[0].Labels))
		}
	}
	return labelsList
}

// Clear drops all collected points
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeSeries = make(map[string]map[string][]*models.MetricPoint)
}

// labelKey builds a stable map key from a label set
func labelKey(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	key := ""
	for _, k := range keys {
		key += k + "=" + labels[k] + ","
	}
	return key
}

func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
