package metrics

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"go.uber.org/zap"
)

// RemoteWriteConfig points the pusher at a Prometheus remote-write
// endpoint (Mimir, Thanos receive, Prometheus with the receiver enabled).
type RemoteWriteConfig struct {
	URL           string
	FlushInterval time.Duration
	BatchSize     int
	AuthToken     string
}

// RemoteWriter periodically snapshots the default registry and pushes it
// over the remote-write protocol. Optional; scrape via /metrics works
// without it.
type RemoteWriter struct {
	cfg    RemoteWriteConfig
	client *http.Client
	logger *zap.Logger
}

func NewRemoteWriter(cfg RemoteWriteConfig, logger *zap.Logger) *RemoteWriter {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	return &RemoteWriter{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

func (w *RemoteWriter) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.flush(ctx); err != nil {
				w.logger.Warn("remote write flush failed", zap.Error(err))
			}
		}
	}
}

func (w *RemoteWriter) flush(ctx context.Context) error {
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	series := familiesToSeries(mfs)
	for i := 0; i < len(series); i += w.cfg.BatchSize {
		end := i + w.cfg.BatchSize
		if end > len(series) {
			end = len(series)
		}
		if err := w.send(ctx, series[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func familiesToSeries(mfs []*dto.MetricFamily) []prompb.TimeSeries {
	now := time.Now().UnixMilli()
	var series []prompb.TimeSeries

	for _, mf := range mfs {
		for _, m := range mf.Metric {
			labels := make([]prompb.Label, 0, len(m.Label)+1)
			labels = append(labels, prompb.Label{Name: "__name__", Value: mf.GetName()})
			for _, l := range m.Label {
				labels = append(labels, prompb.Label{Name: l.GetName(), Value: l.GetValue()})
			}

			var value float64
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				value = m.Counter.GetValue()
			case dto.MetricType_GAUGE:
				value = m.Gauge.GetValue()
			case dto.MetricType_HISTOGRAM:
				for _, bucket := range m.Histogram.Bucket {
					bucketLabels := append([]prompb.Label{}, labels...)
					bucketLabels = append(bucketLabels, prompb.Label{
						Name:  "le",
						Value: fmt.Sprintf("%g", bucket.GetUpperBound()),
					})
					series = append(series, prompb.TimeSeries{
						Labels:  bucketLabels,
						Samples: []prompb.Sample{{Value: float64(bucket.GetCumulativeCount()), Timestamp: now}},
					})
				}
				continue
			default:
				continue
			}

			series = append(series, prompb.TimeSeries{
				Labels:  labels,
				Samples: []prompb.Sample{{Value: value, Timestamp: now}},
			})
		}
	}
	return series
}

func (w *RemoteWriter) send(ctx context.Context, series []prompb.TimeSeries) error {
	req := &prompb.WriteRequest{Timeseries: series}
	data, err := req.Marshal()
	if err != nil {
		return fmt.Errorf("marshal write request: %w", err)
	}
	compressed := snappy.Encode(nil, data)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL+"/api/v1/push", bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if w.cfg.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+w.cfg.AuthToken)
	}

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("remote write endpoint returned %s", resp.Status)
	}
	return nil
}
