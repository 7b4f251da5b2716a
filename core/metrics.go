package core

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/mileswatson/blockkey/hash"
	"github.com/mileswatson/blockkey/internal/xlog"
)

// MetricsReporter periodically writes height/round/step points to an
// InfluxDB bucket, mirroring go-ethereum's influxdb metrics exporter.
type MetricsReporter[B hash.Hashable[B]] struct {
	client   influxdb2.Client
	writeAPI apiWriter
	replica  *Tendermint[B]
	log      xlog.Logger
}

type apiWriter interface {
	WritePoint(point *write.Point)
}

// NewMetricsReporter dials an InfluxDB server. serverURL may be empty in
// which case metrics are disabled and Run is a no-op; this mirrors the
// teacher's pattern of metrics being compiled in but gated by config.
func NewMetricsReporter[B hash.Hashable[B]](serverURL, token, org, bucket string, replica *Tendermint[B], log xlog.Logger) *MetricsReporter[B] {
	if serverURL == "" {
		return &MetricsReporter[B]{replica: replica, log: log}
	}
	client := influxdb2.NewClient(serverURL, token)
	return &MetricsReporter[B]{
		client:   client,
		writeAPI: client.WriteAPI(org, bucket),
		replica:  replica,
		log:      log,
	}
}

// Run emits one point every interval until ctx is cancelled.
func (m *MetricsReporter[B]) Run(ctx context.Context, interval time.Duration) {
	if m.writeAPI == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer m.client.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := m.replica.Status()
			m.writeAPI.WritePoint(influxdb2.NewPoint(
				"tendermint",
				map[string]string{},
				map[string]interface{}{
					"height": s.Height,
					"round":  s.Round,
					"step":   s.Step.String(),
				},
				time.Now(),
			))
			m.log.Debug("reported consensus metrics", "height", s.Height, "round", s.Round)
		}
	}
}
