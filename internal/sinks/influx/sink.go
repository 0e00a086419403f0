// Package influx ships the derived per-pet activity metrics to an
// InfluxDB 2.x bucket.
package influx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/petsync/sureflap-sync/internal/core"
	"github.com/petsync/sureflap-sync/pkg/config"
)

// Sink implements core.MetricsSink on top of the blocking write API.
type Sink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	logger   *slog.Logger
}

// New creates a sink for the configured bucket.
func New(cfg config.InfluxConfig, logger *slog.Logger) *Sink {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Sink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		logger:   logger,
	}
}

// WritePetMetrics writes one point per pet, tagged by household and pet
// name.
func (s *Sink) WritePetMetrics(ctx context.Context, now time.Time, metrics []core.PetMetrics) error {
	points := make([]*write.Point, 0, len(metrics))
	for _, m := range metrics {
		fields := map[string]any{}
		if m.Feeding != nil {
			fields["feeding_count"] = m.Feeding.Count
			fields["feeding_seconds"] = m.Feeding.TimeSpent
			fields["feeding_wet_grams"] = m.Feeding.WetWeight
			fields["feeding_dry_grams"] = m.Feeding.DryWeight
		}
		if m.Drinking != nil {
			fields["drinking_count"] = m.Drinking.Count
			fields["drinking_seconds"] = m.Drinking.TimeSpent
			fields["drinking_grams"] = m.Drinking.WetWeight + m.Drinking.DryWeight
		}
		if m.Outside != nil {
			fields["outside_count"] = m.Outside.Count
			fields["outside_seconds"] = m.Outside.Duration
		}
		if len(fields) == 0 {
			continue
		}
		p := influxdb2.NewPoint("pet_metrics",
			map[string]string{"household": m.Household, "pet": m.Pet},
			fields, now)
		points = append(points, p)
	}
	if len(points) == 0 {
		return nil
	}
	if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("writing pet metrics: %w", err)
	}
	s.logger.Debug("pet metrics written", "points", len(points))
	return nil
}

// Close releases the underlying HTTP client.
func (s *Sink) Close() {
	s.client.Close()
}
