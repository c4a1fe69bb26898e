// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package maintenance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var (
	maintenanceSweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_maintenance_sweep_duration_seconds",
		Help:    "Time to run one history size sweep",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
	})

	maintenanceBytesEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_maintenance_bytes_evicted_total",
		Help: "On-disk bytes reclaimed by size sweeps",
	})

	maintenanceMessagesEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_maintenance_messages_evicted_total",
		Help: "Messages removed from history by size sweeps",
	})

	maintenanceSweepsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_maintenance_sweeps_skipped_total",
		Help: "Sweep requests dropped by the rate limiter",
	})

	maintenanceTotalSizeGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_maintenance_total_size_bytes",
		Help: "Summed on-disk size of all history documents after the last sweep",
	})
)

var maintenanceTracer = otel.Tracer("chat.maintenance")
