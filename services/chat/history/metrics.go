// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var (
	historyLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_history_load_duration_seconds",
		Help:    "Time to load and initialize the history document",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	historySearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_history_search_duration_seconds",
		Help:    "Time to search message bodies across all tabs",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	historyOpenTabsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_history_open_tabs",
		Help: "Number of currently open UI tabs",
	})

	historyMessagesAddedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_history_messages_added_total",
		Help: "Messages appended to history by type",
	}, []string{"type"})

	historyPreprocessDropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_history_preprocess_drops_total",
		Help: "Messages dropped while shaping request history, by rule",
	}, []string{"rule"})

	historySaveErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_history_save_errors_total",
		Help: "History document save failures (degraded, not fatal)",
	})
)

var historyTracer = otel.Tracer("chat.history")
