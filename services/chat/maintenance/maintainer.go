// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package maintenance bounds the total on-disk size of chat history
// across all workspaces.
//
// One host process serves one workspace, but every workspace's history
// document lives in the same directory, so the size ceiling is a global
// property no single store can enforce alone. The maintainer sweeps the
// whole directory: when the summed document size exceeds the ceiling it
// evicts the oldest message pairs first, across workspaces, until the
// total is back under the target.
package maintenance

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/assistant-lsp/services/chat/config"
	"github.com/AleutianAI/assistant-lsp/services/chat/datatypes"
	"github.com/AleutianAI/assistant-lsp/services/chat/history"
	"github.com/AleutianAI/assistant-lsp/services/chat/storage"
)

// Options configures a Maintainer.
type Options struct {
	Files  *storage.Store
	Config config.MaintenanceConfig

	// Current is the live store for this process's workspace, when one
	// exists. Its open document is reused so the sweep and the store
	// never hold two divergent in-memory copies of the same file.
	Current *history.Store

	Logger *slog.Logger
}

// Maintainer runs size sweeps over the history directory.
//
// Thread Safety: Safe for concurrent use; sweeps are serialized.
type Maintainer struct {
	files   *storage.Store
	cfg     config.MaintenanceConfig
	current *history.Store
	logger  *slog.Logger
	limiter *rate.Limiter

	mu sync.Mutex
}

// NewMaintainer creates a Maintainer. A zero Config falls back to
// production defaults.
func NewMaintainer(opts Options) *Maintainer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config
	if cfg.MaxTotalBytes == 0 {
		cfg = config.Default().Maintenance
	}
	return &Maintainer{
		files:   opts.Files,
		cfg:     cfg,
		current: opts.Current,
		logger:  logger.With(slog.String("component", "history_maintainer")),
		limiter: rate.NewLimiter(rate.Every(cfg.MinSweepInterval), 1),
	}
}

// Report summarizes one sweep.
type Report struct {
	// Skipped is set when the rate limiter dropped the request before
	// any work happened.
	Skipped bool

	// TotalBefore and TotalAfter are the summed document sizes in bytes
	// at the start and end of the sweep.
	TotalBefore int64
	TotalAfter  int64

	// Iterations is how many trim batches ran.
	Iterations int

	// TabsTrimmed counts tab visits (a tab revisited in a later batch
	// counts again); TabsRemoved counts tabs deleted outright.
	TabsTrimmed int
	TabsRemoved int

	// MessagesEvicted counts messages removed across all documents.
	MessagesEvicted int
}

// SizeExceeded reports whether the summed document size is over the
// ceiling, without sweeping.
func (m *Maintainer) SizeExceeded() (bool, int64, error) {
	total, err := m.totalDocumentSize()
	if err != nil {
		return false, 0, err
	}
	return total > m.cfg.MaxTotalBytes, total, nil
}

// Sweep measures the summed document size and, when it exceeds the
// ceiling, evicts oldest message pairs across all workspaces until the
// total falls under the target or the iteration bound is hit.
//
// Eviction order is a min-heap over each tab's oldest message
// timestamp; a tab with any untimestamped message sorts first. Each
// batch visits up to BatchIterations/2 tabs, removes PairsPerBatch
// oldest pairs from each tab's first conversation, persists the touched
// documents, and re-measures on-disk size before deciding to continue.
func (m *Maintainer) Sweep(ctx context.Context) (Report, error) {
	if !m.limiter.Allow() {
		maintenanceSweepsSkippedTotal.Inc()
		return Report{Skipped: true}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, span := maintenanceTracer.Start(ctx, "chat.Maintenance.Sweep")
	defer span.End()
	start := time.Now()
	defer func() {
		maintenanceSweepDuration.Observe(time.Since(start).Seconds())
	}()

	// Flush the live store first so on-disk sizes are honest.
	if m.current != nil {
		if err := m.current.Save(ctx); err != nil {
			m.logger.Warn("pre-sweep flush failed", slog.String("error", err.Error()))
		}
	}

	var report Report
	total, err := m.totalDocumentSize()
	if err != nil {
		return report, err
	}
	report.TotalBefore = total
	report.TotalAfter = total

	if total <= m.cfg.MaxTotalBytes {
		maintenanceTotalSizeGauge.Set(float64(total))
		return report, nil
	}

	m.logger.Info("history size ceiling exceeded, sweeping",
		slog.Int64("total_bytes", total),
		slog.Int64("max_bytes", m.cfg.MaxTotalBytes),
	)

	docs, err := m.openDocuments()
	if err != nil {
		return report, err
	}
	queue := buildQueue(docs)

	batchSize := m.cfg.BatchIterations / 2
	if batchSize < 1 {
		batchSize = 1
	}

	for report.Iterations < m.cfg.MaxIterations && total > m.cfg.TargetTotalBytes && queue.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		dirty := make(map[string]*history.Document)
		for i := 0; i < batchSize && queue.Len() > 0; i++ {
			ref := heap.Pop(queue).(tabRef)
			doc := docs[ref.doc]
			tab, ok := doc.Tab(ref.historyID)
			if !ok {
				continue
			}

			evicted, empty := trimOldestPairs(&tab, m.cfg.PairsPerBatch)
			report.MessagesEvicted += evicted
			report.TabsTrimmed++

			if empty {
				doc.Remove(ref.historyID)
				report.TabsRemoved++
			} else {
				doc.Upsert(tab)
				heap.Push(queue, tabRef{
					doc:       ref.doc,
					historyID: ref.historyID,
					oldest:    tab.OldestMessageTimestamp(),
				})
			}
			dirty[ref.doc] = doc
		}

		// A document that fails to save is logged and skipped; the
		// remaining documents still get their evictions persisted, and
		// the re-measure below keeps the loop honest about what
		// actually shrank.
		g, _ := errgroup.WithContext(ctx)
		for name, doc := range dirty {
			g.Go(func() error {
				if err := doc.Save(); err != nil {
					m.logger.Warn("sweep save failed, skipping document",
						slog.String("document", name),
						slog.String("error", err.Error()),
					)
				}
				return nil
			})
		}
		_ = g.Wait()

		total, err = m.totalDocumentSize()
		if err != nil {
			return report, err
		}
		report.Iterations++
	}

	report.TotalAfter = total
	if total > m.cfg.TargetTotalBytes && report.Iterations >= m.cfg.MaxIterations {
		m.logger.Warn("sweep stopped at iteration cap above target",
			slog.Int("iterations", report.Iterations),
			slog.Int64("total_bytes", total),
			slog.Int64("target_bytes", m.cfg.TargetTotalBytes),
		)
	}
	if reclaimed := report.TotalBefore - total; reclaimed > 0 {
		maintenanceBytesEvicted.Add(float64(reclaimed))
	}
	maintenanceMessagesEvictedTotal.Add(float64(report.MessagesEvicted))
	maintenanceTotalSizeGauge.Set(float64(total))
	span.SetAttributes(
		attribute.Int64("total_before", report.TotalBefore),
		attribute.Int64("total_after", report.TotalAfter),
		attribute.Int("messages_evicted", report.MessagesEvicted),
	)

	m.logger.Info("sweep complete",
		slog.Int64("total_before", report.TotalBefore),
		slog.Int64("total_after", report.TotalAfter),
		slog.Int("iterations", report.Iterations),
		slog.Int("tabs_trimmed", report.TabsTrimmed),
		slog.Int("tabs_removed", report.TabsRemoved),
		slog.Int("messages_evicted", report.MessagesEvicted),
	)
	return report, nil
}

// totalDocumentSize sums the on-disk size of all history documents,
// ignoring unrelated files in the directory.
func (m *Maintainer) totalDocumentSize() (int64, error) {
	entries, err := m.files.List()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		if storage.IsDocumentName(e.Name) {
			total += e.Size
		}
	}
	return total, nil
}

// openDocuments opens every history document in the directory. The live
// store's document is reused rather than reopened; an unreadable
// document is skipped with a warning so one corrupt file cannot stall
// the sweep.
func (m *Maintainer) openDocuments() (map[string]*history.Document, error) {
	entries, err := m.files.List()
	if err != nil {
		return nil, err
	}

	currentName := ""
	if m.current != nil {
		currentName = m.current.DocumentName()
	}

	docs := make(map[string]*history.Document, len(entries))
	for _, e := range entries {
		if !storage.IsDocumentName(e.Name) {
			continue
		}
		if e.Name == currentName {
			doc := m.current.Document()
			if doc == nil {
				// The live store is still loading; leave its document
				// alone this sweep.
				m.logger.Debug("skipping live document, store not ready",
					slog.String("document", e.Name),
				)
				continue
			}
			docs[e.Name] = doc
			continue
		}
		doc, err := history.OpenDocument(m.files, e.Name)
		if err != nil {
			m.logger.Warn("skipping unreadable history document",
				slog.String("document", e.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		docs[e.Name] = doc
	}
	return docs, nil
}

// trimOldestPairs removes up to pairs oldest message-pairs from the
// tab's first conversation, advancing to the next conversation as each
// empties. A conversation down to two or fewer messages is dropped
// whole rather than left as a fragment. Returns the evicted message
// count and whether the tab emptied.
func trimOldestPairs(tab *datatypes.Tab, pairs int) (evicted int, empty bool) {
	conversations := make([]datatypes.Conversation, len(tab.Conversations))
	copy(conversations, tab.Conversations)
	tab.Conversations = conversations

	for i := 0; i < pairs; i++ {
		if len(tab.Conversations) == 0 {
			return evicted, true
		}
		conv := tab.Conversations[0]
		if len(conv.Messages) <= 2 {
			evicted += len(conv.Messages)
			tab.Conversations = tab.Conversations[1:]
			continue
		}
		conv.Messages = conv.Messages[2:]
		tab.Conversations[0] = conv
		evicted += 2
	}
	return evicted, len(tab.Conversations) == 0
}

// =============================================================================
// Eviction Queue
// =============================================================================

// tabRef locates a tab across documents, keyed for eviction order.
type tabRef struct {
	doc       string
	historyID string
	oldest    int64
}

// tabQueue is a min-heap over oldest message timestamps. Zero sorts
// first: a tab with an untimestamped message predates timestamping and
// is the oldest data in the directory.
type tabQueue []tabRef

func (q tabQueue) Len() int           { return len(q) }
func (q tabQueue) Less(i, j int) bool { return q[i].oldest < q[j].oldest }
func (q tabQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *tabQueue) Push(x any)        { *q = append(*q, x.(tabRef)) }
func (q *tabQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

func buildQueue(docs map[string]*history.Document) *tabQueue {
	q := &tabQueue{}
	for name, doc := range docs {
		for _, tab := range doc.Tabs() {
			*q = append(*q, tabRef{
				doc:       name,
				historyID: tab.HistoryID,
				oldest:    tab.OldestMessageTimestamp(),
			})
		}
	}
	heap.Init(q)
	return q
}
