// File: internal/content/sweep.go
package content

import (
	"context"
	"fmt"
	"time"

	"live_learning_backend/internal/docstore"
	"live_learning_backend/internal/platform/elasticsearch"

	"go.uber.org/zap"
)

// sweepRule closes documents of one kind whose moment has passed.
type sweepRule struct {
	kind Kind
	from string
	to   string
	// due returns when the document stops being current.
	due func(doc docstore.Document, loc *time.Location, grace time.Duration) (time.Time, bool)
}

func startsAt(doc docstore.Document, loc *time.Location, grace time.Duration) (time.Time, bool) {
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, doc.String(FieldDate)+" "+doc.String(FieldTime), loc)
	if err != nil {
		return time.Time{}, false
	}
	return t.Add(grace), true
}

// deadlineEnds treats the deadline day as open until its end.
func deadlineEnds(doc docstore.Document, loc *time.Location, _ time.Duration) (time.Time, bool) {
	t, err := time.ParseInLocation(DateLayout, doc.String(FieldDeadline), loc)
	if err != nil {
		return time.Time{}, false
	}
	return t.AddDate(0, 0, 1), true
}

var sweepRules = []sweepRule{
	{kind: KindLiveSession, from: StatusScheduled, to: StatusEnded, due: startsAt},
	{kind: KindDiscussion, from: StatusScheduled, to: StatusEnded, due: startsAt},
	{kind: KindSupportWork, from: StatusOpen, to: StatusClosed, due: deadlineEnds},
}

const sweepPageSize = 200

// SweepEnded marks scheduled sessions and discussions that started more
// than grace ago as ended, and open support work past its deadline as closed.
// It returns the number of documents changed.
func (s *ServiceImplementation) SweepEnded(ctx context.Context, grace time.Duration) (int, error) {
	now := s.now()
	changed := 0
	for _, rule := range sweepRules {
		n, err := s.sweepKind(ctx, rule, now, grace)
		changed += n
		if err != nil {
			return changed, err
		}
	}
	return changed, nil
}

func (s *ServiceImplementation) sweepKind(ctx context.Context, rule sweepRule, now time.Time, grace time.Duration) (int, error) {
	spec, _ := SpecFor(rule.kind)
	changed := 0
	offset := 0
	for {
		snaps, err := s.docs.List(ctx, string(rule.kind), docstore.Query{Status: rule.from, Limit: sweepPageSize, Offset: offset})
		if err != nil {
			return changed, fmt.Errorf("listing %s for sweep: %w", rule.kind, err)
		}
		kept := 0
		for _, snap := range snaps {
			due, ok := rule.due(snap.Data, s.location, grace)
			if !ok {
				s.logger.Debug("Skipping content with unparsable schedule", zap.String("kind", string(rule.kind)), zap.String("id", snap.ID))
				kept++
				continue
			}
			if now.Before(due) {
				kept++
				continue
			}
			update := docstore.Document{FieldStatus: rule.to}
			if err := s.docs.Update(ctx, string(rule.kind), snap.ID, update); err != nil {
				return changed, fmt.Errorf("marking %s/%s %s: %w", rule.kind, snap.ID, rule.to, err)
			}
			changed++
			snap.Data[FieldStatus] = rule.to
			s.index(ctx, spec, snap.ID, snap.Data)
		}
		if len(snaps) < sweepPageSize {
			return changed, nil
		}
		// Updated documents leave the status filter; only skipped ones shift the window.
		offset += kept
	}
}

// Reindex streams every content document through index in batches and
// returns how many were sent and how many failed.
func (s *ServiceImplementation) Reindex(ctx context.Context, batchSize int, index func(ctx context.Context, docs []elasticsearch.ContentDoc) (int, error)) (int, int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	sent, failed := 0, 0
	for _, spec := range kindSpecs {
		for offset := 0; ; offset += batchSize {
			snaps, err := s.docs.List(ctx, string(spec.Kind), docstore.Query{Limit: batchSize, Offset: offset})
			if err != nil {
				return sent, failed, fmt.Errorf("listing %s for reindex: %w", spec.Kind, err)
			}
			if len(snaps) == 0 {
				break
			}
			batch := make([]elasticsearch.ContentDoc, 0, len(snaps))
			for _, snap := range snaps {
				batch = append(batch, elasticsearch.ContentDoc{ID: snap.ID, Source: searchSource(spec, snap.Data)})
			}
			n, err := index(ctx, batch)
			if err != nil {
				return sent, failed, fmt.Errorf("indexing %s batch at %d: %w", spec.Kind, offset, err)
			}
			sent += len(batch)
			failed += n
			s.logger.Info("Reindexed content batch", zap.String("kind", string(spec.Kind)), zap.Int("count", len(batch)), zap.Int("failed", n))
			if len(snaps) < batchSize {
				break
			}
		}
	}
	return sent, failed, nil
}
