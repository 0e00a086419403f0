package core

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/petsync/sureflap-sync/pkg/model"

	"github.com/petsync/sureflap-sync/internal/store"
)

// ProjectHistory rebuilds each household's history subtree when its raw
// event list changed since the previous cycle. The vendor timeline has
// no stable schema, so instead of field-level diffing the whole subtree
// is dropped and rewritten node by node from the decoded payload.
func (p *Projector) ProjectHistory(ctx context.Context, snap, prev *Snapshot) {
	for i := range snap.Households {
		h := &snap.Households[i]
		events, ok := snap.History[h.ID]
		if !ok {
			continue
		}
		if prev != nil && historyEqual(events, prev.History[h.ID]) {
			continue
		}

		base := snap.HistoryPath(h)
		if err := p.store.Delete(ctx, base); err != nil {
			p.warnings.Warn(WarnStoreWrite, base,
				"clearing history subtree failed", "path", base, "error", err)
			continue
		}
		p.warnings.Clear(WarnStoreWrite, base)
		if err := p.store.EnsureObject(ctx, base, model.KindFolder); err != nil {
			p.logger.Warn("recreating history folder failed", "path", base, "error", err)
			continue
		}

		for idx := range events {
			p.projectNode(ctx, store.Join(base, fmt.Sprintf("%d", idx)), events[idx].Raw)
		}
		p.logger.Debug("history subtree rebuilt", "household", h.Name, "events", len(events))
	}
}

// historyEqual compares the raw payload trees of two event lists.
func historyEqual(a, b []model.HistoryEvent) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !reflect.DeepEqual(a[i].Raw, b[i].Raw) {
			return false
		}
	}
	return true
}

// projectNode writes one decoded JSON node. Maps become folders, lists
// of scalars become a single JSON leaf, lists of objects become indexed
// folders, scalars become typed leaves.
func (p *Projector) projectNode(ctx context.Context, path string, node any) {
	switch v := node.(type) {
	case map[string]any:
		if err := p.store.EnsureObject(ctx, path, model.KindFolder); err != nil {
			p.logger.Warn("creating history node failed", "path", path, "error", err)
			return
		}
		for _, k := range sortedKeys(v) {
			p.projectNode(ctx, store.Join(path, SanitizeName(k)), v[k])
		}
	case []any:
		if allScalars(v) {
			p.setLeaf(ctx, path, jsonLeaf(v))
			return
		}
		if err := p.store.EnsureObject(ctx, path, model.KindFolder); err != nil {
			p.logger.Warn("creating history node failed", "path", path, "error", err)
			return
		}
		for i, item := range v {
			p.projectNode(ctx, store.Join(path, fmt.Sprintf("%d", i)), item)
		}
	case nil:
		// Omit null fields rather than writing an empty leaf.
	default:
		p.setLeaf(ctx, path, v)
	}
}

func allScalars(list []any) bool {
	for _, item := range list {
		switch item.(type) {
		case map[string]any, []any:
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
