// Package merge combines partial source responses into canonical asset records.
package merge

import (
	"sort"
	"time"

	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/quality"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/sources"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/logging"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/metrics"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/model"
)

// Merger builds one canonical AssetRecord per asset from a pass's responses.
// Merging is pure: identical input response sets always yield identical
// records. The only clock involved is the response timestamps themselves.
type Merger struct {
	scorer *quality.Scorer
	logger *logging.Logger
}

// NewMerger creates a merger using the scorer's weights for field selection.
func NewMerger(scorer *quality.Scorer, logger *logging.Logger) *Merger {
	return &Merger{scorer: scorer, logger: logger}
}

// MergeAll merges every asset that appears in at least one usable response.
func (m *Merger) MergeAll(responses []sources.Response) map[string]model.AssetRecord {
	start := time.Now()
	defer func() {
		metrics.RecordMerge(time.Since(start))
	}()

	ordered := m.order(responses)

	symbols := make(map[string]struct{})
	for _, resp := range ordered {
		for symbol := range resp.Quotes {
			symbols[symbol] = struct{}{}
		}
	}

	records := make(map[string]model.AssetRecord, len(symbols))
	for symbol := range symbols {
		if record, ok := m.mergeOrdered(symbol, ordered); ok {
			records[symbol] = record
		}
	}

	m.logger.Debug("Merge pass complete",
		"responses", len(responses),
		"assets", len(records))
	return records
}

// Merge produces the canonical record for one asset. The second return is
// false when no usable response carried the asset.
func (m *Merger) Merge(symbol string, responses []sources.Response) (model.AssetRecord, bool) {
	return m.mergeOrdered(symbol, m.order(responses))
}

// order sorts responses best-first by scorer preference and drops the
// non-usable ones. Sorting a copy keeps Merge free of side effects.
func (m *Merger) order(responses []sources.Response) []sources.Response {
	ordered := make([]sources.Response, 0, len(responses))
	for _, resp := range responses {
		if resp.Status.Usable() && m.scorer.Weight(resp) > 0 {
			ordered = append(ordered, resp)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return m.scorer.Better(ordered[i], ordered[j])
	})
	return ordered
}

// mergeOrdered walks responses best-first and takes the first value seen for
// each field. A field already set by a higher-weight source is never
// overwritten by a lower-weight one. Fields absent from every response stay
// unset so callers can tell "unknown" from zero.
func (m *Merger) mergeOrdered(symbol string, ordered []sources.Response) (model.AssetRecord, bool) {
	record := model.AssetRecord{Symbol: symbol}
	found := false

	for _, resp := range ordered {
		quote, ok := resp.Quotes[symbol]
		if !ok {
			continue
		}
		found = true

		if quote.Name != "" && !record.HasField(model.FieldName) {
			record.Name = quote.Name
			record.SetProvenance(model.FieldName, resp.Source, resp.Timestamp)
		}
		if quote.Price != nil && !record.HasField(model.FieldPrice) {
			price := *quote.Price
			record.Price = &price
			record.SetProvenance(model.FieldPrice, resp.Source, resp.Timestamp)
		}
		if quote.MarketCap != nil && !record.HasField(model.FieldMarketCap) {
			mc := *quote.MarketCap
			record.MarketCap = &mc
			record.SetProvenance(model.FieldMarketCap, resp.Source, resp.Timestamp)
		}
		if quote.Volume24H != nil && !record.HasField(model.FieldVolume24H) {
			vol := *quote.Volume24H
			record.Volume24H = &vol
			record.SetProvenance(model.FieldVolume24H, resp.Source, resp.Timestamp)
		}
		if quote.Rank != nil && !record.HasField(model.FieldRank) {
			rank := *quote.Rank
			record.Rank = &rank
			record.SetProvenance(model.FieldRank, resp.Source, resp.Timestamp)
		}
		for period, change := range quote.PercentChange {
			field := model.ChangeField(period)
			if record.HasField(field) {
				continue
			}
			if record.PercentChange == nil {
				record.PercentChange = make(map[model.Period]float64)
			}
			record.PercentChange[period] = change
			record.SetProvenance(field, resp.Source, resp.Timestamp)
		}

		if resp.Timestamp.After(record.LastMergedAt) {
			record.LastMergedAt = resp.Timestamp
		}
	}

	if !found {
		return model.AssetRecord{}, false
	}
	return record, true
}
