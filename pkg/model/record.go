package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Field identifies a single attribute of an asset record.
type Field string

// Known asset record fields.
const (
	FieldName      Field = "name"
	FieldPrice     Field = "price"
	FieldMarketCap Field = "market_cap"
	FieldVolume24H Field = "volume_24h"
	FieldRank      Field = "rank"
)

// ChangeField returns the field identifier for a period's percent change.
func ChangeField(p Period) Field {
	return Field("percent_change_" + string(p))
}

// Provenance records which source supplied a field and when.
type Provenance struct {
	Source     string    `json:"source"`
	ObservedAt time.Time `json:"observed_at"`
}

// AssetRecord is the canonical per-asset snapshot produced by a merge pass.
// Pointer fields distinguish "unknown" from zero: a field absent from every
// source stays nil and callers must not treat it as 0.
type AssetRecord struct {
	Symbol        string               `json:"symbol"`
	Name          string               `json:"name,omitempty"`
	Price         *decimal.Decimal     `json:"price,omitempty"`
	MarketCap     *decimal.Decimal     `json:"market_cap,omitempty"`
	Volume24H     *decimal.Decimal     `json:"volume_24h,omitempty"`
	Rank          *int                 `json:"rank,omitempty"`
	PercentChange map[Period]float64   `json:"percent_change,omitempty"`
	Provenance    map[Field]Provenance `json:"provenance,omitempty"`
	LastMergedAt  time.Time            `json:"last_merged_at"`
}

// HasField reports whether the record carries a value for the field.
func (r *AssetRecord) HasField(f Field) bool {
	_, ok := r.Provenance[f]
	return ok
}

// SetProvenance records the contributing source for a field.
func (r *AssetRecord) SetProvenance(f Field, source string, observedAt time.Time) {
	if r.Provenance == nil {
		r.Provenance = make(map[Field]Provenance)
	}
	r.Provenance[f] = Provenance{Source: source, ObservedAt: observedAt}
}

// Clone returns a deep copy of the record.
func (r *AssetRecord) Clone() AssetRecord {
	out := AssetRecord{
		Symbol:       r.Symbol,
		Name:         r.Name,
		LastMergedAt: r.LastMergedAt,
	}
	if r.Price != nil {
		p := *r.Price
		out.Price = &p
	}
	if r.MarketCap != nil {
		m := *r.MarketCap
		out.MarketCap = &m
	}
	if r.Volume24H != nil {
		v := *r.Volume24H
		out.Volume24H = &v
	}
	if r.Rank != nil {
		rank := *r.Rank
		out.Rank = &rank
	}
	if r.PercentChange != nil {
		out.PercentChange = make(map[Period]float64, len(r.PercentChange))
		for k, v := range r.PercentChange {
			out.PercentChange[k] = v
		}
	}
	if r.Provenance != nil {
		out.Provenance = make(map[Field]Provenance, len(r.Provenance))
		for k, v := range r.Provenance {
			out.Provenance[k] = v
		}
	}
	return out
}
