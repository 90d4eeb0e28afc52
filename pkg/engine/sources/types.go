// Package sources provides market data source interfaces and shared adapter plumbing.
package sources

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/model"
)

// Status classifies the outcome of a single fetch from a source.
type Status string

const (
	// StatusSuccess means the source answered with data for the requested assets.
	StatusSuccess Status = "success"
	// StatusPartial means the source answered but covered only part of the request.
	StatusPartial Status = "partial"
	// StatusFailed means the source could not be queried or returned garbage.
	StatusFailed Status = "failed"
	// StatusRateLimited means the source rejected the call because of quota.
	StatusRateLimited Status = "rate_limited"
	// StatusTimeout means the call did not complete within its deadline.
	StatusTimeout Status = "timeout"
)

// Usable reports whether a response with this status carries usable data.
func (s Status) Usable() bool {
	return s == StatusSuccess || s == StatusPartial
}

// AssetQuote holds the partial per-asset fields one source reported.
// Nil pointers mean the source did not supply that field.
type AssetQuote struct {
	Symbol        string
	Name          string
	Price         *decimal.Decimal
	MarketCap     *decimal.Decimal
	Volume24H     *decimal.Decimal
	Rank          *int
	PercentChange map[model.Period]float64
}

// FetchRequest describes one fetch: which assets and which fields are wanted.
// An empty Symbols slice asks for the source's full listing.
type FetchRequest struct {
	Symbols []string
	Limit   int
}

// Response is one source's output for one merge pass. It is ephemeral and
// discarded after the merge.
type Response struct {
	Source    string
	Timestamp time.Time
	Status    Status
	Quotes    map[string]AssetQuote
	Reason    string
}

// Source is the contract every provider adapter implements. Fetch must be
// safe for concurrent use and must never panic or leak errors past the
// boundary: all failures surface as a Response with a non-usable status.
type Source interface {
	// Name returns the unique name of this source
	Name() string

	// Fetch retrieves quotes for the requested assets. The returned
	// Response always carries the source name and a status; it is never nil.
	Fetch(ctx context.Context, req FetchRequest) Response

	// IsHealthy returns whether the source is currently healthy
	IsHealthy() bool

	// LastUpdate returns the timestamp of the last successful fetch
	LastUpdate() time.Time
}

// SourceFactory is a function that creates a new Source instance
type SourceFactory func(config map[string]interface{}) (Source, error)
