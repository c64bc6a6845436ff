package domain

import (
	"context"
	"io"
)

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// SettlementReport is the archived record of a resolved market: frozen
// pools, the winning outcome, and every position at resolution time.
type SettlementReport struct {
	MarketID       string         `json:"market_id"`
	GameKey        string         `json:"game_key"`
	Question       string         `json:"question"`
	Outcome        Outcome        `json:"outcome"`
	FinalRawResult int64          `json:"final_raw_result"`
	Pools          OutcomeAmounts `json:"pools"`
	FeesCollected  uint64         `json:"fees_collected"`
	Positions      []Position     `json:"positions"`
}

// ReportArchiver stores settlement reports durably outside the primary
// database.
type ReportArchiver interface {
	ArchiveSettlement(ctx context.Context, report SettlementReport) (string, error)
}
