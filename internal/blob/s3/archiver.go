package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pitchside/parimutuel/internal/domain"
)

// Archiver implements domain.ReportArchiver by serialising settlement
// reports to JSON and uploading them to blob storage. An archived report is
// the durable record of a market's final state: frozen pools, the winning
// outcome, and every position as it stood at resolution.
type Archiver struct {
	writer domain.BlobWriter
	audit  domain.AuditStore
}

// NewArchiver creates a new Archiver.
func NewArchiver(writer domain.BlobWriter, audit domain.AuditStore) *Archiver {
	return &Archiver{
		writer: writer,
		audit:  audit,
	}
}

// ArchiveSettlement uploads the report to reports/{market_id}.json and
// records the archival event in the audit log. The object path is returned.
func (a *Archiver) ArchiveSettlement(ctx context.Context, report domain.SettlementReport) (string, error) {
	buf, err := marshalReport(report)
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal settlement report %s: %w", report.MarketID, err)
	}

	path := reportPath(report.MarketID)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: upload settlement report %s: %w", report.MarketID, err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "settlement.archived", map[string]any{
			"market_id":   report.MarketID,
			"path":        path,
			"outcome":     string(report.Outcome),
			"positions":   len(report.Positions),
			"archived_at": time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			return path, fmt.Errorf("s3blob: audit settlement report %s: %w", report.MarketID, err)
		}
	}

	return path, nil
}

// reportPath builds the S3 key for a settlement report.
//
//	reports/market:epl-2026-08-29-ars-che.json
func reportPath(marketID string) string {
	return fmt.Sprintf("reports/%s.json", marketID)
}

// marshalReport serialises the report as indented JSON so archived objects
// stay readable without tooling.
func marshalReport(report domain.SettlementReport) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var _ domain.ReportArchiver = (*Archiver)(nil)
