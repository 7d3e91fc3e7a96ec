package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

const (
	archivePrefix = "archive/orders/"
	stampLayout   = "20060102T150405.000000000Z"
	// multipartThreshold switches uploads to the transfer manager.
	multipartThreshold = 16 << 20
)

// ClosedOrderLister is the part of domain.OrderStore the archiver reads.
type ClosedOrderLister interface {
	ListClosed(ctx context.Context, since, until time.Time) ([]domain.Order, error)
}

// BidLister is the part of domain.BidStore the archiver reads.
type BidLister interface {
	ListByOrder(ctx context.Context, orderID uint64) ([]domain.Bid, error)
}

// ArchivedOrder is one JSONL line: a closed order with its full bid history.
type ArchivedOrder struct {
	Order domain.Order `json:"order"`
	Bids  []domain.Bid `json:"bids"`
}

// Archiver implements domain.Archiver. Each run uploads the orders closed in
// [watermark, before) to archive/orders/<watermark>_<before>.jsonl, where the
// watermark is the upper bound of the newest existing archive. Records are
// left in the primary store.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	orders ClosedOrderLister
	bids   BidLister
	audit  domain.AuditStore
	logger *slog.Logger
}

func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, orders ClosedOrderLister, bids BidLister, audit domain.AuditStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		reader: reader,
		orders: orders,
		bids:   bids,
		audit:  audit,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveClosedOrders returns the number of orders archived by this run.
func (a *Archiver) ArchiveClosedOrders(ctx context.Context, before time.Time) (int64, error) {
	before = before.UTC()
	since, err := a.watermark(ctx)
	if err != nil {
		return 0, err
	}
	if !since.Before(before) {
		return 0, nil
	}

	orders, err := a.orders.ListClosed(ctx, since, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: list closed orders: %w", err)
	}
	if len(orders) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, o := range orders {
		bids, err := a.bids.ListByOrder(ctx, o.ID)
		if err != nil {
			return 0, fmt.Errorf("s3blob: bids of order %d: %w", o.ID, err)
		}
		if err := enc.Encode(ArchivedOrder{Order: o, Bids: bids}); err != nil {
			return 0, fmt.Errorf("s3blob: encode order %d: %w", o.ID, err)
		}
	}

	path := archiveKey(since, before)
	if buf.Len() >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, &buf, minPartSize)
	} else {
		err = a.writer.Put(ctx, path, &buf, "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: upload archive: %w", err)
	}

	count := int64(len(orders))
	a.logger.InfoContext(ctx, "closed orders archived",
		slog.String("path", path),
		slog.Int64("count", count),
	)
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.orders", map[string]any{
			"path":   path,
			"count":  count,
			"since":  since.Format(time.RFC3339Nano),
			"before": before.Format(time.RFC3339Nano),
		}); err != nil {
			return count, fmt.Errorf("s3blob: audit archive: %w", err)
		}
	}
	return count, nil
}

// watermark is the latest upper bound among existing archive keys, or the
// zero time when nothing has been archived.
func (a *Archiver) watermark(ctx context.Context) (time.Time, error) {
	infos, err := a.reader.List(ctx, archivePrefix)
	if err != nil {
		return time.Time{}, fmt.Errorf("s3blob: list archives: %w", err)
	}
	var latest time.Time
	for _, info := range infos {
		_, until, ok := parseArchiveKey(info.Path)
		if ok && until.After(latest) {
			latest = until
		}
	}
	return latest, nil
}

func archiveKey(since, until time.Time) string {
	return archivePrefix + since.UTC().Format(stampLayout) + "_" + until.UTC().Format(stampLayout) + ".jsonl"
}

func parseArchiveKey(path string) (since, until time.Time, ok bool) {
	name, found := strings.CutPrefix(path, archivePrefix)
	if !found {
		return time.Time{}, time.Time{}, false
	}
	name, found = strings.CutSuffix(name, ".jsonl")
	if !found {
		return time.Time{}, time.Time{}, false
	}
	from, to, found := strings.Cut(name, "_")
	if !found {
		return time.Time{}, time.Time{}, false
	}
	since, err := time.Parse(stampLayout, from)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	until, err = time.Parse(stampLayout, to)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return since, until, true
}

var _ domain.Archiver = (*Archiver)(nil)
