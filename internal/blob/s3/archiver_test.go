package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/suite"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
	"github.com/alanyoungcy/escrowmarket/internal/store/memory"
)

// memBlobs is an in-memory bucket.
type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = b
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BlobInfo
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(b))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

type ArchiverTestSuite struct {
	suite.Suite

	ctx      context.Context
	t0       time.Time
	blobs    *memBlobs
	orders   *memory.OrderStore
	bids     *memory.BidStore
	audit    *memory.AuditStore
	archiver *Archiver
}

func TestArchiverTestSuite(t *testing.T) {
	suite.Run(t, new(ArchiverTestSuite))
}

func (s *ArchiverTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.t0 = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	db := memory.NewDB()
	s.blobs = &memBlobs{objects: map[string][]byte{}}
	s.orders = memory.NewOrderStore(db)
	s.bids = memory.NewBidStore(db)
	s.audit = memory.NewAuditStore(db)
	s.archiver = NewArchiver(s.blobs, s.blobs, s.orders, s.bids, s.audit, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// closeAt lists an auction with one bid and closes it at t.
func (s *ArchiverTestSuite) closeAt(t time.Time) uint64 {
	o, err := s.orders.Create(s.ctx, domain.Order{
		Kind:         domain.OrderKindAuction,
		BasePrice:    big.NewInt(10),
		BidIncrement: big.NewInt(1),
		ListedAt:     s.t0.Add(-time.Hour),
		ExpiresAt:    t,
	})
	s.Require().NoError(err)
	_, _, err = s.bids.Append(s.ctx, domain.Bid{
		OrderID:  o.ID,
		Bidder:   common.HexToAddress("0xb1"),
		Amount:   big.NewInt(11),
		PlacedAt: s.t0.Add(-time.Minute),
	}, nil)
	s.Require().NoError(err)
	_, err = s.orders.Close(s.ctx, o.ID, domain.Closure{ClosedAt: t, Outcome: domain.OutcomeUnsold}, nil)
	s.Require().NoError(err)
	return o.ID
}

func (s *ArchiverTestSuite) records(path string) []ArchivedOrder {
	var out []ArchivedOrder
	sc := bufio.NewScanner(bytes.NewReader(s.blobs.objects[path]))
	for sc.Scan() {
		var rec ArchivedOrder
		s.Require().NoError(json.Unmarshal(sc.Bytes(), &rec))
		out = append(out, rec)
	}
	return out
}

func (s *ArchiverTestSuite) TestArchivesInWindowsWithoutOverlap() {
	first := s.closeAt(s.t0.Add(time.Hour))
	second := s.closeAt(s.t0.Add(3 * time.Hour))

	n, err := s.archiver.ArchiveClosedOrders(s.ctx, s.t0.Add(2*time.Hour))
	s.Require().NoError(err)
	s.Require().Equal(int64(1), n)

	key1 := archiveKey(time.Time{}, s.t0.Add(2*time.Hour))
	recs := s.records(key1)
	s.Require().Len(recs, 1)
	s.Require().Equal(first, recs[0].Order.ID)
	s.Require().Len(recs[0].Bids, 1)
	s.Require().Equal("11", recs[0].Bids[0].Amount.String())

	// Nothing new before the watermark.
	n, err = s.archiver.ArchiveClosedOrders(s.ctx, s.t0.Add(2*time.Hour))
	s.Require().NoError(err)
	s.Require().Zero(n)

	n, err = s.archiver.ArchiveClosedOrders(s.ctx, s.t0.Add(4*time.Hour))
	s.Require().NoError(err)
	s.Require().Equal(int64(1), n)
	recs = s.records(archiveKey(s.t0.Add(2*time.Hour), s.t0.Add(4*time.Hour)))
	s.Require().Len(recs, 1)
	s.Require().Equal(second, recs[0].Order.ID)

	entries, err := s.audit.List(s.ctx, domain.ListOpts{})
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Require().Equal("archive.orders", entries[0].Event)
}

func (s *ArchiverTestSuite) TestSkipsOpenOrdersAndEmptyWindows() {
	_, err := s.orders.Create(s.ctx, domain.Order{Kind: domain.OrderKindFixedPrice, BasePrice: big.NewInt(5), ListedAt: s.t0})
	s.Require().NoError(err)

	n, err := s.archiver.ArchiveClosedOrders(s.ctx, s.t0.Add(time.Hour))
	s.Require().NoError(err)
	s.Require().Zero(n)
	s.Require().Empty(s.blobs.objects)
}

func TestArchiveKeyRoundTrip(t *testing.T) {
	since := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	until := since.Add(36 * time.Hour)
	gotSince, gotUntil, ok := parseArchiveKey(archiveKey(since, until))
	if !ok || !gotSince.Equal(since) || !gotUntil.Equal(until) {
		t.Fatalf("parseArchiveKey(%q) = %v %v %v", archiveKey(since, until), gotSince, gotUntil, ok)
	}
	if _, _, ok := parseArchiveKey("archive/orders/garbage.jsonl"); ok {
		t.Fatal("garbage key parsed")
	}
}
