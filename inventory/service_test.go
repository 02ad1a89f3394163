package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giygas/healthpost-api/store"
)

func newTestService(t *testing.T, policy ShortfallPolicy) (*Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	stamper := ClockStamper{Now: func() time.Time { return testStamp.Ad }}
	return NewService(mem, stamper, Options{Policy: policy, NewID: sequentialIDs("id-")}), mem
}

func seed(t *testing.T, mem *store.Memory, lots ...Lot) {
	t.Helper()
	values := make(map[string]any, len(lots))
	for _, l := range lots {
		values[LotPath(l.StoreID, l.ID)] = l
	}
	require.NoError(t, mem.Update(context.Background(), values))
}

func TestService_LotsRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t, PolicyBlock)
	seed(t, mem, lot("b", "Zinc", 5, "1.25", date("2024-09-01")), lot("a", "ORS", 3, "4", nil))

	lots, err := svc.Lots(ctx, "main")
	require.NoError(t, err)
	require.Len(t, lots, 2)
	assert.Equal(t, "a", lots[0].ID)
	assert.True(t, dec("6.25").Equal(lots[1].TotalAmount))
	require.NotNil(t, lots[1].ExpiryDateAd)
	assert.True(t, date("2024-09-01").Equal(*lots[1].ExpiryDateAd))

	empty, err := svc.Lots(ctx, "branch")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = svc.Lots(ctx, "")
	assert.ErrorIs(t, err, store.ErrInvalidPath)
}

func TestService_IssueBlockWritesNothing(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t, PolicyBlock)
	seed(t, mem, lot("a", "ORS", 3, "4", nil))

	batch, err := svc.Issue(ctx, "main", []IssueRequest{{Name: "ORS", Quantity: 5, ItemType: Expendable}}, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShortfall))

	var se *ShortfallError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 2.0, se.Shortfalls[0].Shortfall)
	assert.Contains(t, err.Error(), "ORS short by 2")
	assert.True(t, batch.Short())

	lots, _ := svc.Lots(ctx, "main")
	assert.Equal(t, 3.0, lots[0].CurrentQuantity)
}

func TestService_IssuePartialApplies(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t, PolicyBlock)
	seed(t, mem, lot("a", "ORS", 3, "4", nil))

	batch, err := svc.Issue(ctx, "main", []IssueRequest{{Name: "ORS", Quantity: 5, ItemType: Expendable}}, PolicyPartial)
	require.NoError(t, err)
	assert.Equal(t, 2.0, batch.Shortfalls[0].Shortfall)

	lots, _ := svc.Lots(ctx, "main")
	assert.Equal(t, 0.0, lots[0].CurrentQuantity)
	assert.Equal(t, ProvenanceIssued, lots[0].Provenance)
	assert.Equal(t, "2081-01-01", lots[0].LastUpdateDateBs)
}

func TestService_IssueEmpty(t *testing.T) {
	svc, _ := newTestService(t, PolicyBlock)
	_, err := svc.Issue(context.Background(), "main", nil, "")
	assert.ErrorIs(t, err, ErrEmptyRequest)
}

func TestService_ReceiveAndImport(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, PolicyBlock)

	mutations, err := svc.Receive(ctx, []ReceiptLine{{ItemName: "Gauze", Quantity: 100, Rate: dec("5"), ItemType: Expendable, StoreID: "main"}})
	require.NoError(t, err)
	require.Len(t, mutations, 1)
	assert.Equal(t, "id-1", mutations[0].Lot.ID)

	_, err = svc.Import(ctx, []ReceiptLine{{ItemName: "gauze", Quantity: 10, Rate: dec("5"), ItemType: Expendable, StoreID: "main"}})
	require.NoError(t, err)

	lots, err := svc.AllLots(ctx)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, 110.0, lots[0].CurrentQuantity)
	assert.True(t, dec("550").Equal(lots[0].TotalAmount))
	assert.Equal(t, ProvenanceImported, lots[0].Provenance)
}

func TestService_ApprovalFlow(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t, PolicyBlock)

	req, err := svc.SubmitRequest(ctx, Request{
		Kind:         RequestReceipt,
		StoreID:      "main",
		ReceiptLines: []ReceiptLine{{ItemName: "Gauze", Quantity: 100, Rate: dec("5"), ItemType: Expendable}},
		RequestedBy:  "nurse",
	})
	require.NoError(t, err)
	assert.Equal(t, "id-1", req.ID)
	assert.Equal(t, StatusPending, req.Status)
	assert.Equal(t, "main", req.ReceiptLines[0].StoreID)

	lots, _ := svc.Lots(ctx, "main")
	assert.Empty(t, lots, "pending requests do not touch stock")

	entry, err := svc.Approve(ctx, req.ID, "in-charge")
	require.NoError(t, err)
	assert.Equal(t, "id-1", entry.RequestID)
	require.Len(t, entry.Lines, 1)
	assert.True(t, dec("500").Equal(entry.Total))

	stored, err := svc.Request(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, stored.Status)
	assert.Equal(t, "in-charge", stored.ApprovedBy)
	require.NotNil(t, stored.DecidedAt)

	_, ok, err := mem.Read(ctx, LedgerPath(req.ID))
	require.NoError(t, err)
	assert.True(t, ok)

	lots, _ = svc.Lots(ctx, "main")
	require.Len(t, lots, 1)
	assert.Equal(t, 100.0, lots[0].CurrentQuantity)

	_, err = svc.Approve(ctx, req.ID, "in-charge")
	assert.ErrorIs(t, err, ErrRequestClosed)
}

func TestService_ApproveIssueBlocked(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t, PolicyBlock)
	seed(t, mem, lot("a", "ORS", 3, "4", nil))

	req, err := svc.SubmitRequest(ctx, Request{
		Kind:       RequestIssue,
		StoreID:    "main",
		IssueLines: []IssueRequest{{Name: "ORS", Quantity: 5, ItemType: Expendable}},
	})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, req.ID, "in-charge")
	assert.ErrorIs(t, err, ErrShortfall)

	stored, _ := svc.Request(ctx, req.ID)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestService_Reject(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, PolicyBlock)

	req, err := svc.SubmitRequest(ctx, Request{
		Kind:       RequestIssue,
		StoreID:    "main",
		IssueLines: []IssueRequest{{Name: "ORS", Quantity: 5, ItemType: Expendable}},
	})
	require.NoError(t, err)

	rejected, err := svc.Reject(ctx, req.ID, "in-charge", "duplicate")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.Equal(t, "duplicate", rejected.Note)

	_, err = svc.Reject(ctx, req.ID, "in-charge", "")
	assert.ErrorIs(t, err, ErrRequestClosed)

	_, err = svc.Approve(ctx, "missing", "in-charge")
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestService_SubmitValidatesKind(t *testing.T) {
	svc, _ := newTestService(t, PolicyBlock)
	_, err := svc.SubmitRequest(context.Background(), Request{Kind: RequestReceipt})
	assert.ErrorIs(t, err, ErrEmptyRequest)

	_, err = svc.SubmitRequest(context.Background(), Request{Kind: "transfer"})
	assert.Error(t, err)
}

func TestNewServiceDefaults(t *testing.T) {
	svc := NewService(store.NewMemory(), nil, Options{Policy: "bogus"})
	assert.Equal(t, PolicyBlock, svc.Policy())
}
