package payments

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/odyssey-erp/docledger/internal/documents"
	"github.com/odyssey-erp/docledger/internal/platform/db/dbtest"
	"github.com/odyssey-erp/docledger/internal/shared"
)

// PaymentsPostgresSuite runs payment application against a real database.
type PaymentsPostgresSuite struct {
	suite.Suite
	ctx       context.Context
	companyID int64
	documents *documents.Service
	payments  *Service
}

func TestPaymentsPostgresSuite(t *testing.T) {
	suite.Run(t, new(PaymentsPostgresSuite))
}

func (s *PaymentsPostgresSuite) SetupTest() {
	pool := dbtest.Connect(s.T())
	s.ctx = context.Background()
	s.companyID = dbtest.CompanyID()
	s.documents = documents.NewService(documents.NewRepository(pool), nil, nil)
	s.payments = NewService(NewRepository(pool), nil, nil)
}

func (s *PaymentsPostgresSuite) sentInvoice(total string) documents.Document {
	t := s.T()
	doc, err := s.documents.Create(s.ctx, s.companyID, documents.CreateInput{
		Type:  documents.TypeInvoice,
		Lines: []documents.LineInput{{Description: "Consulting", Quantity: dec("1"), UnitPrice: dec(total)}},
	})
	require.NoError(t, err)
	doc, err = s.documents.Transition(s.ctx, s.companyID, doc.ID, documents.StatusSent, 0)
	require.NoError(t, err)
	return doc
}

// applyRetrying retries serialization failures the way a client would.
func (s *PaymentsPostgresSuite) applyRetrying(documentID int64, input Input) error {
	var err error
	for attempt := 0; attempt < 50; attempt++ {
		_, err = s.payments.ApplyPayment(s.ctx, s.companyID, documentID, input)
		if !errors.Is(err, shared.ErrTransient) {
			return err
		}
	}
	return err
}

func (s *PaymentsPostgresSuite) TestConcurrentPaymentsNeverOverpay() {
	t := s.T()
	doc := s.sentInvoice("100.00")

	const workers = 10
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.applyRetrying(doc.ID, Input{Amount: dec("20.00"), Method: MethodCard})
		}()
	}
	wg.Wait()

	var applied, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			applied++
		case errors.Is(err, shared.ErrExceedsBalance), errors.Is(err, shared.ErrAlreadyCancelled), errors.Is(err, shared.ErrIllegalTransition):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 5, applied)
	require.Equal(t, 5, rejected)

	stored, err := s.documents.Get(s.ctx, s.companyID, doc.ID)
	require.NoError(t, err)
	require.Equal(t, documents.StatusPaid, stored.Status)
	require.True(t, stored.Outstanding.IsZero())
	require.Equal(t, "100.00", stored.PaidAmount.StringFixed(2))

	list, err := s.payments.ListPayments(s.ctx, s.companyID, doc.ID)
	require.NoError(t, err)
	require.Len(t, list, 5)
}

func (s *PaymentsPostgresSuite) TestIdempotencyKeyAppliesOnce() {
	t := s.T()
	doc := s.sentInvoice("50.00")

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.applyRetrying(doc.ID, Input{Amount: dec("10.00"), IdempotencyKey: "checkout-1"})
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	list, err := s.payments.ListPayments(s.ctx, s.companyID, doc.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	stored, err := s.documents.Get(s.ctx, s.companyID, doc.ID)
	require.NoError(t, err)
	require.Equal(t, "40.00", stored.Outstanding.StringFixed(2))
}
