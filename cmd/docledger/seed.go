package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/docledger/internal/app"
	"github.com/odyssey-erp/docledger/internal/documents"
	"github.com/odyssey-erp/docledger/internal/inventory"
	"github.com/odyssey-erp/docledger/internal/loyalty"
	"github.com/odyssey-erp/docledger/internal/payments"
	"github.com/odyssey-erp/docledger/internal/platform/db"
	"github.com/odyssey-erp/docledger/internal/shared"
)

type documentSeeder interface {
	Create(ctx context.Context, companyID int64, input documents.CreateInput) (documents.Document, error)
	Transition(ctx context.Context, companyID, id int64, target documents.Status, actorID int64) (documents.Document, error)
}

type paymentSeeder interface {
	ApplyPayment(ctx context.Context, companyID, documentID int64, input payments.Input) (payments.Result, error)
}

type stockSeeder interface {
	CreateItem(ctx context.Context, companyID int64, input inventory.ItemInput) (inventory.Item, error)
	RecordMovement(ctx context.Context, companyID, itemID int64, input inventory.MovementInput) (inventory.Movement, inventory.Item, error)
}

type loyaltySeeder interface {
	CreateClient(ctx context.Context, companyID int64, name string) (loyalty.Client, error)
	GrantPoints(ctx context.Context, companyID, clientID, points int64, expiresAt *time.Time, description string) (loyalty.Movement, loyalty.Client, error)
}

// seeder writes a small demo data set for one company through the services,
// so every row it creates went through the same rules as API traffic.
type seeder struct {
	documents documentSeeder
	payments  paymentSeeder
	stock     stockSeeder
	loyalty   loyaltySeeder
	out       io.Writer
	now       time.Time
}

func (s seeder) run(ctx context.Context, companyID int64) error {
	fmt.Fprintln(s.out, "→ Seeding loyalty client...")
	client, err := s.loyalty.CreateClient(ctx, companyID, "Acme Retail")
	if err != nil {
		return fmt.Errorf("seed client: %w", err)
	}
	expires := s.now.AddDate(1, 0, 0)
	if _, _, err := s.loyalty.GrantPoints(ctx, companyID, client.ID, 250, &expires, "welcome bonus"); err != nil {
		return fmt.Errorf("seed points: %w", err)
	}

	fmt.Fprintln(s.out, "→ Seeding stock...")
	item, err := s.stock.CreateItem(ctx, companyID, inventory.ItemInput{SKU: "WIDGET-01", Name: "Widget"})
	if err != nil {
		return fmt.Errorf("seed item: %w", err)
	}
	moves := []inventory.MovementInput{
		{Type: inventory.MovementIn, Delta: decimal.NewFromInt(100), Reason: "opening stock", IdempotencyKey: fmt.Sprintf("seed-%d-in", companyID)},
		{Type: inventory.MovementOut, Delta: decimal.NewFromInt(-12), Reason: "first shipment", IdempotencyKey: fmt.Sprintf("seed-%d-out", companyID)},
	}
	for _, mv := range moves {
		if _, _, err := s.stock.RecordMovement(ctx, companyID, item.ID, mv); err != nil {
			return fmt.Errorf("seed movement %s: %w", mv.Type, err)
		}
	}

	fmt.Fprintln(s.out, "→ Seeding invoice and payment...")
	doc, err := s.documents.Create(ctx, companyID, documents.CreateInput{
		Type:      documents.TypeInvoice,
		ClientID:  client.ID,
		Currency:  "EUR",
		IssueDate: s.now,
		DueDate:   s.now.AddDate(0, 0, 30),
		Lines: []documents.LineInput{{
			Description: "Widget",
			Quantity:    decimal.NewFromInt(12),
			UnitPrice:   decimal.RequireFromString("19.90"),
			TaxPct:      decimal.NewFromInt(20),
		}},
	})
	if err != nil {
		return fmt.Errorf("seed invoice: %w", err)
	}
	if doc, err = s.documents.Transition(ctx, companyID, doc.ID, documents.StatusSent, 0); err != nil {
		return fmt.Errorf("send invoice: %w", err)
	}
	half := doc.Total.Div(decimal.NewFromInt(2)).Round(2)
	if _, err := s.payments.ApplyPayment(ctx, companyID, doc.ID, payments.Input{
		Amount:         half,
		Method:         payments.MethodTransfer,
		PaidAt:         s.now,
		IdempotencyKey: fmt.Sprintf("seed-%d-payment", companyID),
	}); err != nil {
		return fmt.Errorf("seed payment: %w", err)
	}

	fmt.Fprintln(s.out, "✓ Seed complete at", s.now.Format(time.RFC3339))
	return nil
}

func newSeedCommand() *cobra.Command {
	var companyID int64
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write demo documents, payments, stock and loyalty data for one company",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if companyID <= 0 {
				return fmt.Errorf("--company must be positive")
			}
			cfg, err := app.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := app.NewLogger(cfg)
			pool, err := db.New(cmd.Context(), cfg.PGDSN, db.Options{MaxConns: 2})
			if err != nil {
				return err
			}
			defer pool.Close()

			auditLogger := shared.NewAuditLogger(pool)
			s := seeder{
				documents: documents.NewService(documents.NewRepository(pool), auditLogger, logger),
				payments:  payments.NewService(payments.NewRepository(pool), auditLogger, logger),
				stock:     inventory.NewService(inventory.NewRepository(pool), auditLogger, shared.NewIdempotencyStore(pool), nil, logger),
				loyalty:   loyalty.NewService(loyalty.NewRepository(pool), auditLogger, logger),
				out:       cmd.OutOrStdout(),
				now:       time.Now().UTC(),
			}
			return s.run(cmd.Context(), companyID)
		},
	}
	cmd.Flags().Int64Var(&companyID, "company", 1, "company to seed")
	return cmd
}
