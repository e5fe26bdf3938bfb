package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/docledger/internal/documents"
	jobmetrics "github.com/odyssey-erp/docledger/internal/jobs"
	"github.com/odyssey-erp/docledger/internal/shared"
)

// DocumentReader loads the document a notification refers to.
type DocumentReader interface {
	Get(ctx context.Context, companyID, id int64) (documents.Document, error)
}

// Message is an outgoing notification.
type Message struct {
	CompanyID int64
	ClientID  int64
	Subject   string
	Body      string
}

// Sender delivers a composed message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log. It stands in until an SMTP relay is configured.
type LogSender struct {
	Logger *slog.Logger
}

// Send implements Sender.
func (s LogSender) Send(_ context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("document notification",
		slog.Int64("company_id", msg.CompanyID),
		slog.Int64("client_id", msg.ClientID),
		slog.String("subject", msg.Subject))
	return nil
}

// DocumentNotifyJob composes and sends the message for a status change.
type DocumentNotifyJob struct {
	Documents DocumentReader
	Sender    Sender
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Language  language.Tag
}

// NewDocumentNotifyJob builds the handler.
func NewDocumentNotifyJob(docs DocumentReader, sender Sender, logger *slog.Logger, metrics *jobmetrics.Metrics) *DocumentNotifyJob {
	return &DocumentNotifyJob{Documents: docs, Sender: sender, Logger: logger, Metrics: metrics, Language: language.English}
}

// Handle processes TaskDocumentNotify tasks.
func (j *DocumentNotifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Documents == nil || j.Sender == nil {
		return errors.New("document notify: handler not configured")
	}
	var payload DocumentNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics().Track(TaskDocumentNotify)

	doc, err := j.Documents.Get(ctx, payload.CompanyID, payload.DocumentID)
	if errors.Is(err, shared.ErrNotFound) {
		j.logger().Warn("document vanished before notification",
			slog.Int64("company_id", payload.CompanyID),
			slog.Int64("document_id", payload.DocumentID))
		return tracker.End(fmt.Errorf("%v: %w", err, asynq.SkipRetry))
	}
	if err != nil {
		return tracker.End(err)
	}
	if err := j.Sender.Send(ctx, j.Compose(doc, payload.Status)); err != nil {
		return tracker.End(err)
	}
	j.metrics().IncNotification(string(payload.Status))
	return tracker.End(nil)
}

// Compose renders the message for doc having reached status.
func (j *DocumentNotifyJob) Compose(doc documents.Document, status documents.Status) Message {
	p := message.NewPrinter(j.Language)
	label := documentLabel(doc.Type)
	msg := Message{CompanyID: doc.CompanyID, ClientID: doc.ClientID}
	total := j.amount(p, doc.Currency, doc.Total)
	switch status {
	case documents.StatusSent:
		msg.Subject = p.Sprintf("%s %s", label, doc.Number)
		msg.Body = p.Sprintf("Please find %s %s for %s, due %s.", label, doc.Number, total, doc.DueDate.Format("2006-01-02"))
	case documents.StatusPaid:
		msg.Subject = p.Sprintf("%s %s paid", label, doc.Number)
		msg.Body = p.Sprintf("We received %s in full settlement of %s %s. Thank you.", j.amount(p, doc.Currency, doc.PaidAmount), label, doc.Number)
	case documents.StatusCancelled:
		msg.Subject = p.Sprintf("%s %s cancelled", label, doc.Number)
		msg.Body = p.Sprintf("%s %s for %s has been cancelled.", label, doc.Number, total)
	default:
		msg.Subject = p.Sprintf("%s %s is now %s", label, doc.Number, status)
		msg.Body = p.Sprintf("%s %s for %s changed status to %s.", label, doc.Number, total, status)
	}
	return msg
}

func (j *DocumentNotifyJob) amount(p *message.Printer, code string, value decimal.Decimal) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return p.Sprintf("%.2f", value.InexactFloat64())
	}
	return p.Sprint(currency.Symbol(unit.Amount(value.InexactFloat64())))
}

func documentLabel(t documents.Type) string {
	switch t {
	case documents.TypeQuote:
		return "Quote"
	case documents.TypeCreditNote:
		return "Credit note"
	default:
		return "Invoice"
	}
}

func (j *DocumentNotifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDocumentNotify))
	}
	return slog.Default().With(slog.String("job", TaskDocumentNotify))
}

func (j *DocumentNotifyJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
