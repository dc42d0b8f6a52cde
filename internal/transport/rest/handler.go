package rest

import (
	"context"
	"io"
	"net/http"
	"time"

	"customs-ledger/internal/domain"
	"customs-ledger/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type LedgerService interface {
	CreateDistribution(ctx context.Context, in service.CreateDistributionInput) (*service.DistributionResult, error)
	DeleteDistribution(ctx context.Context, id string) (*domain.IncomingPayment, error)
	ResetAllDistributions(ctx context.Context, actor string) (*service.ResetResult, error)
	ListDistributionsByPayment(ctx context.Context, paymentID string) ([]domain.PaymentDistribution, error)
	ListDistributionsByProcedure(ctx context.Context, reference string) ([]domain.DistributionView, error)

	CreatePayment(ctx context.Context, in service.CreatePaymentInput) (*domain.IncomingPayment, error)
	GetPayment(ctx context.Context, id string) (*domain.IncomingPayment, error)
	ListPayments(ctx context.Context, status string) ([]domain.IncomingPayment, error)
	DeletePayment(ctx context.Context, id string) error
}

type EnrichmentService interface {
	Preview(ctx context.Context, fileName string, r io.Reader) (*domain.ReconciliationPreview, error)
	Apply(ctx context.Context, updates []domain.ProcedureUpdate) []domain.ApplyResult
}

type ReportGenerator interface {
	Generate(ctx context.Context, format service.ReportFormat) (*service.RenderedReport, error)
}

type ReportExporter interface {
	StartExport(ctx context.Context, format string, userID int64) (string, error)
}

// ResetNotifier is told after the ledger has been wiped.
type ResetNotifier interface {
	BroadcastLedgerReset(ctx context.Context, removed int64) error
}

type Options struct {
	MaxUploadBytes int64
	ExportPrefix   string
}

type Handler struct {
	ledger     LedgerService
	enrichment EnrichmentService
	reports    ReportGenerator
	exporter   ReportExporter
	exportList ExportListService
	resets     ResetNotifier
	opts       Options
}

func NewHandler(ledger LedgerService, enrichment EnrichmentService, reports ReportGenerator, exporter ReportExporter, exportList ExportListService, resets ResetNotifier, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	if opts.ExportPrefix == "" {
		opts.ExportPrefix = "report_export"
	}
	return &Handler{
		ledger:     ledger,
		enrichment: enrichment,
		reports:    reports,
		exporter:   exporter,
		exportList: exportList,
		resets:     resets,
		opts:       opts,
	}
}

func (h *Handler) InitRouterWithAuth(authMiddleware func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)

	if authMiddleware != nil {
		r.Use(authMiddleware)
	}

	r.Route("/payment-distributions", func(r chi.Router) {
		r.Post("/", h.createDistribution)
		r.Get("/payment/{paymentId}", h.listDistributionsByPayment)
		// references may contain "/", so the rest of the path is the reference
		r.Get("/procedure/*", h.listDistributionsByProcedure)
		r.Delete("/{id}", h.deleteDistribution)
	})
	r.Delete("/all-payment-distributions/reset", h.resetDistributions)

	r.Route("/incoming-payments", func(r chi.Router) {
		r.Post("/", h.createPayment)
		r.Get("/", h.listPayments)
		r.Get("/{id}", h.getPayment)
		r.Delete("/{id}", h.deletePayment)
	})

	r.Route("/enrichment", func(r chi.Router) {
		r.Post("/preview", h.previewEnrichment)
		r.Post("/apply", h.applyEnrichment)
	})

	r.Get("/payment-report/generate", h.generateReport)
	r.Post("/payment-report/exports", h.exportReport)

	r.Route("/exports", func(r chi.Router) {
		r.Get("/", h.listExports)
		r.Get("/{export_id}", h.getExport)
	})

	return r
}
