package server

import (
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	coreevents "launchpad/core/events"
	"launchpad/native/ido"
)

var (
	purchasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idod_purchases_total",
		Help: "Settled purchases by event type.",
	}, []string{"event"})

	purchaseFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idod_purchase_failures_total",
		Help: "Rejected purchases by failure reason.",
	}, []string{"reason"})

	soldOutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idod_projects_sold_out_total",
		Help: "Projects whose supply has been exhausted.",
	})
)

func errorLabel(err error) string {
	switch {
	case errors.Is(err, ido.ErrProjectNotFound):
		return "project_not_found"
	case errors.Is(err, ido.ErrNotStarted):
		return "not_started"
	case errors.Is(err, ido.ErrEnded):
		return "ended"
	case errors.Is(err, ido.ErrZeroAmount):
		return "zero_amount"
	case errors.Is(err, ido.ErrSoldOut):
		return "sold_out"
	case errors.Is(err, ido.ErrUnsupportedCurrency):
		return "unsupported_currency"
	case errors.Is(err, ido.ErrInsufficientPayment):
		return "insufficient_payment"
	case errors.Is(err, ido.ErrInvalidPriceFeed):
		return "invalid_price_feed"
	case errors.Is(err, ido.ErrTransferFailed):
		return "transfer_failed"
	default:
		return "internal"
	}
}

// Emitter logs engine events and keeps the purchase counters current. It is
// wired into the engine by the daemon.
type Emitter struct {
	logger *slog.Logger
}

// NewEmitter constructs an emitter that logs through the supplied logger.
func NewEmitter(logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{logger: logger}
}

// Emit implements events.Emitter.
func (e *Emitter) Emit(evt coreevents.Event) {
	if evt == nil {
		return
	}
	switch typed := evt.(type) {
	case coreevents.IDOProjectAdded:
		e.logger.Info("project added", "projectId", typed.ProjectID, "name", typed.Name)
	case coreevents.IDOTokenBought:
		purchasesTotal.WithLabelValues(evt.EventType()).Inc()
		e.logger.Info("token bought", "projectId", typed.ProjectID,
			"buyer", formatAddress(typed.Buyer),
			"payToken", formatAddress(typed.PayToken),
			"amount", formatAmount(typed.Amount))
	case coreevents.IDOTokenSoldOut:
		soldOutTotal.Inc()
		e.logger.Info("project sold out", "projectId", typed.ProjectID)
	default:
		e.logger.Info("engine event", "type", evt.EventType())
	}
}
