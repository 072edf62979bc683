package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/diewo77/go-policies/httpx"
	"github.com/diewo77/go-policies/internal/ledger"
)

// AcknowledgmentHandler serves the administrator's matrix view.
type AcknowledgmentHandler struct {
	ledger *ledger.Ledger
	log    *zap.Logger
}

func NewAcknowledgmentHandler(l *ledger.Ledger, log *zap.Logger) *AcknowledgmentHandler {
	return &AcknowledgmentHandler{ledger: l, log: log}
}

// Matrix lists every (user, policy) pair with its state.
func (h *AcknowledgmentHandler) Matrix(w http.ResponseWriter, r *http.Request) {
	rows, err := h.ledger.AllAcknowledgments(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, rows)
		return
	}
	page(w, r, h.log, http.StatusOK, "acknowledgments.html", map[string]any{"Rows": rows})
}
