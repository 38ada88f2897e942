package handlers

import (
	"io"
	"net/http"

	"github.com/autometric/autometric/internal/metrics"
	"github.com/autometric/autometric/internal/webhook"
)

// GitHub webhook delivery headers.
const (
	headerEvent     = "X-GitHub-Event"
	headerSignature = "X-Hub-Signature-256"
)

// GitHubWebhook verifies the delivery signature over the raw body and
// dispatches the payload. Verification fails closed: no secret, no body, or
// a mismatched signature all reject before any handler runs.
func (h *Handlers) GitHubWebhook(w http.ResponseWriter, r *http.Request) {
	metrics.WebhooksReceived.Add(1)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		metrics.WebhooksRejected.Add(1)
		h.writeError(w, http.StatusBadRequest, "reading request body", err)
		return
	}

	claimed := r.Header.Get(headerSignature)
	if !webhook.VerifySignature([]byte(h.deps.WebhookSecret), body, claimed) {
		metrics.WebhooksRejected.Add(1)
		h.writeError(w, http.StatusUnauthorized, "invalid signature", nil)
		return
	}

	event := r.Header.Get(headerEvent)
	result, err := h.deps.Webhooks.Dispatch(r.Context(), event, body)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "webhook processing failed", err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}
