package payment

import (
	"encoding/json"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// SignatureHeader — заголовок с HMAC-подписью тела webhook-запроса.
const SignatureHeader = "X-Gateway-Signature"

// webhookBody — формат уведомления шлюза.
type webhookBody struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			OrderRef  string `json:"order_id"`
			PaymentID string `json:"id"`
			Method    string `json:"method"`
		} `json:"payment"`
	} `json:"payload"`
}

// WebhookHandler принимает уведомления платёжного шлюза. Подпись проверяется
// до любой обработки: невалидная подпись отклоняется без побочных эффектов.
type WebhookHandler struct {
	boundary *Boundary
	verifier domain.SignatureVerifier
	logger   *log.Entry
}

// NewWebhookHandler создаёт HTTP-обработчик webhook'ов шлюза.
func NewWebhookHandler(boundary *Boundary, verifier domain.SignatureVerifier, logger *log.Entry) *WebhookHandler {
	if logger == nil {
		logger = log.WithField("component", "gateway-webhook")
	}
	return &WebhookHandler{boundary: boundary, verifier: verifier, logger: logger}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !h.verifier.VerifyWebhook(body, r.Header.Get(SignatureHeader)) {
		h.logger.Warn("webhook rejected: invalid signature")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var parsed webhookBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		h.logger.WithError(err).Warn("webhook rejected: malformed body")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch parsed.Event {
	case "payment.captured":
		err = h.boundary.OnWebhookCaptured(r.Context(),
			parsed.Payload.Payment.OrderRef,
			parsed.Payload.Payment.PaymentID,
			parsed.Payload.Payment.Method,
		)
	default:
		// Незнакомые события подтверждаем, чтобы шлюз не ретраил их вечно.
		h.logger.WithField("event", parsed.Event).Debug("webhook event ignored")
	}
	if err != nil {
		h.logger.WithError(err).WithField("event", parsed.Event).Error("webhook processing failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

var _ http.Handler = (*WebhookHandler)(nil)
