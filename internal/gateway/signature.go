package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// HMACVerifier проверяет подписи шлюза: клиентское подтверждение оплаты
// подписывается ключевым секретом, webhook — отдельным webhook-секретом.
type HMACVerifier struct {
	keySecret     []byte
	webhookSecret []byte
}

// NewHMACVerifier создаёт verifier с заданными секретами.
func NewHMACVerifier(keySecret, webhookSecret string) *HMACVerifier {
	return &HMACVerifier{
		keySecret:     []byte(keySecret),
		webhookSecret: []byte(webhookSecret),
	}
}

// VerifyPayment сверяет подпись пары (gatewayRef, paymentRef): шлюз подписывает
// строку "gatewayRef|paymentRef" ключевым секретом.
func (v *HMACVerifier) VerifyPayment(gatewayRef, paymentRef, signature string) bool {
	expected := signHex(v.keySecret, []byte(gatewayRef+"|"+paymentRef))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhook сверяет подпись сырого тела webhook-запроса.
func (v *HMACVerifier) VerifyWebhook(body []byte, signature string) bool {
	expected := signHex(v.webhookSecret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SignPayment считает подпись подтверждения оплаты. Используется тестами и
// фейковым шлюзом.
func (v *HMACVerifier) SignPayment(gatewayRef, paymentRef string) string {
	return signHex(v.keySecret, []byte(gatewayRef+"|"+paymentRef))
}

// SignWebhook считает подпись тела webhook'а.
func (v *HMACVerifier) SignWebhook(body []byte) string {
	return signHex(v.webhookSecret, body)
}

func signHex(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

var _ domain.SignatureVerifier = (*HMACVerifier)(nil)
