package domain

import "context"

// PaymentGateway описывает внешний платёжный шлюз. Суммы на этой границе —
// только целые minor units. Временные сбои шлюза оборачиваются в
// ErrGatewayUnavailable и ретраятся вызывающей стороной.
type PaymentGateway interface {
	// CreateRemoteOrder создаёт заказ на стороне шлюза и возвращает его ссылку.
	CreateRemoteOrder(ctx context.Context, amountMinor int64, currency, receipt string) (string, error)
	// Refund инициирует возврат по платежу и возвращает ссылку возврата.
	Refund(ctx context.Context, paymentRef string, amountMinor int64) (string, error)
}

// SignatureVerifier проверяет HMAC-подписи шлюза: клиентское подтверждение
// оплаты и тело входящего webhook'а.
type SignatureVerifier interface {
	// VerifyPayment проверяет подпись пары (gatewayRef, paymentRef).
	VerifyPayment(gatewayRef, paymentRef, signature string) bool
	// VerifyWebhook проверяет подпись сырого тела webhook-запроса.
	VerifyWebhook(body []byte, signature string) bool
}

// UnitOfWork выполняет бизнес-мутацию и запись в outbox в одной атомарной
// единице работы: если fn вернула ошибку, не сохраняется ничего. Вызывающий
// код никогда не управляет транзакцией напрямую.
type UnitOfWork interface {
	Within(ctx context.Context, fn func(r Repositories) error) error
}
