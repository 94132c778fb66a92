package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
)

// Boundary — платёжная граница сервиса: создание intent'а у шлюза, проверка
// клиентских подтверждений и обработка webhook'ов. Источник истины о факте
// оплаты — только асинхронный webhook шлюза.
type Boundary struct {
	uow      domain.UnitOfWork
	gateway  domain.PaymentGateway
	verifier domain.SignatureVerifier
	logger   *log.Entry
}

// NewBoundary создаёт платёжную границу.
func NewBoundary(uow domain.UnitOfWork, gw domain.PaymentGateway, verifier domain.SignatureVerifier, logger *log.Entry) *Boundary {
	if logger == nil {
		logger = log.WithField("component", "payment-boundary")
	}
	return &Boundary{uow: uow, gateway: gw, verifier: verifier, logger: logger}
}

// CreateIntent создаёт intent у шлюза и сохраняет Payment(created). Повторный
// запрос по заказу с уже существующим платежом завершается
// ErrPaymentAlreadyExists: вызывающая сторона не ретраит. Сбои шлюза
// оборачиваются в ErrGatewayUnavailable и ретраябельны.
func (b *Boundary) CreateIntent(ctx context.Context, orderID string, amountMinor int64, currency string) (string, error) {
	var gatewayRef string
	err := b.uow.Within(ctx, func(r domain.Repositories) error {
		now := time.Now().UTC()
		p := domain.Payment{
			ID:          uuid.NewString(),
			OrderID:     orderID,
			Status:      domain.PaymentStatusCreated,
			AmountMinor: amountMinor,
			Currency:    currency,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		// Уникальность order_id — claim: из конкурентных дублей до шлюза
		// доходит ровно один, остальные получают ErrPaymentAlreadyExists до
		// создания remote order. Сбой шлюза откатывает единицу работы вместе
		// с claim'ом.
		if createErr := r.Payments.Create(p); createErr != nil {
			if errors.Is(createErr, domain.ErrPaymentAlreadyExists) {
				return fmt.Errorf("%w: order %s", domain.ErrPaymentAlreadyExists, orderID)
			}
			return createErr
		}

		ref, gwErr := b.gateway.CreateRemoteOrder(ctx, amountMinor, currency, orderID)
		if gwErr != nil {
			return fmt.Errorf("create remote order for %s: %w", orderID, gwErr)
		}
		p.GatewayOrderRef = ref
		if saveErr := r.Payments.Save(p); saveErr != nil {
			return saveErr
		}

		gatewayRef = ref
		event := kafka.PaymentInitiatedEvent{OrderID: orderID, GatewayRef: ref}
		return b.enqueue(r, orderID, kafka.EventTypePaymentInitiated, event)
	})
	if err != nil {
		return "", err
	}

	b.logger.WithFields(log.Fields{
		"order_id":    orderID,
		"gateway_ref": gatewayRef,
	}).Info("payment intent created")
	return gatewayRef, nil
}

// VerifySignature проверяет клиентское подтверждение оплаты. Несовпадение
// подписи — жёсткий отказ ErrSignatureMismatch (tampering или ошибка клиента),
// совпадение переводит платёж в verified. Для перевода заказа в placed этого
// недостаточно: заказ двигает только webhook.
func (b *Boundary) VerifySignature(ctx context.Context, gatewayRef, paymentRef, signature string) error {
	if !b.verifier.VerifyPayment(gatewayRef, paymentRef, signature) {
		return fmt.Errorf("%w: gateway_ref %s", domain.ErrSignatureMismatch, gatewayRef)
	}

	return b.uow.Within(ctx, func(r domain.Repositories) error {
		p, err := r.Payments.GetByGatewayRef(gatewayRef)
		if err != nil {
			return err
		}
		if p.Status != domain.PaymentStatusCreated {
			// verified и дальше: подпись уже принималась, повтор — no-op.
			return nil
		}
		p.Status = domain.PaymentStatusVerified
		p.GatewayPaymentID = paymentRef
		p.UpdatedAt = time.Now().UTC()
		return r.Payments.Save(p)
	})
}

// OnWebhookCaptured обрабатывает подтверждение оплаты от шлюза. Повторный
// webhook для уже оплаченного платежа — no-op без дублирующего события.
// Подпись webhook'а проверяется до вызова этого метода.
func (b *Boundary) OnWebhookCaptured(ctx context.Context, gatewayRef, paymentRef, method string) error {
	return b.uow.Within(ctx, func(r domain.Repositories) error {
		p, err := r.Payments.GetByGatewayRef(gatewayRef)
		if err != nil {
			return err
		}
		if !p.Status.Before(domain.PaymentStatusPaid) {
			b.logger.WithFields(log.Fields{
				"order_id":    p.OrderID,
				"gateway_ref": gatewayRef,
			}).Debug("duplicate capture webhook ignored")
			return nil
		}

		p.Status = domain.PaymentStatusPaid
		p.GatewayPaymentID = paymentRef
		p.Method = method
		p.UpdatedAt = time.Now().UTC()
		if err := r.Payments.Save(p); err != nil {
			return err
		}

		event := kafka.PaymentSuccessEvent{OrderID: p.OrderID, PaymentRef: paymentRef, Method: method}
		return b.enqueue(r, p.OrderID, kafka.EventTypePaymentConfirmed, event)
	})
}

// Refund — компенсация оплаты при отмене заказа. Возврат через шлюз делается
// только если деньги реально двигались (verified/paid); для более ранних
// статусов шлюз не зовётся, но событие payment.refunded публикуется в любом
// случае: сага ждёт этот сигнал независимо от того, были ли деньги.
func (b *Boundary) Refund(ctx context.Context, orderID string) error {
	return b.uow.Within(ctx, func(r domain.Repositories) error {
		// Claim до похода в шлюз: из конкурентных доставок одной отмены refund
		// в шлюзе делает только та, что произвела переход в refunded. Сбой
		// шлюза откатывает единицу работы, claim снимается вместе с ней.
		prev, claimed, err := r.Payments.ClaimRefund(orderID)
		if err != nil {
			if errors.Is(err, domain.ErrPaymentNotFound) {
				// Платежа никогда не было: шлюз не зовём, но сигнал для саги обязателен.
				event := kafka.PaymentRefundedEvent{OrderID: orderID}
				return b.enqueue(r, orderID, kafka.EventTypePaymentRefunded, event)
			}
			return err
		}
		if !claimed {
			b.logger.WithField("order_id", orderID).Debug("payment already refunded")
			return nil
		}

		refundRef := ""
		if prev.Status == domain.PaymentStatusVerified || prev.Status == domain.PaymentStatusPaid {
			ref, refundErr := b.gateway.Refund(ctx, prev.GatewayPaymentID, prev.AmountMinor)
			if refundErr != nil {
				return fmt.Errorf("refund payment for %s: %w", orderID, refundErr)
			}
			refundRef = ref
		}

		event := kafka.PaymentRefundedEvent{
			OrderID:    orderID,
			PaymentRef: prev.GatewayPaymentID,
			RefundRef:  refundRef,
		}
		return b.enqueue(r, orderID, kafka.EventTypePaymentRefunded, event)
	})
}

func (b *Boundary) enqueue(r domain.Repositories, orderID, eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	_, err = r.Outbox.Enqueue(domain.OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: "payment",
		AggregateID:   orderID,
		EventType:     eventType,
		Topic:         kafka.TopicPaymentEvents,
		Payload:       data,
	})
	return err
}
