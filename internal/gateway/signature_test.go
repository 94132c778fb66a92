package gateway

import "testing"

func TestHMACVerifier_Payment(t *testing.T) {
	v := NewHMACVerifier("key-secret", "webhook-secret")

	sig := v.SignPayment("order_ref", "pay_1")
	if !v.VerifyPayment("order_ref", "pay_1", sig) {
		t.Fatal("valid payment signature rejected")
	}
	if v.VerifyPayment("order_ref", "pay_2", sig) {
		t.Fatal("signature for another payment must not verify")
	}
	if v.VerifyPayment("other_ref", "pay_1", sig) {
		t.Fatal("signature for another order must not verify")
	}
	if v.VerifyPayment("order_ref", "pay_1", "") {
		t.Fatal("empty signature must not verify")
	}
}

func TestHMACVerifier_Webhook(t *testing.T) {
	v := NewHMACVerifier("key-secret", "webhook-secret")

	body := []byte(`{"event":"payment.captured"}`)
	sig := v.SignWebhook(body)
	if !v.VerifyWebhook(body, sig) {
		t.Fatal("valid webhook signature rejected")
	}
	if v.VerifyWebhook([]byte(`{"event":"tampered"}`), sig) {
		t.Fatal("tampered body must not verify")
	}

	// Webhook и платёж подписываются разными секретами.
	if v.VerifyWebhook(body, signHex([]byte("key-secret"), body)) {
		t.Fatal("payment secret must not sign webhooks")
	}
}

func TestHMACVerifier_DifferentSecrets(t *testing.T) {
	a := NewHMACVerifier("secret-a", "webhook-a")
	b := NewHMACVerifier("secret-b", "webhook-b")

	sig := a.SignPayment("order_ref", "pay_1")
	if b.VerifyPayment("order_ref", "pay_1", sig) {
		t.Fatal("signature must be bound to the secret")
	}
}
