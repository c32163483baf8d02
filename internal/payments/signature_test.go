package payments

import "testing"

func TestVerifyRazorpayWebhookSignature(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)
	secret := "whsec_test"
	signature := razorpaySignature(body, secret)

	if !VerifyRazorpayWebhookSignature(body, signature, secret) {
		t.Fatalf("expected valid signature to verify")
	}
	if VerifyRazorpayWebhookSignature(body, signature, "other_secret") {
		t.Fatalf("expected signature with wrong secret to fail")
	}
	if VerifyRazorpayWebhookSignature([]byte(`{"event":"tampered"}`), signature, secret) {
		t.Fatalf("expected tampered body to fail verification")
	}
	if VerifyRazorpayWebhookSignature(body, "", secret) {
		t.Fatalf("expected empty signature to fail")
	}
}

func TestVerifyRazorpayConfirmSignature(t *testing.T) {
	secret := "key_secret"
	signature := razorpaySignature([]byte("order_123|pay_456"), secret)

	if !VerifyRazorpayConfirmSignature("order_123", "pay_456", signature, secret) {
		t.Fatalf("expected valid confirm signature to verify")
	}
	if VerifyRazorpayConfirmSignature("order_123", "pay_999", signature, secret) {
		t.Fatalf("expected mismatched payment id to fail")
	}
	if VerifyRazorpayConfirmSignature("", "pay_456", signature, secret) {
		t.Fatalf("expected missing order id to fail")
	}
}
