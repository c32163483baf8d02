package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// razorpaySignature computes the hex encoded HMAC-SHA256 of payload.
func razorpaySignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyRazorpayWebhookSignature checks the X-Razorpay-Signature header
// against the raw webhook body using constant-time comparison.
func VerifyRazorpayWebhookSignature(body []byte, signature, secret string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" || strings.TrimSpace(secret) == "" {
		return false
	}
	expected := razorpaySignature(body, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyRazorpayConfirmSignature checks the client-side checkout signature
// computed over "orderId|paymentId".
func VerifyRazorpayConfirmSignature(orderID, paymentID, signature, secret string) bool {
	orderID = strings.TrimSpace(orderID)
	paymentID = strings.TrimSpace(paymentID)
	signature = strings.TrimSpace(signature)
	if orderID == "" || paymentID == "" || signature == "" || strings.TrimSpace(secret) == "" {
		return false
	}
	expected := razorpaySignature([]byte(orderID+"|"+paymentID), secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
