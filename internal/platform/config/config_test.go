package config

import (
	"context"
	"errors"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"API_FIREBASE_PROJECT_ID": "velora-test",
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Fatalf("expected default read timeout, got %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "velora-test" {
		t.Fatalf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Checkout.Currency != "INR" {
		t.Fatalf("expected default currency INR, got %s", cfg.Checkout.Currency)
	}
	if cfg.Checkout.TaxRatePercent != 18 {
		t.Fatalf("expected default tax rate, got %d", cfg.Checkout.TaxRatePercent)
	}
	if cfg.Checkout.OrderNumberPrefix != "VL" {
		t.Fatalf("expected default order number prefix, got %s", cfg.Checkout.OrderNumberPrefix)
	}
	if cfg.Redis.WebhookLogKey != "webhooks:log" {
		t.Fatalf("expected default webhook log key, got %s", cfg.Redis.WebhookLogKey)
	}
	if !cfg.Features.EnableChat {
		t.Fatalf("expected chat enabled by default")
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	env := baseEnv()
	env["API_SERVER_PORT"] = "9090"
	env["API_CHECKOUT_CURRENCY"] = "usd"
	env["API_CHECKOUT_SHIPPING_FEE"] = "500"
	env["API_CHECKOUT_FREE_SHIPPING_THRESHOLD"] = "10000"
	env["API_CHECKOUT_TAX_RATE_PERCENT"] = "8"
	env["API_PSP_RAZORPAY_KEY_ID"] = "rzp_test_abc"
	env["API_FEATURE_CHAT"] = "false"

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Fatalf("expected port override, got %s", cfg.Server.Port)
	}
	if cfg.Checkout.Currency != "USD" {
		t.Fatalf("expected uppercased currency, got %s", cfg.Checkout.Currency)
	}
	if cfg.Checkout.ShippingFee != 500 {
		t.Fatalf("expected shipping fee 500, got %d", cfg.Checkout.ShippingFee)
	}
	if cfg.PSP.RazorpayKeyID != "rzp_test_abc" {
		t.Fatalf("expected razorpay key id, got %s", cfg.PSP.RazorpayKeyID)
	}
	if cfg.Features.EnableChat {
		t.Fatalf("expected chat disabled")
	}
}

func TestLoadValidatesRequiredFields(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}

	found := false
	for _, field := range validation.Fields() {
		if field == "Firebase.ProjectID" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Firebase.ProjectID in %v", validation.Fields())
	}
}

func TestLoadRejectsOutOfRangeTaxRate(t *testing.T) {
	env := baseEnv()
	env["API_CHECKOUT_TAX_RATE_PERCENT"] = "140"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatalf("expected validation error for tax rate")
	}
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	env := baseEnv()
	env["API_PSP_STRIPE_API_KEY"] = "sm://projects/velora/secrets/stripe-key"

	resolver := SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
		if ref != "secret://projects/velora/secrets/stripe-key" {
			t.Fatalf("unexpected ref %s", ref)
		}
		return "sk_test_resolved", nil
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PSP.StripeAPIKey != "sk_test_resolved" {
		t.Fatalf("expected resolved secret, got %s", cfg.PSP.StripeAPIKey)
	}
}

func TestLoadReportsMissingRequiredSecrets(t *testing.T) {
	env := baseEnv()

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""),
		WithRequiredSecrets("PSP.StripeAPIKey"))
	if err == nil {
		t.Fatalf("expected missing secrets error")
	}

	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	if len(missing.Names()) != 1 || missing.Names()[0] != "PSP.StripeAPIKey" {
		t.Fatalf("unexpected missing names %v", missing.Names())
	}
}

func TestLoadSecretResolutionFailure(t *testing.T) {
	env := baseEnv()
	env["API_AI_API_KEY"] = "secret://projects/velora/secrets/openai"

	resolver := SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
		return "", errors.New("permission denied")
	})

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err == nil {
		t.Fatalf("expected secret error")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
}
