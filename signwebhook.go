package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"payment-gateway/config"
	"payment-gateway/provider"
)

type webhookParams struct {
	Provider  string
	Event     string
	Reference string
	Amount    string
	Currency  string
	Status    string
	Secret    string
}

type signedWebhook struct {
	Header    string
	Signature string
	Body      []byte
}

func signWebhookCmd() *cobra.Command {
	var (
		p      webhookParams
		target string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "sign-webhook",
		Short: "Build and sign a provider webhook for local testing",
		Long: `Build a provider webhook body, sign it like the provider would and
print the signature header. With --url the webhook is also delivered.

Examples:
  payment-gateway sign-webhook --reference PAY_X1 --amount 5000
  payment-gateway sign-webhook --provider flutterwave --currency USD --amount 20 \
    --reference PAY_X2 --url http://localhost:5000/api/webhooks/flutterwave`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if p.Secret == "" {
				cfg, err := config.Load()
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				p.Secret = webhookSecret(cfg, p.Provider)
			}

			hook, err := buildWebhook(p)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s\n", hook.Header, hook.Signature)
			fmt.Fprintf(out, "%s\n", hook.Body)
			if dryRun || target == "" {
				return nil
			}
			return deliverWebhook(target, hook, out)
		},
	}

	cmd.Flags().StringVar(&p.Provider, "provider", provider.PaystackName, "provider to imitate (paystack|flutterwave)")
	cmd.Flags().StringVar(&p.Event, "event", "", "provider event name (defaults to the provider's success event)")
	cmd.Flags().StringVar(&p.Reference, "reference", "", "payment reference")
	cmd.Flags().StringVar(&p.Amount, "amount", "", "amount in major units")
	cmd.Flags().StringVar(&p.Currency, "currency", "NGN", "currency code")
	cmd.Flags().StringVar(&p.Status, "status", "successful", "flutterwave transaction status")
	cmd.Flags().StringVar(&p.Secret, "secret", "", "signing secret (defaults to the configured one)")
	cmd.Flags().StringVar(&target, "url", "", "deliver the webhook to this URL")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the signed webhook without sending it")
	_ = cmd.MarkFlagRequired("reference")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func webhookSecret(cfg *config.Config, name string) string {
	if name == provider.FlutterwaveName {
		if cfg.Flutterwave.SecretHash != "" {
			return cfg.Flutterwave.SecretHash
		}
		return cfg.Flutterwave.SecretKey
	}
	return cfg.Paystack.SecretKey
}

func buildWebhook(p webhookParams) (*signedWebhook, error) {
	if p.Secret == "" {
		return nil, fmt.Errorf("no signing secret for %s", p.Provider)
	}
	amount, err := decimal.NewFromString(p.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", p.Amount, err)
	}
	currency := strings.ToUpper(p.Currency)
	now := time.Now().UTC().Format(time.RFC3339)

	switch p.Provider {
	case provider.PaystackName:
		kobo, err := provider.ToMinor(amount, 2)
		if err != nil {
			return nil, err
		}
		event := p.Event
		if event == "" {
			event = "charge.success"
		}
		body, err := json.Marshal(map[string]any{
			"event": event,
			"data": map[string]any{
				"id":        time.Now().UnixNano(),
				"reference": p.Reference,
				"amount":    kobo,
				"currency":  currency,
				"paid_at":   now,
				"status":    "success",
			},
		})
		if err != nil {
			return nil, err
		}
		return &signedWebhook{
			Header:    "x-paystack-signature",
			Signature: provider.SignHexSHA512(p.Secret, body),
			Body:      body,
		}, nil

	case provider.FlutterwaveName:
		event := p.Event
		if event == "" {
			event = "charge.completed"
		}
		body, err := json.Marshal(map[string]any{
			"event": event,
			"data": map[string]any{
				"id":         time.Now().UnixNano(),
				"tx_ref":     p.Reference,
				"flw_ref":    "FLW-MOCK-" + p.Reference,
				"amount":     json.Number(amount.String()),
				"currency":   currency,
				"status":     p.Status,
				"created_at": now,
			},
		})
		if err != nil {
			return nil, err
		}
		return &signedWebhook{
			Header:    "flutterwave-signature",
			Signature: provider.SignBase64SHA256(p.Secret, body),
			Body:      body,
		}, nil
	}
	return nil, fmt.Errorf("unknown provider %q", p.Provider)
}

func deliverWebhook(url string, hook *signedWebhook, out io.Writer) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(hook.Body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(hook.Header, hook.Signature)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	fmt.Fprintf(out, "status=%d body=%s\n", resp.StatusCode, respBody)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook rejected with status %d", resp.StatusCode)
	}
	return nil
}
