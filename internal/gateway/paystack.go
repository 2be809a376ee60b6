package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnavailable - шлюз недоступен или ответил ошибкой сервера; запрос можно повторить.
	ErrUnavailable = errors.New("payment gateway unavailable")
	// ErrRejected - шлюз отклонил запрос.
	ErrRejected = errors.New("payment gateway rejected request")
)

const DefaultBaseURL = "https://api.paystack.co"

// minorUnits - количество минимальных единиц валюты в одной основной (kobo в naira).
var minorUnits = decimal.NewFromInt(100)

type InitializeRequest struct {
	Reference   string
	Email       string
	Amount      decimal.Decimal
	Currency    string
	CallbackURL string
	Metadata    map[string]string
}

type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type Verification struct {
	Reference string
	Success   bool
	Status    string
	Amount    decimal.Decimal
	Currency  string
	PaidAt    *time.Time
	// Metadata - метаданные, переданные при инициализации платежа
	Metadata map[string]string
}

// Gateway - контракт с платёжным шлюзом: начать оплату и проверить ссылку.
type Gateway interface {
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	Verify(ctx context.Context, reference string) (*Verification, error)
}

// Client - HTTP клиент Paystack-совместимого API.
type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
}

func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		http:      &http.Client{Timeout: timeout},
	}
}

var _ Gateway = (*Client)(nil)

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	body := map[string]interface{}{
		"reference": req.Reference,
		"email":     req.Email,
		"amount":    req.Amount.Mul(minorUnits).Round(0).IntPart(),
		"currency":  req.Currency,
	}
	if req.CallbackURL != "" {
		body["callback_url"] = req.CallbackURL
	}
	if len(req.Metadata) > 0 {
		body["metadata"] = req.Metadata
	}

	var result InitializeResult
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", body, &result); err != nil {
		return nil, err
	}
	if result.Reference == "" {
		result.Reference = req.Reference
	}
	return &result, nil
}

func (c *Client) Verify(ctx context.Context, reference string) (*Verification, error) {
	var data struct {
		Reference string     `json:"reference"`
		Status    string     `json:"status"`
		Amount    int64      `json:"amount"`
		Currency  string          `json:"currency"`
		PaidAt    *time.Time      `json:"paid_at"`
		Metadata  json.RawMessage `json:"metadata"`
	}
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &data); err != nil {
		return nil, err
	}
	return &Verification{
		Reference: data.Reference,
		Success:   data.Status == "success",
		Status:    data.Status,
		Amount:    decimal.NewFromInt(data.Amount).Div(minorUnits),
		Currency:  data.Currency,
		PaidAt:    data.PaidAt,
		Metadata:  parseMetadata(data.Metadata),
	}, nil
}

// parseMetadata принимает объект или JSON-строку с объектом; значения приводятся к строкам.
func parseMetadata(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		raw = json.RawMessage(encoded)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var reader io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("gateway: marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Status {
		return fmt.Errorf("%w: %s", ErrRejected, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: decode data: %v", ErrUnavailable, err)
		}
	}
	return nil
}

// SignatureHeader - заголовок с подписью вебхука.
const SignatureHeader = "X-Paystack-Signature"

// VerifySignature проверяет HMAC-SHA512 подпись тела вебхука.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// Sign вычисляет подпись тела вебхука.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// WebhookEvent - тело вебхука шлюза.
type WebhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
	} `json:"data"`
}

// IsChargeSuccess - событие успешной оплаты.
func (e WebhookEvent) IsChargeSuccess() bool {
	return e.Event == "charge.success"
}
