package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client — адаптер платёжного провайдера. Наружу отдаёт только операции,
// которые нужны движку расчётов: проверка статуса транзакции, списание
// удержанной суммы и возврат средств. Повторное списание или возврат по
// тому же idempotency key провайдер не выполняет.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient создаёт экземпляр клиента.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// TransactionStatus — статус транзакции на стороне провайдера.
type TransactionStatus struct {
	TxID   string  `json:"tx_id"`
	Status string  `json:"status"`
	Amount float64 `json:"amount"`
}

// CaptureResult — результат списания удержанной суммы.
type CaptureResult struct {
	CaptureID string  `json:"capture_id"`
	Amount    float64 `json:"amount"`
	Status    string  `json:"status"`
}

// RefundResult — результат запроса возврата.
type RefundResult struct {
	RefundID string  `json:"refund_id"`
	Amount   float64 `json:"amount"`
	Status   string  `json:"status"`
}

// GetTransaction запрашивает статус транзакции у провайдера.
func (c *Client) GetTransaction(ctx context.Context, txID string) (*TransactionStatus, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("provider: baseURL не задан")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transactions/"+txID, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("provider: код ответа %d", resp.StatusCode)
	}

	var status TransactionStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, err
	}

	return &status, nil
}

// Capture списывает удержанную по транзакции сумму в пользу платформы.
// idempotencyKey защищает от двойного списания при повторе задачи.
func (c *Client) Capture(ctx context.Context, txID string, amount float64, idempotencyKey string) (*CaptureResult, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("provider: baseURL не задан")
	}

	payload := map[string]any{
		"tx_id":  txID,
		"amount": amount,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/captures", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errorBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errorBody)
		return nil, fmt.Errorf("provider: код ответа %d: %v", resp.StatusCode, errorBody)
	}

	var result CaptureResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

// Refund запрашивает возврат части или всей суммы транзакции.
// idempotencyKey защищает от двойного возврата при повторе задачи.
func (c *Client) Refund(ctx context.Context, txID string, amount float64, idempotencyKey string) (*RefundResult, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("provider: baseURL не задан")
	}

	payload := map[string]any{
		"tx_id":  txID,
		"amount": amount,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/refunds", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errorBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errorBody)
		return nil, fmt.Errorf("provider: код ответа %d: %v", resp.StatusCode, errorBody)
	}

	var result RefundResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

// VerifySignature проверяет HMAC-SHA256 подпись webhook-уведомления.
func VerifySignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
