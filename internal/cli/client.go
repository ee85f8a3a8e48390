package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// StatusResponse — текстовый статус.
type StatusResponse struct {
	Status string `json:"status"`
}

// TokenResponse — ответ /token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// CreateOrderResponse — ответ на создание заказа.
type CreateOrderResponse struct {
	Status  string `json:"status"`
	OrderID string `json:"order_id"`
}

// OrderResponse — заказ из API.
type OrderResponse struct {
	ID          string           `json:"id"`
	Items       []map[string]int `json:"items"`
	TotalPrice  float64          `json:"total_price"`
	Status      string           `json:"status"`
	CreatedAt   string           `json:"created_at"`
	ProcessedAt string           `json:"processed_at,omitempty"`
}

type ordersResponse struct {
	Orders []OrderResponse `json:"orders"`
}

// --- Request types ---

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateOrderRequest — создание заказа. TotalPrice передаётся как есть.
type CreateOrderRequest struct {
	Items      []map[string]int `json:"items"`
	TotalPrice json.Number      `json:"total_price"`
}

type updateOrderRequest struct {
	Status string `json:"status"`
}

// APIError — ошибка, которую вернул сервер.
type APIError struct {
	StatusCode int
	Code       string
	Message    string

	// OrderID заполнен, если заказ записан, но не поставлен в обработку (503).
	OrderID string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	OrderID string `json:"order_id"`
}

// --- Client ---

// Client — HTTP-клиент для orders API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient создаёт клиент для API. token может быть пустым для register/login.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Auth ---

// Register регистрирует пользователя.
func (c *Client) Register(email, password string) (*StatusResponse, error) {
	var status StatusResponse
	err := c.doJSON(http.MethodPost, "/register/", credentials{Email: email, Password: password}, &status)
	return &status, err
}

// Login получает access-токен.
func (c *Client) Login(email, password string) (*TokenResponse, error) {
	form := url.Values{"username": {email}, "password": {password}}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var token TokenResponse
	err = c.send(req, &token)
	return &token, err
}

// --- Orders ---

// CreateOrder создаёт заказ.
func (c *Client) CreateOrder(req CreateOrderRequest) (*CreateOrderResponse, error) {
	var created CreateOrderResponse
	err := c.doJSON(http.MethodPost, "/orders/", req, &created)
	return &created, err
}

// GetOrder возвращает заказ по ID.
func (c *Client) GetOrder(id string) (*OrderResponse, error) {
	var order OrderResponse
	err := c.doJSON(http.MethodGet, "/orders/"+url.PathEscape(id)+"/", nil, &order)
	return &order, err
}

// UpdateOrderStatus меняет статус заказа.
func (c *Client) UpdateOrderStatus(id, status string) (*OrderResponse, error) {
	var order OrderResponse
	err := c.doJSON(http.MethodPatch, "/orders/"+url.PathEscape(id)+"/", updateOrderRequest{Status: status}, &order)
	return &order, err
}

// ListOrders возвращает заказы владельца токена.
func (c *Client) ListOrders() ([]OrderResponse, error) {
	var resp ordersResponse
	// Сервер берёт пользователя из токена, сегмент пути не используется.
	err := c.doJSON(http.MethodGet, "/orders/user/me", nil, &resp)
	return resp.Orders, err
}

// --- HTTP helpers ---

func (c *Client) doJSON(method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, result)
}

func (c *Client) send(req *http.Request, result any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkError(resp); err != nil {
		return err
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err == nil {
		apiErr.Code = er.Error.Code
		apiErr.Message = er.Error.Message
		apiErr.OrderID = er.OrderID
	}
	return apiErr
}

// IsUnauthorized сообщает, что сервер отклонил токен или учётные данные.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}
