// Package userstore предоставляет клиент внешнего сервиса анкет пользователей.
package userstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/scheme-eligibility/internal/model"
)

// ErrNotConfigured возвращается, если адрес сервиса не задан.
var ErrNotConfigured = errors.New("user service client not configured")

// Client инкапсулирует HTTP-взаимодействие с сервисом анкет.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт HTTP-клиент для обращения к сервису анкет по указанному адресу.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// GetProfile запрашивает анкету пользователя. Анкета только читается, сервис её не изменяет.
func (c *Client) GetProfile(ctx context.Context, userID int64) (model.UserProfile, error) {
	if c == nil || c.baseURL == "" {
		return model.UserProfile{}, ErrNotConfigured
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	url := base + "/users/" + strconv.FormatInt(userID, 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return model.UserProfile{}, fmt.Errorf("user %d: %w", userID, model.ErrNotFound)
	}

	if resp.StatusCode != http.StatusOK {
		return model.UserProfile{}, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var p model.UserProfile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return model.UserProfile{}, fmt.Errorf("decode response: %w", err)
	}
	if p.UserID == 0 {
		p.UserID = userID
	}

	return p, nil
}
