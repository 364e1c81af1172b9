package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tycoon/internal/auth"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Login(ctx context.Context, username, password string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"username": username,
		"password": password,
	}, &out, "")
	return out, err
}

// State fetches the shared snapshot. Pass sinceVersion < 0 to always
// fetch; a nil map with nil error means not modified.
func (c *Client) State(ctx context.Context, accessToken string, sinceVersion int64) (map[string]any, error) {
	path := "/v1/state"
	if sinceVersion >= 0 {
		path = fmt.Sprintf("/v1/state?since=%d", sinceVersion)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotModified {
		return nil, nil
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Transfer(ctx context.Context, accessToken, toUserID string, amount int64, description, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/transfer", accessToken, map[string]any{
		"to_user_id":  toUserID,
		"amount":      amount,
		"description": description,
	}, &out, idem)
	return out, err
}

func (c *Client) Deposit(ctx context.Context, accessToken string, amount int64, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/deposit", accessToken, map[string]any{
		"amount": amount,
	}, &out, idem)
	return out, err
}

func (c *Client) Withdraw(ctx context.Context, accessToken string, amount int64, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/withdraw", accessToken, map[string]any{
		"amount": amount,
	}, &out, idem)
	return out, err
}

func (c *Client) TradeStock(ctx context.Context, accessToken, stockID, side string, quantity int64, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/stocks/"+url.PathEscape(stockID)+"/trade", accessToken, map[string]any{
		"quantity": quantity,
		"side":     side,
	}, &out, idem)
	return out, err
}

func (c *Client) SpinRoulette(ctx context.Context, accessToken, targetUserID string, cost int64, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/roulette/spin", accessToken, map[string]any{
		"target_user_id": targetUserID,
		"cost":           cost,
	}, &out, idem)
	return out, err
}

func (c *Client) SubmitRequest(ctx context.Context, accessToken, reqType string, amount int64, details map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/requests", accessToken, map[string]any{
		"type":    reqType,
		"amount":  amount,
		"details": details,
	}, &out, idem)
	return out, err
}

func (c *Client) ResolveRequest(ctx context.Context, accessToken, requestID string, approve bool, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/requests/"+url.PathEscape(requestID)+"/resolve", accessToken, map[string]any{
		"approve": approve,
	}, &out, idem)
	return out, err
}

func (c *Client) ApproveAllRequests(ctx context.Context, accessToken, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/requests/approve-all", accessToken, map[string]any{}, &out, idem)
	return out, err
}

func (c *Client) StartElection(ctx context.Context, accessToken string, candidates []string, durationSeconds int64, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/election/start", accessToken, map[string]any{
		"candidates":       candidates,
		"duration_seconds": durationSeconds,
	}, &out, idem)
	return out, err
}

func (c *Client) Vote(ctx context.Context, accessToken, candidateID, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/election/vote", accessToken, map[string]any{
		"candidate_id": candidateID,
	}, &out, idem)
	return out, err
}

func (c *Client) ResolveElection(ctx context.Context, accessToken, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/election/resolve", accessToken, map[string]any{}, &out, idem)
	return out, err
}

func (c *Client) DeleteNPC(ctx context.Context, accessToken, npcID, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodDelete, "/v1/npcs/"+url.PathEscape(npcID), accessToken, nil, &out, idem)
	return out, err
}

func (c *Client) StartEvent(ctx context.Context, accessToken, kind, targetUserID string, effectValue, durationSeconds int64, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/events", accessToken, map[string]any{
		"kind":             kind,
		"target_user_id":   targetUserID,
		"effect_value":     effectValue,
		"duration_seconds": durationSeconds,
	}, &out, idem)
	return out, err
}

func (c *Client) AssessTax(ctx context.Context, accessToken, userID string, amount int64, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/users/"+url.PathEscape(userID)+"/tax", accessToken, map[string]any{
		"amount": amount,
	}, &out, idem)
	return out, err
}

func (c *Client) SetStockAccess(ctx context.Context, accessToken, userID string, unlocked bool, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/users/"+url.PathEscape(userID)+"/stock-access", accessToken, map[string]any{
		"unlocked": unlocked,
	}, &out, idem)
	return out, err
}

// Do replays a queued offline command verbatim.
func (c *Client) Do(ctx context.Context, method, path, accessToken string, body map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, method, path, accessToken, body, &out, idem)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path, accessToken string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
