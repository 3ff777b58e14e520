// Package fleetlinesdk is a minimal typed client for the Fleetline HTTP API.
package fleetlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, bearerToken string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: bearerToken,
		Timeout:     10 * time.Second,
	}
}

// API models, mirroring the server responses.

type MaintenanceEvent struct {
	ID               int64    `json:"id"`
	AssetID          int64    `json:"asset_id"`
	Status           string   `json:"status"`
	CapabilityStatus string   `json:"capability_status"`
	StartDate        *string  `json:"start_date,omitempty"`
	EndDate          *string  `json:"end_date,omitempty"`
	BillableHours    *float64 `json:"billable_hours,omitempty"`
}

type Action struct {
	ID          int64  `json:"id"`
	ActionSetID int64  `json:"action_set_id"`
	Seq         int    `json:"seq"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source"`
}

type Blocker struct {
	ID         int64   `json:"id"`
	EventID    int64   `json:"event_id"`
	StatusCode string  `json:"status_code"`
	Reason     string  `json:"reason"`
	Priority   *string `json:"priority,omitempty"`
	StartTime  string  `json:"start_time"`
	EndTime    *string `json:"end_time,omitempty"`
}

type PartDemand struct {
	ID               int64   `json:"id"`
	ActionID         int64   `json:"action_id"`
	PartID           int64   `json:"part_id"`
	QuantityRequired float64 `json:"quantity_required"`
	QuantityIssued   float64 `json:"quantity_issued"`
	Status           string  `json:"status"`
}

type NarrationEntry struct {
	ID         int64  `json:"id"`
	EventID    int64  `json:"event_id"`
	TS         string `json:"ts"`
	ActorID    int64  `json:"actor_id"`
	Provenance string `json:"provenance"`
	Body       string `json:"body"`
}

type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Body)
}

func (c *Client) Event(ctx context.Context, eventID int64) (MaintenanceEvent, error) {
	var out MaintenanceEvent
	err := c.do(ctx, http.MethodGet, c.eventPath(eventID, ""), nil, &out)
	return out, err
}

func (c *Client) Start(ctx context.Context, eventID int64, startDate string) (MaintenanceEvent, error) {
	body := map[string]any{}
	if startDate != "" {
		body["start_date"] = startDate
	}
	var out MaintenanceEvent
	err := c.do(ctx, http.MethodPost, c.eventPath(eventID, "start"), body, &out)
	return out, err
}

func (c *Client) Actions(ctx context.Context, eventID int64) ([]Action, error) {
	var out []Action
	err := c.do(ctx, http.MethodGet, c.eventPath(eventID, "actions"), nil, &out)
	return out, err
}

func (c *Client) CreateAction(ctx context.Context, eventID int64, name, description string, position int) (Action, error) {
	var out Action
	err := c.do(ctx, http.MethodPost, c.eventPath(eventID, "actions"), map[string]any{
		"name": name, "description": description, "position": position,
	}, &out)
	return out, err
}

func (c *Client) OpenBlocker(ctx context.Context, eventID int64, statusCode, reason string, priority *string) (Blocker, error) {
	body := map[string]any{"status_code": statusCode, "reason": reason}
	if priority != nil {
		body["priority"] = *priority
	}
	var out Blocker
	err := c.do(ctx, http.MethodPost, c.eventPath(eventID, "blockers"), body, &out)
	return out, err
}

func (c *Client) CloseBlocker(ctx context.Context, eventID, blockerID int64, notes string) (Blocker, error) {
	var out Blocker
	err := c.do(ctx, http.MethodPost, c.eventPath(eventID, fmt.Sprintf("blockers/%d/close", blockerID)),
		map[string]any{"notes": notes}, &out)
	return out, err
}

func (c *Client) CreateDemand(ctx context.Context, eventID, actionID, partID int64, quantity float64) (PartDemand, error) {
	var out PartDemand
	err := c.do(ctx, http.MethodPost, c.eventPath(eventID, "demands"), map[string]any{
		"action_id": actionID, "part_id": partID, "quantity": quantity,
	}, &out)
	return out, err
}

func (c *Client) IssueDemand(ctx context.Context, eventID, demandID int64, quantity float64) (PartDemand, error) {
	var out PartDemand
	err := c.do(ctx, http.MethodPost, c.eventPath(eventID, fmt.Sprintf("demands/%d/issue", demandID)),
		map[string]any{"quantity": quantity}, &out)
	return out, err
}

type CompleteRequest struct {
	StartDate     string   `json:"start_date"`
	EndDate       string   `json:"end_date"`
	BillableHours float64  `json:"billable_hours"`
	Meter1        *float64 `json:"meter1,omitempty"`
	Meter2        *float64 `json:"meter2,omitempty"`
	Meter3        *float64 `json:"meter3,omitempty"`
	Meter4        *float64 `json:"meter4,omitempty"`
	Comment       string   `json:"comment,omitempty"`
}

func (c *Client) Complete(ctx context.Context, eventID int64, req CompleteRequest) (MaintenanceEvent, error) {
	var out MaintenanceEvent
	err := c.do(ctx, http.MethodPost, c.eventPath(eventID, "complete"), req, &out)
	return out, err
}

func (c *Client) Narration(ctx context.Context, eventID int64) ([]NarrationEntry, error) {
	var out []NarrationEntry
	err := c.do(ctx, http.MethodGet, c.eventPath(eventID, "narration"), nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) eventPath(eventID int64, suffix string) string {
	p := fmt.Sprintf("v0/events/%d", eventID)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}
