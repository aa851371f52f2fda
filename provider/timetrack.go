package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// TimetrackConfig configures the time-tracking (source B) client.
type TimetrackConfig struct {
	BaseURL string
	APIKey  string

	// PageSize is the offset-pagination page size; the API caps it at 1000.
	PageSize   int
	MaxRetries int
	RetryDelay time.Duration
}

// TimetrackClient talks to the time-tracking RPC API: every call is a POST
// of a JSON body to {base}/{method}, results under a "data" key.
type TimetrackClient struct {
	cfg     TimetrackConfig
	http    httpDoer
	limiter *RateLimiter
	retry   *retrier
}

// NewTimetrackClient builds a client sharing the given rate limiter. A nil
// limiter disables rate limiting (tests).
func NewTimetrackClient(cfg TimetrackConfig, limiter *RateLimiter) *TimetrackClient {
	if cfg.PageSize <= 0 || cfg.PageSize > 1000 {
		cfg.PageSize = 1000
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &TimetrackClient{
		cfg:     cfg,
		http:    defaultHTTPClient(),
		limiter: limiter,
		retry:   newRetrier(cfg.MaxRetries, cfg.RetryDelay),
	}
}

// SetHTTPClient swaps the underlying HTTP client (tests).
func (c *TimetrackClient) SetHTTPClient(d httpDoer) { c.http = d }

// Ping verifies connectivity by listing a single user.
func (c *TimetrackClient) Ping(ctx context.Context) error {
	var out json.RawMessage
	return c.call(ctx, "users.list", map[string]any{"limit": 1}, &out)
}

// ListCollaborators returns every user, paging by offset.
func (c *TimetrackClient) ListCollaborators(ctx context.Context) ([]CollaboratorPayload, error) {
	var all []CollaboratorPayload
	for offset := 0; ; offset += c.cfg.PageSize {
		var page struct {
			Data []timetrackUserJSON `json:"data"`
		}
		params := map[string]any{"limit": c.cfg.PageSize, "offset": offset}
		if err := c.call(ctx, "users.list", params, &page); err != nil {
			return nil, err
		}
		for _, raw := range page.Data {
			all = append(all, raw.normalize())
		}
		if len(page.Data) < c.cfg.PageSize {
			break
		}
	}
	log.Printf("[Timetrack] Retrieved %d collaborators", len(all))
	return all, nil
}

// ListProjects returns every project, paging by offset.
func (c *TimetrackClient) ListProjects(ctx context.Context) ([]ProjectPayload, error) {
	var all []ProjectPayload
	for offset := 0; ; offset += c.cfg.PageSize {
		var page struct {
			Data []timetrackProjectJSON `json:"data"`
		}
		params := map[string]any{"limit": c.cfg.PageSize, "offset": offset}
		if err := c.call(ctx, "projects.list", params, &page); err != nil {
			return nil, err
		}
		for _, raw := range page.Data {
			all = append(all, raw.normalize())
		}
		if len(page.Data) < c.cfg.PageSize {
			break
		}
	}
	log.Printf("[Timetrack] Retrieved %d projects", len(all))
	return all, nil
}

// ListTasks returns every task, paging by offset.
func (c *TimetrackClient) ListTasks(ctx context.Context) ([]TaskPayload, error) {
	var all []TaskPayload
	for offset := 0; ; offset += c.cfg.PageSize {
		var page struct {
			Data []timetrackTaskJSON `json:"data"`
		}
		params := map[string]any{"limit": c.cfg.PageSize, "offset": offset}
		if err := c.call(ctx, "tasks.list", params, &page); err != nil {
			return nil, err
		}
		for _, raw := range page.Data {
			all = append(all, raw.normalize())
		}
		if len(page.Data) < c.cfg.PageSize {
			break
		}
	}
	log.Printf("[Timetrack] Retrieved %d tasks", len(all))
	return all, nil
}

// ListDeclarations returns time entries in [from, to] for every user. The
// API scopes declarations.list to explicit user IDs, so the client fans out
// per user; a failing user (disabled accounts 404) is skipped, not fatal.
func (c *TimetrackClient) ListDeclarations(ctx context.Context, from, to time.Time) ([]DeclarationPayload, error) {
	users, err := c.ListCollaborators(ctx)
	if err != nil {
		return nil, err
	}

	var all []DeclarationPayload
	for _, u := range users {
		params := map[string]any{
			"user_ids": []string{u.ExternalID},
			"task_ids": []string{},
			"from":     from.Format("2006-01-02"),
			"to":       to.Format("2006-01-02"),
		}
		var page struct {
			Data []timetrackDeclarationJSON `json:"data"`
		}
		if err := c.call(ctx, "declarations.list", params, &page); err != nil {
			log.Printf("[Timetrack] Skipping declarations for user %s: %v", u.ExternalID, err)
			continue
		}
		for _, raw := range page.Data {
			d, ok := raw.normalize()
			if !ok {
				continue
			}
			all = append(all, d)
		}
	}
	log.Printf("[Timetrack] Retrieved %d declarations", len(all))
	return all, nil
}

func (c *TimetrackClient) call(ctx context.Context, method string, params any, out any) error {
	return c.retry.do(ctx, func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		body, err := json.Marshal(params)
		if err != nil {
			return err
		}
		u := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/" + method
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return &UpstreamError{Provider: "timetrack", Endpoint: method, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return &UpstreamError{
				Provider:   "timetrack",
				Endpoint:   method,
				StatusCode: resp.StatusCode,
				Body:       string(respBody),
			}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &UpstreamError{Provider: "timetrack", Endpoint: method, Err: err}
		}
		return nil
	})
}

// =============================================================================
// UPSTREAM JSON SHAPES
// =============================================================================

type timetrackUserJSON struct {
	ID         string  `json:"id"`
	Email      string  `json:"email"`
	Name       string  `json:"name"`
	Matricule  *string `json:"matricule"`
	IsDisabled bool    `json:"is_disabled"`
	Role       string  `json:"role"`
}

func (j timetrackUserJSON) normalize() CollaboratorPayload {
	first, last := splitName(j.Name)
	return CollaboratorPayload{
		ExternalID: j.ID,
		Email:      j.Email,
		FirstName:  first,
		LastName:   last,
		Matricule:  j.Matricule,
		IsActive:   !j.IsDisabled,
		IsAdmin:    j.Role == "manager",
	}
}

type timetrackProjectJSON struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Code        *string `json:"code"`
	Description string  `json:"description"`
	CustomerID  string  `json:"customer_id"`
	StartAt     string  `json:"start_at"`
	EndAt       string  `json:"end_at"`
	Status      string  `json:"status"`
	IsBillable  bool    `json:"is_billable"`
}

func (j timetrackProjectJSON) normalize() ProjectPayload {
	p := ProjectPayload{
		ExternalID:  j.ID,
		Name:        j.Name,
		Code:        j.Code,
		Description: j.Description,
		ClientName:  j.CustomerID,
		IsActive:    j.Status == "active",
		IsBillable:  j.IsBillable,
	}
	if t, ok := parseAPIDate(j.StartAt); ok {
		p.StartDate = &t
	}
	if t, ok := parseAPIDate(j.EndAt); ok {
		p.EndDate = &t
	}
	return p
}

type timetrackTaskJSON struct {
	ID         string  `json:"id"`
	ProjectID  string  `json:"project_id"`
	Name       string  `json:"name"`
	Code       *string `json:"code"`
	Status     string  `json:"status"`
	IsBillable bool    `json:"is_billable"`
}

func (j timetrackTaskJSON) normalize() TaskPayload {
	return TaskPayload{
		ExternalID:        j.ID,
		ProjectExternalID: j.ProjectID,
		Name:              j.Name,
		Code:              j.Code,
		IsActive:          j.Status == "active",
		IsBillable:        j.IsBillable,
	}
}

type timetrackDeclarationJSON struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	ProjectID   string  `json:"project_id"`
	TaskID      *string `json:"task_id"`
	Date        string  `json:"date"`
	Duration    float64 `json:"duration"` // seconds
	Description string  `json:"description"`
}

func (j timetrackDeclarationJSON) normalize() (DeclarationPayload, bool) {
	date, ok := parseAPIDate(j.Date)
	if !ok {
		return DeclarationPayload{}, false
	}
	return DeclarationPayload{
		ExternalID:             j.ID,
		CollaboratorExternalID: j.UserID,
		ProjectExternalID:      j.ProjectID,
		TaskExternalID:         j.TaskID,
		Date:                   date,
		DurationHours:          j.Duration / 3600,
		Description:            j.Description,
		Status:                 "submitted",
	}, true
}

func splitName(name string) (string, string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ""
	}
	parts := strings.SplitN(name, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}
