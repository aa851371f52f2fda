package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// PayrollConfig configures the payroll (source A) client.
type PayrollConfig struct {
	BaseURL   string
	APIKey    string
	CompanyID string

	// MaxPageSize caps maxResults per page; the API rejects more than 50.
	MaxPageSize int
	MaxRetries  int
	RetryDelay  time.Duration
}

// PayrollClient talks to the payroll partner API: REST GETs with
// token-based pagination under /companies/{companyID}/.
type PayrollClient struct {
	cfg     PayrollConfig
	http    httpDoer
	limiter *RateLimiter
	retry   *retrier
}

// NewPayrollClient builds a client sharing the given rate limiter. A nil
// limiter disables rate limiting (tests).
func NewPayrollClient(cfg PayrollConfig, limiter *RateLimiter) *PayrollClient {
	if cfg.MaxPageSize <= 0 || cfg.MaxPageSize > 50 {
		cfg.MaxPageSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &PayrollClient{
		cfg:     cfg,
		http:    defaultHTTPClient(),
		limiter: limiter,
		retry:   newRetrier(cfg.MaxRetries, cfg.RetryDelay),
	}
}

// SetHTTPClient swaps the underlying HTTP client (tests).
func (c *PayrollClient) SetHTTPClient(d httpDoer) { c.http = d }

// Ping verifies connectivity and credentials against the company endpoint.
func (c *PayrollClient) Ping(ctx context.Context) error {
	var out map[string]any
	return c.get(ctx, fmt.Sprintf("/companies/%s", c.cfg.CompanyID), nil, &out)
}

// ListEmployees returns every employee, following nextPageToken pagination.
// Contracts arrive embedded in the employee payload.
func (c *PayrollClient) ListEmployees(ctx context.Context) ([]EmployeePayload, error) {
	var all []EmployeePayload
	token := ""
	for {
		params := url.Values{"maxResults": {fmt.Sprint(c.cfg.MaxPageSize)}}
		if token != "" {
			params.Set("nextPageToken", token)
		}

		var page struct {
			Collaborators []payrollEmployeeJSON `json:"collaborators"`
			Meta          struct {
				NextPageToken string `json:"nextPageToken"`
			} `json:"meta"`
		}
		endpoint := fmt.Sprintf("/companies/%s/collaborators", c.cfg.CompanyID)
		if err := c.get(ctx, endpoint, params, &page); err != nil {
			return nil, err
		}
		for _, raw := range page.Collaborators {
			all = append(all, raw.normalize())
		}
		token = page.Meta.NextPageToken
		if token == "" {
			break
		}
	}
	log.Printf("[Payroll] Retrieved %d employees", len(all))
	return all, nil
}

// ListContracts flattens the contracts embedded in the employee payloads.
func (c *PayrollClient) ListContracts(ctx context.Context) ([]ContractPayload, error) {
	employees, err := c.ListEmployees(ctx)
	if err != nil {
		return nil, err
	}
	var all []ContractPayload
	for _, e := range employees {
		all = append(all, e.Contracts...)
	}
	log.Printf("[Payroll] Extracted %d contracts", len(all))
	return all, nil
}

// ListAbsences returns absences overlapping [from, to], all statuses,
// following nextPageToken pagination.
func (c *PayrollClient) ListAbsences(ctx context.Context, from, to time.Time) ([]AbsencePayload, error) {
	var all []AbsencePayload
	token := ""
	for {
		params := url.Values{
			"maxResults": {fmt.Sprint(c.cfg.MaxPageSize)},
			"status":     {"all"},
			"beginDate":  {from.Format("2006-01-02")},
			"endDate":    {to.Format("2006-01-02")},
		}
		if token != "" {
			params.Set("nextPageToken", token)
		}

		var page struct {
			Absences []payrollAbsenceJSON `json:"absences"`
			Meta     struct {
				NextPageToken string `json:"nextPageToken"`
			} `json:"meta"`
		}
		endpoint := fmt.Sprintf("/companies/%s/absences", c.cfg.CompanyID)
		if err := c.get(ctx, endpoint, params, &page); err != nil {
			return nil, err
		}
		for _, raw := range page.Absences {
			a, ok := raw.normalize()
			if !ok {
				log.Printf("[Payroll] Skipping absence %s: unusable date range", raw.ID)
				continue
			}
			all = append(all, a)
		}
		token = page.Meta.NextPageToken
		if token == "" {
			break
		}
	}
	log.Printf("[Payroll] Retrieved %d absences", len(all))
	return all, nil
}

func (c *PayrollClient) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	return c.retry.do(ctx, func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		u := c.cfg.BaseURL + endpoint
		if len(params) > 0 {
			u += "?" + params.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return &UpstreamError{Provider: "payroll", Endpoint: endpoint, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return &UpstreamError{
				Provider:   "payroll",
				Endpoint:   endpoint,
				StatusCode: resp.StatusCode,
				Body:       string(body),
			}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &UpstreamError{Provider: "payroll", Endpoint: endpoint, Err: err}
		}
		return nil
	})
}

// =============================================================================
// UPSTREAM JSON SHAPES
// =============================================================================

type payrollEmployeeJSON struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Matricule *string `json:"matricule"`
	TeamName  string `json:"teamName"`
	Emails    []struct {
		Type  string `json:"type"`
		Email string `json:"email"`
	} `json:"emails"`
	Contracts []payrollContractJSON `json:"contracts"`
}

type payrollContractJSON struct {
	ID           string   `json:"id"`
	Status       string   `json:"status"`
	ContractType string   `json:"contractType"`
	JobTitle     string   `json:"jobTitle"`
	StartDate    string   `json:"startDate"`
	EndDate      string   `json:"endDate"`
	WeeklyHours  *float64 `json:"weeklyHours"`
}

type payrollAbsenceJSON struct {
	ID             string          `json:"id"`
	CollaboratorID string          `json:"collaboratorId"`
	Type           string          `json:"type"`
	Code           *string         `json:"code"`
	Status         string          `json:"status"`
	StartDate      json.RawMessage `json:"startDate"`
	EndDate        json.RawMessage `json:"endDate"`
	DurationDays   *float64        `json:"durationDays"`
}

func (j payrollEmployeeJSON) normalize() EmployeePayload {
	// Prefer the professional address; fall back to the first one listed.
	email := ""
	for _, e := range j.Emails {
		if e.Type == "professional" {
			email = e.Email
			break
		}
	}
	if email == "" && len(j.Emails) > 0 {
		email = j.Emails[0].Email
	}

	e := EmployeePayload{
		ExternalID:         j.ID,
		Email:              email,
		FirstName:          j.FirstName,
		LastName:           j.LastName,
		RegistrationNumber: j.Matricule,
		Department:         j.TeamName,
	}

	for _, cj := range j.Contracts {
		start, ok := parseAPIDate(cj.StartDate)
		if !ok {
			continue
		}
		contract := ContractPayload{
			ExternalID:         cj.ID,
			EmployeeExternalID: j.ID,
			ContractType:       cj.ContractType,
			JobTitle:           cj.JobTitle,
			StartDate:          start,
			WeeklyHours:        cj.WeeklyHours,
			IsActive:           cj.Status == "ACTIVE",
		}
		if end, ok := parseAPIDate(cj.EndDate); ok {
			contract.EndDate = &end
		}
		e.Contracts = append(e.Contracts, contract)

		// Active contract decides the employee-level fields.
		if contract.IsActive {
			e.IsActive = true
			e.Position = cj.JobTitle
			hire := contract.StartDate
			e.HireDate = &hire
			e.TerminationDate = contract.EndDate
		}
	}
	return e
}

func (j payrollAbsenceJSON) normalize() (AbsencePayload, bool) {
	start, okStart := parseAbsenceDate(j.StartDate)
	end, okEnd := parseAbsenceDate(j.EndDate)
	if !okStart || !okEnd {
		return AbsencePayload{}, false
	}
	return AbsencePayload{
		ExternalID:         j.ID,
		EmployeeExternalID: j.CollaboratorID,
		AbsenceType:        j.Type,
		AbsenceCode:        j.Code,
		StartDate:          start,
		EndDate:            end,
		DurationDays:       j.DurationDays,
		Status:             j.Status,
	}, true
}

// parseAbsenceDate handles both shapes the API ships: a bare date string or
// an object {"date": "..."}.
func parseAbsenceDate(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 {
		return time.Time{}, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseAPIDate(s)
	}
	var obj struct {
		Date string `json:"date"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return parseAPIDate(obj.Date)
	}
	return time.Time{}, false
}

func parseAPIDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
