package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newPayrollClient(t *testing.T, handler http.Handler) *PayrollClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewPayrollClient(PayrollConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		CompanyID:  "co-1",
		RetryDelay: time.Millisecond,
	}, nil)
	return c
}

func TestPayrollClient_ListEmployeesFollowsPagination(t *testing.T) {
	// GIVEN: An API serving two pages of employees
	pages := map[string]string{
		"": `{"collaborators":[{"id":"e1","firstName":"Alice","lastName":"Martin",
			"matricule":"001",
			"emails":[{"type":"professional","email":"alice@corp.fr"}],
			"contracts":[{"id":"c1","status":"ACTIVE","contractType":"CDI",
				"jobTitle":"Engineer","startDate":"2023-01-09"}]}],
			"meta":{"nextPageToken":"page2"}}`,
		"page2": `{"collaborators":[{"id":"e2","firstName":"Bob","lastName":"Durand",
			"emails":[{"type":"personal","email":"bob@perso.fr"}],
			"contracts":[{"id":"c2","status":"ENDED","contractType":"CDD",
				"jobTitle":"Analyst","startDate":"2022-03-01","endDate":"2023-03-01"}]}],
			"meta":{}}`,
	}
	var authSeen string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authSeen = r.Header.Get("Authorization")
		fmt.Fprint(w, pages[r.URL.Query().Get("nextPageToken")])
	})

	// WHEN: Listing all employees
	c := newPayrollClient(t, handler)
	employees, err := c.ListEmployees(context.Background())
	if err != nil {
		t.Fatalf("ListEmployees failed: %v", err)
	}

	// THEN: Both pages are merged and normalized
	if len(employees) != 2 {
		t.Fatalf("got %d employees, want 2", len(employees))
	}
	if authSeen != "Bearer test-key" {
		t.Errorf("Authorization = %q", authSeen)
	}

	alice := employees[0]
	if alice.Email != "alice@corp.fr" {
		t.Errorf("alice.Email = %q", alice.Email)
	}
	if alice.RegistrationNumber == nil || *alice.RegistrationNumber != "001" {
		t.Errorf("alice.RegistrationNumber = %v, want 001", alice.RegistrationNumber)
	}
	if !alice.IsActive || alice.Position != "Engineer" {
		t.Errorf("alice activity/position = %v/%q", alice.IsActive, alice.Position)
	}
	if alice.HireDate == nil || !alice.HireDate.Equal(time.Date(2023, 1, 9, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("alice.HireDate = %v", alice.HireDate)
	}

	// Bob has no professional email and no active contract.
	bob := employees[1]
	if bob.Email != "bob@perso.fr" {
		t.Errorf("bob.Email = %q (fallback to first email)", bob.Email)
	}
	if bob.IsActive {
		t.Error("bob should be inactive: no ACTIVE contract")
	}
	if bob.RegistrationNumber != nil {
		t.Errorf("bob.RegistrationNumber = %v, want nil", bob.RegistrationNumber)
	}
}

func TestPayrollClient_ListContractsExtractsFromEmployees(t *testing.T) {
	// GIVEN: Employees with embedded contracts
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"collaborators":[
			{"id":"e1","emails":[],"contracts":[
				{"id":"c1","status":"ACTIVE","startDate":"2023-01-09","weeklyHours":35},
				{"id":"c2","status":"ENDED","startDate":"2021-06-01","endDate":"2022-12-31"}]}],
			"meta":{}}`)
	})

	// WHEN: Listing contracts
	c := newPayrollClient(t, handler)
	contracts, err := c.ListContracts(context.Background())
	if err != nil {
		t.Fatalf("ListContracts failed: %v", err)
	}

	// THEN: Each contract carries its employee's external ID
	if len(contracts) != 2 {
		t.Fatalf("got %d contracts, want 2", len(contracts))
	}
	for _, ct := range contracts {
		if ct.EmployeeExternalID != "e1" {
			t.Errorf("contract %s EmployeeExternalID = %q", ct.ExternalID, ct.EmployeeExternalID)
		}
	}
	if contracts[0].WeeklyHours == nil || *contracts[0].WeeklyHours != 35 {
		t.Errorf("WeeklyHours = %v, want 35", contracts[0].WeeklyHours)
	}
	if contracts[1].EndDate == nil {
		t.Error("ended contract should carry an end date")
	}
}

func TestPayrollClient_ListAbsencesHandlesBothDateShapes(t *testing.T) {
	// GIVEN: Absences with a bare-string date and an object date
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("status"); got != "all" {
			t.Errorf("status param = %q, want all", got)
		}
		fmt.Fprint(w, `{"absences":[
			{"id":"a1","collaboratorId":"e1","type":"vacation","status":"approved",
			 "startDate":"2025-03-10","endDate":"2025-03-14","durationDays":5},
			{"id":"a2","collaboratorId":"e1","type":"sick","status":"pending",
			 "startDate":{"date":"2025-03-20"},"endDate":{"date":"2025-03-21"}},
			{"id":"a3","collaboratorId":"e2","type":"other","status":"approved"}],
			"meta":{}}`)
	})

	// WHEN: Listing absences for March
	c := newPayrollClient(t, handler)
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	absences, err := c.ListAbsences(context.Background(), from, to)
	if err != nil {
		t.Fatalf("ListAbsences failed: %v", err)
	}

	// THEN: Both date shapes parse; the dateless row is dropped
	if len(absences) != 2 {
		t.Fatalf("got %d absences, want 2", len(absences))
	}
	if !absences[0].StartDate.Equal(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("a1 start = %v", absences[0].StartDate)
	}
	if !absences[1].EndDate.Equal(time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("a2 end = %v", absences[1].EndDate)
	}
}

func TestPayrollClient_ServerErrorRetriesThenSurfaces(t *testing.T) {
	// GIVEN: An API that always returns 500
	hits := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	// WHEN: Listing employees
	c := newPayrollClient(t, handler)
	_, err := c.ListEmployees(context.Background())

	// THEN: The call is retried before the error surfaces
	if err == nil {
		t.Fatal("expected an error")
	}
	if hits != 4 { // initial + 3 retries
		t.Errorf("hits = %d, want 4", hits)
	}
}
