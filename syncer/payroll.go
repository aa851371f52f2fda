package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/plancharge/engine/provider"
	"github.com/plancharge/engine/store"
)

// SyncPayrollEmployees upserts the payroll employee list.
func (s *Service) SyncPayrollEmployees(ctx context.Context) (Counts, error) {
	return s.bracket(ctx, store.SourcePayroll, "employees", func() (Counts, error) {
		if s.payroll == nil {
			return Counts{}, errors.New("payroll source not configured")
		}
		payloads, err := s.payroll.ListEmployees(ctx)
		if err != nil {
			return Counts{}, fmt.Errorf("list employees: %w", err)
		}

		counts := Counts{}
		for _, p := range payloads {
			if err := s.upsertPayrollEmployee(ctx, p, &counts); err != nil {
				counts.Failed++
				log.Printf("[Syncer] Failed to sync employee %s: %v", p.ExternalID, err)
			}
		}
		return counts, nil
	})
}

func (s *Service) upsertPayrollEmployee(ctx context.Context, p provider.EmployeePayload, counts *Counts) error {
	now := s.now().UTC()
	existing, err := s.store.GetPayrollEmployeeByExternalID(ctx, p.ExternalID)
	if err != nil {
		return err
	}

	if existing == nil {
		e := &store.PayrollEmployee{
			ID:                 newID("pe"),
			ExternalID:         p.ExternalID,
			Email:              p.Email,
			FirstName:          p.FirstName,
			LastName:           p.LastName,
			RegistrationNumber: p.RegistrationNumber,
			Department:         p.Department,
			Position:           p.Position,
			HireDate:           p.HireDate,
			TerminationDate:    p.TerminationDate,
			IsActive:           p.IsActive,
			LocalUserID:        s.linkUser(ctx, p.Email),
			LastSyncedAt:       now,
		}
		if err := s.store.InsertPayrollEmployee(ctx, e); err != nil {
			return err
		}
		counts.Created++
		return nil
	}

	existing.Email = p.Email
	existing.FirstName = p.FirstName
	existing.LastName = p.LastName
	existing.Department = p.Department
	existing.Position = p.Position
	existing.HireDate = p.HireDate
	existing.TerminationDate = p.TerminationDate
	existing.IsActive = p.IsActive
	existing.LastSyncedAt = now
	// Registration number: only overwrite when the payload carries one.
	if p.RegistrationNumber != nil {
		existing.RegistrationNumber = p.RegistrationNumber
	}
	if err := s.store.UpdatePayrollEmployee(ctx, existing); err != nil {
		return err
	}
	counts.Updated++
	return nil
}

// SyncPayrollContracts upserts contracts extracted from the employee payload.
func (s *Service) SyncPayrollContracts(ctx context.Context) (Counts, error) {
	return s.bracket(ctx, store.SourcePayroll, "contracts", func() (Counts, error) {
		if s.payroll == nil {
			return Counts{}, errors.New("payroll source not configured")
		}
		payloads, err := s.payroll.ListContracts(ctx)
		if err != nil {
			return Counts{}, fmt.Errorf("list contracts: %w", err)
		}

		counts := Counts{}
		for _, p := range payloads {
			if err := s.upsertPayrollContract(ctx, p, &counts); err != nil {
				counts.Failed++
				log.Printf("[Syncer] Failed to sync contract %s: %v", p.ExternalID, err)
			}
		}
		return counts, nil
	})
}

func (s *Service) upsertPayrollContract(ctx context.Context, p provider.ContractPayload, counts *Counts) error {
	// The owning employee must already be staged.
	owner, err := s.store.GetPayrollEmployeeByExternalID(ctx, p.EmployeeExternalID)
	if err != nil {
		return err
	}
	if owner == nil {
		return fmt.Errorf("employee %s not staged", p.EmployeeExternalID)
	}

	now := s.now().UTC()
	existing, err := s.store.GetPayrollContractByExternalID(ctx, p.ExternalID)
	if err != nil {
		return err
	}

	if existing == nil {
		c := &store.PayrollContract{
			ID:                 newID("pc"),
			ExternalID:         p.ExternalID,
			EmployeeExternalID: p.EmployeeExternalID,
			ContractType:       p.ContractType,
			JobTitle:           p.JobTitle,
			StartDate:          p.StartDate,
			EndDate:            p.EndDate,
			WeeklyHours:        p.WeeklyHours,
			IsActive:           p.IsActive,
			LastSyncedAt:       now,
		}
		if err := s.store.InsertPayrollContract(ctx, c); err != nil {
			return err
		}
		counts.Created++
		return nil
	}

	existing.EmployeeExternalID = p.EmployeeExternalID
	existing.ContractType = p.ContractType
	existing.JobTitle = p.JobTitle
	existing.StartDate = p.StartDate
	existing.EndDate = p.EndDate
	existing.WeeklyHours = p.WeeklyHours
	existing.IsActive = p.IsActive
	existing.LastSyncedAt = now
	if err := s.store.UpdatePayrollContract(ctx, existing); err != nil {
		return err
	}
	counts.Updated++
	return nil
}

// SyncPayrollAbsences upserts absences overlapping [from, to].
func (s *Service) SyncPayrollAbsences(ctx context.Context, from, to time.Time) (Counts, error) {
	return s.bracket(ctx, store.SourcePayroll, "absences", func() (Counts, error) {
		if s.payroll == nil {
			return Counts{}, errors.New("payroll source not configured")
		}
		payloads, err := s.payroll.ListAbsences(ctx, from, to)
		if err != nil {
			return Counts{}, fmt.Errorf("list absences: %w", err)
		}

		counts := Counts{}
		for _, p := range payloads {
			if err := s.upsertPayrollAbsence(ctx, p, &counts); err != nil {
				counts.Failed++
				log.Printf("[Syncer] Failed to sync absence %s: %v", p.ExternalID, err)
			}
		}
		return counts, nil
	})
}

func (s *Service) upsertPayrollAbsence(ctx context.Context, p provider.AbsencePayload, counts *Counts) error {
	if p.EmployeeExternalID == "" {
		return errors.New("no employee reference")
	}
	owner, err := s.store.GetPayrollEmployeeByExternalID(ctx, p.EmployeeExternalID)
	if err != nil {
		return err
	}
	if owner == nil {
		return fmt.Errorf("employee %s not staged", p.EmployeeExternalID)
	}

	now := s.now().UTC()
	existing, err := s.store.GetPayrollAbsenceByExternalID(ctx, p.ExternalID)
	if err != nil {
		return err
	}

	if existing == nil {
		a := &store.PayrollAbsence{
			ID:                 newID("pa"),
			ExternalID:         p.ExternalID,
			EmployeeExternalID: p.EmployeeExternalID,
			AbsenceType:        p.AbsenceType,
			AbsenceCode:        p.AbsenceCode,
			StartDate:          p.StartDate,
			EndDate:            p.EndDate,
			DurationDays:       p.DurationDays,
			Status:             p.Status,
			LastSyncedAt:       now,
		}
		if err := s.store.InsertPayrollAbsence(ctx, a); err != nil {
			return err
		}
		counts.Created++
		return nil
	}

	existing.EmployeeExternalID = p.EmployeeExternalID
	existing.AbsenceType = p.AbsenceType
	existing.StartDate = p.StartDate
	existing.EndDate = p.EndDate
	existing.DurationDays = p.DurationDays
	existing.Status = p.Status
	existing.LastSyncedAt = now
	// Absence code follows the preservation rule like other code fields.
	if p.AbsenceCode != nil {
		existing.AbsenceCode = p.AbsenceCode
	}
	if err := s.store.UpdatePayrollAbsence(ctx, existing); err != nil {
		return err
	}
	counts.Updated++
	return nil
}
