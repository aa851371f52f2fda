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

// SyncCollaborators upserts the time-tracking user list.
func (s *Service) SyncCollaborators(ctx context.Context) (Counts, error) {
	return s.bracket(ctx, store.SourceTimetrack, "collaborators", func() (Counts, error) {
		if s.timetrack == nil {
			return Counts{}, errors.New("timetrack source not configured")
		}
		payloads, err := s.timetrack.ListCollaborators(ctx)
		if err != nil {
			return Counts{}, fmt.Errorf("list collaborators: %w", err)
		}

		counts := Counts{}
		for _, p := range payloads {
			if err := s.upsertCollaborator(ctx, p, &counts); err != nil {
				counts.Failed++
				log.Printf("[Syncer] Failed to sync collaborator %s: %v", p.ExternalID, err)
			}
		}
		return counts, nil
	})
}

func (s *Service) upsertCollaborator(ctx context.Context, p provider.CollaboratorPayload, counts *Counts) error {
	now := s.now().UTC()
	existing, err := s.store.GetCollaboratorByExternalID(ctx, p.ExternalID)
	if err != nil {
		return err
	}

	if existing == nil {
		c := &store.Collaborator{
			ID:           newID("col"),
			ExternalID:   p.ExternalID,
			Email:        p.Email,
			FirstName:    p.FirstName,
			LastName:     p.LastName,
			Matricule:    p.Matricule,
			IsActive:     p.IsActive,
			IsAdmin:      p.IsAdmin,
			LocalUserID:  s.linkUser(ctx, p.Email),
			LastSyncedAt: now,
		}
		if err := s.store.InsertCollaborator(ctx, c); err != nil {
			return err
		}
		counts.Created++
		return nil
	}

	existing.Email = p.Email
	existing.FirstName = p.FirstName
	existing.LastName = p.LastName
	existing.IsActive = p.IsActive
	existing.IsAdmin = p.IsAdmin
	existing.LastSyncedAt = now
	// Matricule: only overwrite when the payload carries one.
	if p.Matricule != nil {
		existing.Matricule = p.Matricule
	} else if existing.Matricule != nil {
		log.Printf("[Syncer] Preserving matricule %s for %s", *existing.Matricule, existing.Email)
	}
	if err := s.store.UpdateCollaborator(ctx, existing); err != nil {
		return err
	}
	counts.Updated++
	return nil
}

// SyncProjects upserts the project list.
func (s *Service) SyncProjects(ctx context.Context) (Counts, error) {
	return s.bracket(ctx, store.SourceTimetrack, "projects", func() (Counts, error) {
		if s.timetrack == nil {
			return Counts{}, errors.New("timetrack source not configured")
		}
		payloads, err := s.timetrack.ListProjects(ctx)
		if err != nil {
			return Counts{}, fmt.Errorf("list projects: %w", err)
		}

		counts := Counts{}
		for _, p := range payloads {
			if err := s.upsertProject(ctx, p, &counts); err != nil {
				counts.Failed++
				log.Printf("[Syncer] Failed to sync project %s: %v", p.ExternalID, err)
			}
		}
		return counts, nil
	})
}

func (s *Service) upsertProject(ctx context.Context, p provider.ProjectPayload, counts *Counts) error {
	now := s.now().UTC()
	existing, err := s.store.GetProjectByExternalID(ctx, p.ExternalID)
	if err != nil {
		return err
	}

	if existing == nil {
		row := &store.Project{
			ID:           newID("prj"),
			ExternalID:   p.ExternalID,
			Name:         p.Name,
			Code:         p.Code,
			Description:  p.Description,
			ClientName:   p.ClientName,
			StartDate:    p.StartDate,
			EndDate:      p.EndDate,
			IsActive:     p.IsActive,
			IsBillable:   p.IsBillable,
			LastSyncedAt: now,
		}
		if err := s.store.InsertProject(ctx, row); err != nil {
			return err
		}
		counts.Created++
		return nil
	}

	existing.Name = p.Name
	existing.Description = p.Description
	existing.ClientName = p.ClientName
	existing.StartDate = p.StartDate
	existing.EndDate = p.EndDate
	existing.IsActive = p.IsActive
	existing.IsBillable = p.IsBillable
	existing.LastSyncedAt = now
	if p.Code != nil {
		existing.Code = p.Code
	}
	if err := s.store.UpdateProject(ctx, existing); err != nil {
		return err
	}
	counts.Updated++
	return nil
}

// SyncTasks upserts the task list. Tasks referencing a project that is not
// staged are per-record failures.
func (s *Service) SyncTasks(ctx context.Context) (Counts, error) {
	return s.bracket(ctx, store.SourceTimetrack, "tasks", func() (Counts, error) {
		if s.timetrack == nil {
			return Counts{}, errors.New("timetrack source not configured")
		}
		payloads, err := s.timetrack.ListTasks(ctx)
		if err != nil {
			return Counts{}, fmt.Errorf("list tasks: %w", err)
		}

		counts := Counts{}
		for _, p := range payloads {
			if err := s.upsertTask(ctx, p, &counts); err != nil {
				counts.Failed++
				log.Printf("[Syncer] Failed to sync task %s: %v", p.ExternalID, err)
			}
		}
		return counts, nil
	})
}

func (s *Service) upsertTask(ctx context.Context, p provider.TaskPayload, counts *Counts) error {
	project, err := s.store.GetProjectByExternalID(ctx, p.ProjectExternalID)
	if err != nil {
		return err
	}
	if project == nil {
		return fmt.Errorf("project %s not staged", p.ProjectExternalID)
	}

	now := s.now().UTC()
	existing, err := s.store.GetTaskByExternalID(ctx, p.ExternalID)
	if err != nil {
		return err
	}

	if existing == nil {
		row := &store.Task{
			ID:           newID("tsk"),
			ExternalID:   p.ExternalID,
			ProjectID:    project.ID,
			Name:         p.Name,
			Code:         p.Code,
			IsActive:     p.IsActive,
			IsBillable:   p.IsBillable,
			LastSyncedAt: now,
		}
		if err := s.store.InsertTask(ctx, row); err != nil {
			return err
		}
		counts.Created++
		return nil
	}

	existing.ProjectID = project.ID
	existing.Name = p.Name
	existing.IsActive = p.IsActive
	existing.IsBillable = p.IsBillable
	existing.LastSyncedAt = now
	if p.Code != nil {
		existing.Code = p.Code
	}
	if err := s.store.UpdateTask(ctx, existing); err != nil {
		return err
	}
	counts.Updated++
	return nil
}

// SyncDeclarations upserts time entries in [from, to]. Entries whose
// collaborator or project cannot be resolved are per-record failures; the
// task reference is optional and an unresolvable one degrades to none.
func (s *Service) SyncDeclarations(ctx context.Context, from, to time.Time) (Counts, error) {
	return s.bracket(ctx, store.SourceTimetrack, "declarations", func() (Counts, error) {
		if s.timetrack == nil {
			return Counts{}, errors.New("timetrack source not configured")
		}
		payloads, err := s.timetrack.ListDeclarations(ctx, from, to)
		if err != nil {
			return Counts{}, fmt.Errorf("list declarations: %w", err)
		}

		counts := Counts{}
		for _, p := range payloads {
			if err := s.upsertDeclaration(ctx, p, &counts); err != nil {
				counts.Failed++
				log.Printf("[Syncer] Failed to sync declaration %s: %v", p.ExternalID, err)
			}
		}
		return counts, nil
	})
}

func (s *Service) upsertDeclaration(ctx context.Context, p provider.DeclarationPayload, counts *Counts) error {
	collab, err := s.store.GetCollaboratorByExternalID(ctx, p.CollaboratorExternalID)
	if err != nil {
		return err
	}
	if collab == nil {
		return fmt.Errorf("collaborator %s not staged", p.CollaboratorExternalID)
	}

	if p.ProjectExternalID == "" {
		return errors.New("no project reference")
	}
	project, err := s.store.GetProjectByExternalID(ctx, p.ProjectExternalID)
	if err != nil {
		return err
	}
	if project == nil {
		return fmt.Errorf("project %s not staged", p.ProjectExternalID)
	}

	// Some entries carry no task at all.
	var taskID *string
	isBillable := project.IsBillable
	if p.TaskExternalID != nil {
		task, err := s.store.GetTaskByExternalID(ctx, *p.TaskExternalID)
		if err != nil {
			return err
		}
		if task == nil {
			log.Printf("[Syncer] Task %s not staged for declaration %s, keeping project only",
				*p.TaskExternalID, p.ExternalID)
		} else {
			taskID = &task.ID
			isBillable = task.IsBillable
		}
	}

	now := s.now().UTC()
	existing, err := s.store.GetDeclarationByExternalID(ctx, p.ExternalID)
	if err != nil {
		return err
	}

	if existing == nil {
		row := &store.Declaration{
			ID:             newID("dec"),
			ExternalID:     p.ExternalID,
			CollaboratorID: collab.ID,
			ProjectID:      project.ID,
			TaskID:         taskID,
			Date:           p.Date,
			DurationHours:  p.DurationHours,
			Description:    p.Description,
			Status:         p.Status,
			IsBillable:     isBillable,
			LastSyncedAt:   now,
		}
		if err := s.store.InsertDeclaration(ctx, row); err != nil {
			return err
		}
		counts.Created++
		return nil
	}

	existing.CollaboratorID = collab.ID
	existing.ProjectID = project.ID
	existing.TaskID = taskID
	existing.Date = p.Date
	existing.DurationHours = p.DurationHours
	existing.Description = p.Description
	existing.Status = p.Status
	existing.IsBillable = isBillable
	existing.LastSyncedAt = now
	if err := s.store.UpdateDeclaration(ctx, existing); err != nil {
		return err
	}
	counts.Updated++
	return nil
}
