package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"letDrone/internal/apperrors"
	"letDrone/internal/policy"
	"letDrone/models"
	"letDrone/repository"
)

const MaxCommentLength = 4000

// CommentService manages discussion threads on prescriptions.
type CommentService struct {
	Comments      repository.CommentRepositoryI
	Prescriptions repository.PrescriptionRepositoryI
}

// CommentInput is a new comment or reply.
type CommentInput struct {
	Content  string `json:"content"`
	ParentID *int64 `json:"parent_comment"`
}

// thread loads the prescription a thread hangs off and checks the caller
// may see it.
func (s *CommentService) thread(ctx context.Context, a *policy.Actor, prescriptionID string, action policy.Action) (*models.Prescription, error) {
	p, err := s.Prescriptions.GetByID(ctx, prescriptionID)
	if err != nil {
		return nil, internalErr("get prescription", err)
	}
	if p == nil {
		return nil, apperrors.NotFound("prescription")
	}
	if err := authorize(a, policy.Comments, action, a.OwnsPatient(p.AuthorID), "prescription"); err != nil {
		return nil, err
	}
	return p, nil
}

// ListThread returns the comments on one prescription, oldest first.
func (s *CommentService) ListThread(ctx context.Context, a *policy.Actor, prescriptionID string, page Page) ([]models.Comment, error) {
	if _, err := s.thread(ctx, a, prescriptionID, policy.Read); err != nil {
		return nil, err
	}
	out, err := s.Comments.List(ctx, repository.CommentFilter{PrescriptionID: &prescriptionID, Limit: page.Limit, Offset: page.Offset})
	if err != nil {
		return nil, internalErr("list comments", err)
	}
	return out, nil
}

// List returns every comment the caller may see. Patients only see threads
// on their own prescriptions.
func (s *CommentService) List(ctx context.Context, a *policy.Actor, page Page) ([]models.Comment, error) {
	if err := policy.Check(a, policy.Comments, policy.List, false); err != nil {
		return nil, err
	}
	f := repository.CommentFilter{Limit: page.Limit, Offset: page.Offset}
	if !a.IsStaff() {
		f.PatientID = &a.Patient.ID
	}
	out, err := s.Comments.List(ctx, f)
	if err != nil {
		return nil, internalErr("list comments", err)
	}
	return out, nil
}

func (s *CommentService) Get(ctx context.Context, a *policy.Actor, id int64) (*models.Comment, error) {
	c, err := s.comment(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.thread(ctx, a, c.PrescriptionID, policy.Read); err != nil {
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			return nil, apperrors.NotFound("comment")
		}
		return nil, err
	}
	return c, nil
}

func (s *CommentService) comment(ctx context.Context, id int64) (*models.Comment, error) {
	c, err := s.Comments.GetByID(ctx, id)
	if err != nil {
		return nil, internalErr("get comment", err)
	}
	if c == nil {
		return nil, apperrors.NotFound("comment")
	}
	return c, nil
}

// Create adds a comment to a prescription's thread, optionally as a reply.
func (s *CommentService) Create(ctx context.Context, a *policy.Actor, prescriptionID string, in CommentInput) (*models.Comment, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, apperrors.Validation("content is required")
	}
	if len(content) > MaxCommentLength {
		return nil, apperrors.Validation("content must be at most %d characters", MaxCommentLength)
	}
	if _, err := s.thread(ctx, a, prescriptionID, policy.Create); err != nil {
		return nil, err
	}
	c, err := s.Comments.Create(ctx, &models.Comment{
		PrescriptionID: prescriptionID,
		Content:        content,
		AuthorID:       a.User.ID,
		ParentID:       in.ParentID,
	})
	switch {
	case errors.Is(err, repository.ErrParentNotFound):
		return nil, apperrors.Validation("parent_comment %d does not exist", *in.ParentID)
	case errors.Is(err, repository.ErrParentMismatch):
		return nil, apperrors.Validation("parent_comment %d belongs to another prescription", *in.ParentID)
	case errors.Is(err, repository.ErrThreadTooDeep):
		return nil, apperrors.Validation("replies may nest at most %d levels", models.MaxThreadDepth)
	case err != nil:
		return nil, internalErr("create comment", err)
	}
	return c, nil
}

// Delete removes a comment and all replies below it, returning how many
// comments went.
func (s *CommentService) Delete(ctx context.Context, a *policy.Actor, id int64) (int, error) {
	c, err := s.comment(ctx, id)
	if err != nil {
		return 0, err
	}
	if _, err := s.thread(ctx, a, c.PrescriptionID, policy.Read); err != nil {
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			return 0, apperrors.NotFound("comment")
		}
		return 0, err
	}
	if err := policy.Check(a, policy.Comments, policy.Delete, a.IsUser(c.AuthorID)); err != nil {
		return 0, err
	}
	n, err := s.Comments.DeleteTree(ctx, id)
	if err != nil {
		return 0, internalErr("delete comment", err)
	}
	if n == 0 {
		return 0, apperrors.NotFound("comment")
	}
	log.Info().Int64("comment_id", id).Int("deleted", n).Msg("comment thread deleted")
	return n, nil
}
