package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/resumekit/resumekit/internal/domain"
	"github.com/resumekit/resumekit/internal/observability"
	"github.com/resumekit/resumekit/internal/repository"
)

const (
	maxResumeTitleLen   = 120
	maxResumeSummaryLen = 500
	defaultResumeTheme  = "classic"
)

var ErrResumeNotFound = errors.New("resume not found")

var resumeThemes = map[string]struct{}{
	"classic": {},
	"modern":  {},
	"compact": {},
}

type ResumeInput struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Body    string `json:"body"`
	Theme   string `json:"theme"`
}

// ResumeService owns the document CRUD plus the photo attachment lifecycle.
// Every operation is scoped to the calling account.
type ResumeService struct {
	resumes repository.ResumeRepository
	storage StorageService
}

func NewResumeService(resumes repository.ResumeRepository, storage StorageService) *ResumeService {
	return &ResumeService{resumes: resumes, storage: storage}
}

func (s *ResumeService) Create(ctx context.Context, accountID uint, in ResumeInput) (*domain.Resume, error) {
	normalized, err := validateResumeInput(in)
	if err != nil {
		return nil, err
	}
	resume := &domain.Resume{
		AccountID: accountID,
		Title:     normalized.Title,
		Summary:   normalized.Summary,
		Body:      normalized.Body,
		Theme:     normalized.Theme,
	}
	if err := s.resumes.Create(resume); err != nil {
		observability.RecordResumeEvent(ctx, "create", "error")
		return nil, storeErr("create resume", err)
	}
	observability.RecordResumeEvent(ctx, "create", "success")
	return resume, nil
}

func (s *ResumeService) Get(ctx context.Context, accountID, resumeID uint) (*domain.Resume, error) {
	resume, err := s.resumes.FindByID(accountID, resumeID)
	if err != nil {
		if errors.Is(err, repository.ErrResumeNotFound) {
			return nil, ErrResumeNotFound
		}
		return nil, storeErr("find resume", err)
	}
	return resume, nil
}

func (s *ResumeService) List(ctx context.Context, accountID uint, page, pageSize int) (repository.PageResult[domain.Resume], error) {
	result, err := s.resumes.ListByAccountPaged(accountID, repository.PageRequest{Page: page, PageSize: pageSize})
	if err != nil {
		return repository.PageResult[domain.Resume]{}, storeErr("list resumes", err)
	}
	return result, nil
}

func (s *ResumeService) Update(ctx context.Context, accountID, resumeID uint, in ResumeInput) (*domain.Resume, error) {
	normalized, err := validateResumeInput(in)
	if err != nil {
		return nil, err
	}
	updates := map[string]any{
		"title":   normalized.Title,
		"summary": normalized.Summary,
		"body":    normalized.Body,
		"theme":   normalized.Theme,
	}
	if err := s.resumes.Update(accountID, resumeID, updates); err != nil {
		if errors.Is(err, repository.ErrResumeNotFound) {
			return nil, ErrResumeNotFound
		}
		observability.RecordResumeEvent(ctx, "update", "error")
		return nil, storeErr("update resume", err)
	}
	observability.RecordResumeEvent(ctx, "update", "success")
	return s.Get(ctx, accountID, resumeID)
}

// Delete removes the document and best-effort removes its photo object.
func (s *ResumeService) Delete(ctx context.Context, accountID, resumeID uint) error {
	resume, err := s.Get(ctx, accountID, resumeID)
	if err != nil {
		return err
	}
	if err := s.resumes.DeleteByID(accountID, resumeID); err != nil {
		if errors.Is(err, repository.ErrResumeNotFound) {
			return ErrResumeNotFound
		}
		return storeErr("delete resume", err)
	}
	if resume.PhotoKey != "" && s.storage != nil {
		_ = s.storage.DeletePhoto(ctx, accountID, resume.PhotoKey)
	}
	observability.RecordResumeEvent(ctx, "delete", "success")
	return nil
}

// AttachPhoto uploads the image and swaps the stored key, deleting the
// previous object once the new one is referenced.
func (s *ResumeService) AttachPhoto(ctx context.Context, accountID, resumeID uint, file io.Reader, fileSize int64) (string, error) {
	if s.storage == nil {
		return "", ErrStorageDisabled
	}
	resume, err := s.Get(ctx, accountID, resumeID)
	if err != nil {
		return "", err
	}
	key, err := s.storage.UploadPhoto(ctx, accountID, file, fileSize)
	if err != nil {
		return "", err
	}
	if err := s.resumes.Update(accountID, resumeID, map[string]any{"photo_key": key}); err != nil {
		_ = s.storage.DeletePhoto(ctx, accountID, key)
		return "", storeErr("attach photo", err)
	}
	if resume.PhotoKey != "" {
		_ = s.storage.DeletePhoto(ctx, accountID, resume.PhotoKey)
	}
	return key, nil
}

func (s *ResumeService) DetachPhoto(ctx context.Context, accountID, resumeID uint) error {
	if s.storage == nil {
		return ErrStorageDisabled
	}
	resume, err := s.Get(ctx, accountID, resumeID)
	if err != nil {
		return err
	}
	if resume.PhotoKey == "" {
		return nil
	}
	if err := s.resumes.Update(accountID, resumeID, map[string]any{"photo_key": ""}); err != nil {
		return storeErr("detach photo", err)
	}
	return s.storage.DeletePhoto(ctx, accountID, resume.PhotoKey)
}

func (s *ResumeService) PhotoURL(ctx context.Context, accountID, resumeID uint) (string, error) {
	if s.storage == nil {
		return "", ErrStorageDisabled
	}
	resume, err := s.Get(ctx, accountID, resumeID)
	if err != nil {
		return "", err
	}
	if resume.PhotoKey == "" {
		return "", ErrResumeNotFound
	}
	return s.storage.PhotoURL(ctx, resume.PhotoKey)
}

func validateResumeInput(in ResumeInput) (ResumeInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Summary = strings.TrimSpace(in.Summary)
	in.Theme = strings.TrimSpace(strings.ToLower(in.Theme))

	if in.Title == "" {
		return in, validationErr("title is required")
	}
	if len(in.Title) > maxResumeTitleLen {
		return in, validationErr("title exceeds %d characters", maxResumeTitleLen)
	}
	if len(in.Summary) > maxResumeSummaryLen {
		return in, validationErr("summary exceeds %d characters", maxResumeSummaryLen)
	}
	if in.Theme == "" {
		in.Theme = defaultResumeTheme
	}
	if _, ok := resumeThemes[in.Theme]; !ok {
		return in, validationErr("unknown theme %q", in.Theme)
	}
	if in.Body != "" && !json.Valid([]byte(in.Body)) {
		return in, validationErr("body must be valid JSON")
	}
	return in, nil
}
