package document

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/heartmarshall/docflow-backend/internal/adapter/extractor"
	"github.com/heartmarshall/docflow-backend/internal/domain"
	"github.com/heartmarshall/docflow-backend/pkg/ctxutil"
)

// Upload stores the file, creates the document in status uploaded and hands
// it to the pipeline. A failed hand-off is logged only: the scheduler picks
// up uploaded documents on its next scan.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*domain.Document, error) {
	userID, ok := ctxutil.UserIDFromCtx(ctx)
	if !ok {
		return nil, domain.ErrUnauthorized
	}
	if err := in.Validate(s.cfg.MaxUploadBytes); err != nil {
		return nil, err
	}

	filename := strings.TrimSpace(in.Filename)
	sum := blake3.Sum256(in.Data)
	hash := hex.EncodeToString(sum[:])

	if s.cfg.RejectDuplicates {
		existing, err := s.docs.FindByContentHash(ctx, hash)
		switch {
		case err == nil:
			return nil, fmt.Errorf("document.Upload: same content as %s: %w", existing.ID, domain.ErrAlreadyExists)
		case !errors.Is(err, domain.ErrNotFound):
			return nil, fmt.Errorf("document.Upload: find duplicate: %w", err)
		}
	}

	doc := &domain.Document{
		ID:             uuid.New(),
		Title:          strings.TrimSpace(in.Title),
		Description:    trimOrNil(in.Description),
		Filename:       filename,
		SizeBytes:      int64(len(in.Data)),
		ContentType:    extractor.MediaType(in.ContentType, filename),
		ContentHash:    hash,
		Tags:           domain.NormalizeTags(in.Tags),
		Metadata:       in.Metadata,
		UploadedBy:     userID,
		Status:         domain.StatusUploaded,
		ApprovalStatus: domain.ApprovalPending,
		Retryable:      true,
	}
	if doc.Title == "" {
		doc.Title = filename
	}
	if doc.ContentType == "" {
		doc.ContentType = "application/octet-stream"
	}

	if name := strings.TrimSpace(in.Category); name != "" {
		cat, err := s.docs.EnsureCategory(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("document.Upload: category: %w", err)
		}
		doc.CategoryID = &cat.ID
		doc.CategorySource = domain.CategorySourceHuman
	}

	// Reserve before storing anything so a full audit buffer refuses the
	// upload cleanly.
	reservation, err := s.audit.Reserve()
	if err != nil {
		return nil, fmt.Errorf("document.Upload: %w", err)
	}

	doc.StoragePath = objectKey(doc.ID, filename)
	if err := s.objects.Put(ctx, doc.StoragePath, in.Data, doc.ContentType); err != nil {
		reservation.Release()
		return nil, fmt.Errorf("document.Upload: store object: %w", errors.Join(domain.ErrExternalUnavailable, err))
	}
	if u := s.objects.URL(doc.StoragePath); u != "" {
		doc.FileURL = &u
	}

	created, err := s.docs.Create(ctx, doc)
	if err != nil {
		reservation.Release()
		if delErr := s.objects.Delete(context.WithoutCancel(ctx), doc.StoragePath); delErr != nil {
			s.log.WarnContext(ctx, "orphaned upload object",
				slog.String("key", doc.StoragePath),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, fmt.Errorf("document.Upload: create: %w", err)
	}

	reservation.Commit(ctx, domain.AuditEntry{
		Action:       domain.AuditActionUpload,
		ResourceType: domain.ResourceDocument,
		ResourceID:   created.ID.String(),
		Details: map[string]any{
			"filename":     created.Filename,
			"content_type": created.ContentType,
			"size_bytes":   created.SizeBytes,
			"content_hash": created.ContentHash,
			"to":           string(created.Status),
			"version":      created.Version,
		},
	})

	s.log.InfoContext(ctx, "document uploaded",
		slog.String("document_id", created.ID.String()),
		slog.String("user_id", userID.String()),
		slog.String("content_type", created.ContentType),
		slog.Int64("size_bytes", created.SizeBytes),
	)

	if err := s.submitter.Submit(ctx, created.ID); err != nil {
		s.log.WarnContext(ctx, "submit after upload failed",
			slog.String("document_id", created.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	return created, nil
}

func objectKey(id uuid.UUID, filename string) string {
	return path.Join("documents", id.String(), path.Base(filename))
}
