package ports

import (
	"context"

	"github.com/kirillkom/accruals-router/internal/core/domain"
)

// DocumentIntake is the inbound contract for mailbox intake runs.
type DocumentIntake interface {
	Intake(ctx context.Context, req domain.IntakeRequest) (domain.IntakeResult, error)
}

// LifecycleService applies operator status edits to stored documents.
type LifecycleService interface {
	Apply(ctx context.Context, change domain.StatusChange) (domain.TransitionResult, error)
}

// DocumentClassifier is the validated classification contract used for routing.
type DocumentClassifier interface {
	Classify(ctx context.Context, data []byte, mimeType, filename string) domain.Classification
}
