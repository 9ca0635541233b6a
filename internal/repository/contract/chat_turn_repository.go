package contract

import (
	"context"

	"shopmate-be/internal/entity"
	"shopmate-be/internal/repository/specification"

	"github.com/google/uuid"
)

type ChatTurnRepository interface {
	Create(ctx context.Context, turn *entity.ChatTurn) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatTurn, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
