package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	poolDomain "github.com/nurcahyapriantoro/agrilends/internal/domain/pool"
)

type OperationRepository struct{ db *gorm.DB }

func NewOperationRepository(db *gorm.DB) *OperationRepository {
	return &OperationRepository{db: db}
}

func (r *OperationRepository) Get(ctx context.Context, opID string) (*poolDomain.ProcessedOperation, error) {
	var out poolDomain.ProcessedOperation
	res := r.db.WithContext(ctx).Where("op_id = ?", opID).First(&out)
	return &out, res.Error
}

// Begin claims the operation id. The primary key makes a concurrent
// duplicate lose the insert race, which surfaces as ErrDuplicateOperation.
func (r *OperationRepository) Begin(ctx context.Context, op *poolDomain.ProcessedOperation) error {
	err := r.db.WithContext(ctx).Create(op).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return poolDomain.ErrDuplicateOperation
	}
	return err
}

func (r *OperationRepository) Finish(ctx context.Context, opID string) error {
	return r.db.WithContext(ctx).
		Model(&poolDomain.ProcessedOperation{}).
		Where("op_id = ?", opID).
		Update("status", poolDomain.OpDone).Error
}

func (r *OperationRepository) Abandon(ctx context.Context, opID string) error {
	return r.db.WithContext(ctx).
		Where("op_id = ? AND status = ?", opID, poolDomain.OpInFlight).
		Delete(&poolDomain.ProcessedOperation{}).Error
}
