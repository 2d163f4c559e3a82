package mysql

import (
	"context"

	"gorm.io/gorm"

	paramsDomain "github.com/nurcahyapriantoro/agrilends/internal/domain/params"
)

const paramsRowID = 1

type ParamsStore struct{ db *gorm.DB }

func NewParamsStore(db *gorm.DB) *ParamsStore { return &ParamsStore{db: db} }

// Get returns the singleton parameter row, seeding the defaults on first
// access.
func (s *ParamsStore) Get(ctx context.Context) (*paramsDomain.Params, error) {
	var out paramsDomain.Params
	res := s.db.WithContext(ctx).Where("id = ?", paramsRowID).First(&out)
	if res.Error == gorm.ErrRecordNotFound {
		seeded := paramsDomain.Default()
		seeded.ID = paramsRowID
		if err := s.db.WithContext(ctx).Create(seeded).Error; err != nil {
			return nil, err
		}
		return seeded, nil
	}
	return &out, res.Error
}

func (s *ParamsStore) Put(ctx context.Context, p *paramsDomain.Params) error {
	p.ID = paramsRowID
	return s.db.WithContext(ctx).Save(p).Error
}
