package repository

import (
	"offline_cache_backend/internal/model"

	"gorm.io/gorm"
)

type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

// FindByCourse 按 course_id 索引取出该课程的全部进度记录，
// 具体用户由调用方在结果中筛选。
func (r *ProgressRepository) FindByCourse(courseID string) ([]model.Progress, error) {
	var records []model.Progress
	err := r.DB.Where("course_id = ?", courseID).Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *ProgressRepository) Save(progress *model.Progress) error {
	return r.DB.Save(progress).Error
}

// DeleteByCourse 课程被移除或淘汰后清掉其全部进度记录
func (r *ProgressRepository) DeleteByCourse(courseID string) error {
	return r.DB.Where("course_id = ?", courseID).Delete(&model.Progress{}).Error
}
