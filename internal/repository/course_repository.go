package repository

import (
	"offline_cache_backend/internal/model"

	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CourseRepository struct {
	DB *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{DB: db}
}

func (r *CourseRepository) FindByID(id string) (*model.CourseContent, error) {
	var course model.CourseContent
	err := r.DB.Where("id = ?", id).First(&course).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *CourseRepository) FindAll() ([]model.CourseContent, error) {
	var courses []model.CourseContent
	err := r.DB.Order("cached_at asc").Find(&courses).Error
	if err != nil {
		return nil, err
	}
	return courses, nil
}

// FindOldestFirst 按 last_updated 升序返回全部缓存课程，
// 时间相同的按 id 升序稳定排序，供淘汰算法遍历。
func (r *CourseRepository) FindOldestFirst() ([]model.CourseContent, error) {
	var courses []model.CourseContent
	err := r.DB.Order("last_updated asc, id asc").Find(&courses).Error
	if err != nil {
		return nil, err
	}
	return courses, nil
}

func (r *CourseRepository) FindByCategory(category string) ([]model.CourseContent, error) {
	var courses []model.CourseContent
	err := r.DB.Where("category = ?", category).Find(&courses).Error
	if err != nil {
		return nil, err
	}
	return courses, nil
}

func (r *CourseRepository) FindByInstructor(instructor string) ([]model.CourseContent, error) {
	var courses []model.CourseContent
	err := r.DB.Where("instructor = ?", instructor).Find(&courses).Error
	if err != nil {
		return nil, err
	}
	return courses, nil
}

// Upsert 按 id 插入或整行覆盖
func (r *CourseRepository) Upsert(course *model.CourseContent) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(course).Error
}

func (r *CourseRepository) Delete(id string) error {
	return r.DB.Where("id = ?", id).Delete(&model.CourseContent{}).Error
}

func (r *CourseRepository) DeleteBatch(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.DB.Where("id IN ?", ids).Delete(&model.CourseContent{}).Error
}

// TotalSize 由存量记录实时求和，容量核算不维护独立计数器
func (r *CourseRepository) TotalSize() (int64, error) {
	var total int64
	err := r.DB.Model(&model.CourseContent{}).
		Select("COALESCE(SUM(size), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *CourseRepository) IDs() ([]string, error) {
	var ids []string
	err := r.DB.Model(&model.CourseContent{}).
		Order("cached_at asc").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
