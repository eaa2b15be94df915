package model

import (
	"time"

	"gorm.io/datatypes"
)

// QuestionType 测验题目类型
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple-choice"
	TrueFalse      QuestionType = "true-false"
	FillBlank      QuestionType = "fill-blank"
)

// ResourceType 课时附件类型
type ResourceType string

const (
	ResourcePDF   ResourceType = "pdf"
	ResourceVideo ResourceType = "video"
	ResourceAudio ResourceType = "audio"
	ResourceLink  ResourceType = "link"
	ResourceCode  ResourceType = "code"
)

// CourseContent 离线缓存的课程快照。size 由调用方在入库前声明，
// 是容量核算的唯一单位；lastUpdated 决定淘汰顺序。
type CourseContent struct {
	ID          string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Title       string `gorm:"size:255;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	Instructor  string `gorm:"size:100;index" json:"instructor"`
	Category    string `gorm:"size:100;index" json:"category"`
	Level       string `gorm:"size:50" json:"level"`
	Duration    int    `gorm:"default:0" json:"duration"` // 分钟
	Rating      float64 `gorm:"default:0" json:"rating"`
	Enrolled    int    `gorm:"default:0" json:"enrolledCount"`
	Price       float64 `gorm:"default:0" json:"price"`
	IsFree      bool   `gorm:"default:false" json:"isFree"`
	Thumbnail   string `gorm:"size:512" json:"thumbnail"`

	// 课时按数组顺序存储，顺序即课程章节顺序
	Lessons datatypes.JSONSlice[Lesson] `json:"lessons"`

	Size        int64     `gorm:"not null" json:"size"` // 字节
	LastUpdated time.Time `gorm:"index" json:"lastUpdated"`
	CachedAt    time.Time `json:"cachedAt"`
}

func (CourseContent) TableName() string {
	return "cached_courses"
}

type Lesson struct {
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	Duration   int              `json:"duration"`
	VideoURL   string           `json:"videoUrl,omitempty"`
	AudioURL   string           `json:"audioUrl,omitempty"`
	Transcript string           `json:"transcript,omitempty"`
	Slides     string           `json:"slides,omitempty"`
	Quiz       *Quiz            `json:"quiz,omitempty"`
	Resources  []LessonResource `json:"resources,omitempty"`
}

type Quiz struct {
	ID           string     `json:"id"`
	Questions    []Question `json:"questions"`
	TimeLimit    int        `json:"timeLimit,omitempty"` // 分钟，0 表示不限时
	PassingScore int        `json:"passingScore"`
}

type Question struct {
	ID            string       `json:"id"`
	Type          QuestionType `json:"type"`
	Question      string       `json:"question"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer interface{}  `json:"correctAnswer"`
	Explanation   string       `json:"explanation,omitempty"`
}

type LessonResource struct {
	ID    string       `json:"id"`
	Title string       `json:"title"`
	Type  ResourceType `json:"type"`
	URL   string       `json:"url"`
	Size  int64        `json:"size"`
}
