package course

import "time"

const (
	EnrolledThroughFree        = "free"
	EnrolledThroughPayment     = "payment"
	EnrolledThroughManualGrant = "manual_grant"
)

type Course struct {
	ID            int64     `gorm:"primaryKey"`
	Title         string    `gorm:"column:title;not null"`
	InstructorID  int64     `gorm:"column:instructor_id;not null;index"`
	Price         int64     `gorm:"column:price;not null"`
	Currency      string    `gorm:"column:currency;not null"`
	IsPublished   bool      `gorm:"column:is_published;not null"`
	TotalStudents int       `gorm:"column:total_students;not null"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (Course) TableName() string {
	return "courses"
}

type Module struct {
	ID        int64     `gorm:"primaryKey"`
	CourseID  int64     `gorm:"column:course_id;not null;index"`
	Title     string    `gorm:"column:title;not null"`
	Position  int       `gorm:"column:position;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (Module) TableName() string {
	return "course_modules"
}

type Lesson struct {
	ID        int64     `gorm:"primaryKey"`
	ModuleID  int64     `gorm:"column:module_id;not null;index"`
	CourseID  int64     `gorm:"column:course_id;not null;index"`
	Title     string    `gorm:"column:title;not null"`
	Position  int       `gorm:"column:position;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (Lesson) TableName() string {
	return "course_lessons"
}

// Student is one roster row. (course_id, user_id) is unique.
type Student struct {
	ID              int64     `gorm:"primaryKey"`
	CourseID        int64     `gorm:"column:course_id;not null;uniqueIndex:idx_course_students_course_user"`
	UserID          int64     `gorm:"column:user_id;not null;uniqueIndex:idx_course_students_course_user"`
	EnrolledAt      time.Time `gorm:"column:enrolled_at;not null"`
	Progress        float64   `gorm:"column:progress;not null"`
	Completed       bool      `gorm:"column:completed;not null"`
	EnrolledThrough string    `gorm:"column:enrolled_through;not null"`
	PaymentMethod   *string   `gorm:"column:payment_method"`
	PaymentAmount   *int64    `gorm:"column:payment_amount"`
	GrantedBy       *int64    `gorm:"column:granted_by"`
}

func (Student) TableName() string {
	return "course_students"
}
