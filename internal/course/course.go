package course

import (
	"time"

	courseDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/course"
)

type Course struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	InstructorID  int64  `json:"instructor_id"`
	Price         int64  `json:"price"`
	Currency      string `json:"currency"`
	IsPublished   bool   `json:"is_published"`
	TotalStudents int    `json:"total_students"`
}

func (c *Course) IsFree() bool {
	return c.Price <= 0
}

// IsPayable reports whether the course can go through a paid checkout.
func (c *Course) IsPayable() bool {
	return c.IsPublished && c.Price > 0
}

func FromDataModel(c *courseDatamodel.Course) *Course {
	return &Course{
		ID:            c.ID,
		Title:         c.Title,
		InstructorID:  c.InstructorID,
		Price:         c.Price,
		Currency:      c.Currency,
		IsPublished:   c.IsPublished,
		TotalStudents: c.TotalStudents,
	}
}

// StudentEntry describes one roster append.
type StudentEntry struct {
	CourseID        int64
	UserID          int64
	EnrolledThrough string
	PaymentMethod   string
	PaymentAmount   int64
	GrantedBy       *int64
	EnrolledAt      time.Time
}

func (e StudentEntry) ToDataModel() *courseDatamodel.Student {
	s := &courseDatamodel.Student{
		CourseID:        e.CourseID,
		UserID:          e.UserID,
		EnrolledAt:      e.EnrolledAt,
		EnrolledThrough: e.EnrolledThrough,
		GrantedBy:       e.GrantedBy,
	}
	if s.EnrolledAt.IsZero() {
		s.EnrolledAt = time.Now().UTC()
	}
	if e.PaymentMethod != "" {
		method := e.PaymentMethod
		s.PaymentMethod = &method
	}
	if e.PaymentAmount > 0 {
		amount := e.PaymentAmount
		s.PaymentAmount = &amount
	}
	return s
}
