// Package dbtest opens throwaway SQLite databases carrying the full schema
// for repository and integration tests.
package dbtest

import (
	"fmt"
	"time"

	courseDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/course"
	enrollmentDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/enrollment"
	notificationDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/notification"
	paymentDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/payment"
	progressDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/progress"
	userDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/user"
	webhookDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/webhook"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns an in-memory database with every table migrated. A single
// connection keeps the database alive and serializes transactions.
func Open() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&userDatamodel.User{},
		&courseDatamodel.Course{},
		&courseDatamodel.Module{},
		&courseDatamodel.Lesson{},
		&courseDatamodel.Student{},
		&progressDatamodel.UserProgress{},
		&enrollmentDatamodel.PendingEnrollment{},
		&paymentDatamodel.Payment{},
		&paymentDatamodel.PaymentRequest{},
		&webhookDatamodel.Event{},
		&notificationDatamodel.Notification{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}
	return db, nil
}

// Close releases the underlying connection.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Fixture holds the rows most enrollment tests start from.
type Fixture struct {
	Instructor  *userDatamodel.User
	Student     *userDatamodel.User
	Admin       *userDatamodel.User
	PaidCourse  *courseDatamodel.Course
	FreeCourse  *courseDatamodel.Course
	FirstLesson int64
}

// Seed inserts three users, a published paid course with two modules and a
// published free course without lessons.
func Seed(db *gorm.DB) (*Fixture, error) {
	f := &Fixture{
		Instructor: &userDatamodel.User{ID: 10, Email: "instructor@example.com", Name: "Ines"},
		Student:    &userDatamodel.User{ID: 20, Email: "student@example.com", Name: "Sam"},
		Admin:      &userDatamodel.User{ID: 30, Email: "admin@example.com", Name: "Ada"},
	}
	for _, u := range []*userDatamodel.User{f.Instructor, f.Student, f.Admin} {
		if err := db.Create(u).Error; err != nil {
			return nil, err
		}
	}

	f.PaidCourse = &courseDatamodel.Course{ID: 100, Title: "Watercolor", InstructorID: f.Instructor.ID, Price: 4900, Currency: "usd", IsPublished: true}
	f.FreeCourse = &courseDatamodel.Course{ID: 200, Title: "Sketching", InstructorID: f.Instructor.ID, Price: 0, Currency: "usd", IsPublished: true}
	if err := db.Create(f.PaidCourse).Error; err != nil {
		return nil, err
	}
	if err := db.Create(f.FreeCourse).Error; err != nil {
		return nil, err
	}

	// module positions are inserted out of order to exercise ordering
	second := &courseDatamodel.Module{CourseID: f.PaidCourse.ID, Title: "Techniques", Position: 2}
	first := &courseDatamodel.Module{CourseID: f.PaidCourse.ID, Title: "Materials", Position: 1}
	if err := db.Create(second).Error; err != nil {
		return nil, err
	}
	if err := db.Create(first).Error; err != nil {
		return nil, err
	}

	lessons := []*courseDatamodel.Lesson{
		{ModuleID: second.ID, CourseID: f.PaidCourse.ID, Title: "Wet on Wet", Position: 1},
		{ModuleID: first.ID, CourseID: f.PaidCourse.ID, Title: "Mixing", Position: 2},
		{ModuleID: first.ID, CourseID: f.PaidCourse.ID, Title: "Brushes", Position: 1},
	}
	for _, l := range lessons {
		if err := db.Create(l).Error; err != nil {
			return nil, err
		}
	}
	f.FirstLesson = lessons[2].ID

	return f, nil
}
