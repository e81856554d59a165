package progress_test

import (
	"context"
	stdErrors "errors"
	"io"
	"log/slog"

	progressDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/progress"
	"github.com/frahmantamala/atelier/internal/core/database/dbtest"
	coursePostgres "github.com/frahmantamala/atelier/internal/course/postgres"
	"github.com/frahmantamala/atelier/internal/progress"
	progressPostgres "github.com/frahmantamala/atelier/internal/progress/postgres"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

type brokenLocator struct{}

func (brokenLocator) FirstLessonID(ctx context.Context, courseID int64) (*int64, error) {
	return nil, stdErrors.New("lessons unavailable")
}

var _ = Describe("Initializer", func() {
	var (
		ctx         context.Context
		db          *gorm.DB
		fx          *dbtest.Fixture
		repo        *progressPostgres.ProgressRepository
		logger      *slog.Logger
		initializer *progress.Initializer
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		db, err = dbtest.Open()
		Expect(err).NotTo(HaveOccurred())
		fx, err = dbtest.Seed(db)
		Expect(err).NotTo(HaveOccurred())

		repo = progressPostgres.NewProgressRepository(db)
		initializer = progress.NewInitializer(repo, coursePostgres.NewCourseRepository(db), logger)
	})

	AfterEach(func() {
		Expect(dbtest.Close(db)).To(Succeed())
	})

	It("should start the student on the first lesson with nothing completed", func() {
		created, err := initializer.Initialize(ctx, fx.PaidCourse.ID, fx.Student.ID)

		Expect(err).NotTo(HaveOccurred())
		Expect(created).To(BeTrue())

		row, err := repo.GetByCourseAndUser(ctx, fx.PaidCourse.ID, fx.Student.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(*row.CurrentLessonID).To(Equal(fx.FirstLesson))

		view := progress.FromDataModel(row)
		Expect(view.CompletedLessons).To(BeEmpty())
		Expect(view.Progress).To(BeZero())
		Expect(view.Completed).To(BeFalse())
	})

	It("should leave the current lesson empty for a course without lessons", func() {
		created, err := initializer.Initialize(ctx, fx.FreeCourse.ID, fx.Student.ID)

		Expect(err).NotTo(HaveOccurred())
		Expect(created).To(BeTrue())

		row, err := repo.GetByCourseAndUser(ctx, fx.FreeCourse.ID, fx.Student.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(row.CurrentLessonID).To(BeNil())
	})

	It("should not overwrite an existing row", func() {
		lesson := fx.FirstLesson
		existing := &progressDatamodel.UserProgress{
			CourseID:         fx.PaidCourse.ID,
			UserID:           fx.Student.ID,
			CompletedLessons: []byte("[1,2]"),
			CurrentLessonID:  &lesson,
			Progress:         40,
		}
		Expect(db.Create(existing).Error).To(Succeed())

		created, err := initializer.Initialize(ctx, fx.PaidCourse.ID, fx.Student.ID)

		Expect(err).NotTo(HaveOccurred())
		Expect(created).To(BeFalse())

		row, err := repo.GetByCourseAndUser(ctx, fx.PaidCourse.ID, fx.Student.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(row.Progress).To(Equal(float64(40)))
	})

	It("should fail when the first lesson cannot be resolved", func() {
		initializer = progress.NewInitializer(repo, brokenLocator{}, logger)

		_, err := initializer.Initialize(ctx, fx.PaidCourse.ID, fx.Student.ID)

		Expect(err).To(MatchError(ContainSubstring("lessons unavailable")))
	})
})
