package cmd

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/frahmantamala/atelier/internal/auth"
	courseDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/course"
	userDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/user"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	clearData bool
	tokenTTL  time.Duration
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed users, a free course and a paid course for local development, then print bearer tokens for each user.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlxDB, db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer sqlxDB.Close()

		ctx := context.Background()
		if clearData {
			if err := clearSeedData(ctx, db); err != nil {
				log.Fatalf("failed to clear data: %v", err)
			}
			fmt.Println("Cleared existing data")
		}

		users := []struct {
			row   userDatamodel.User
			roles []string
		}{
			{userDatamodel.User{ID: 1, Email: "instructor@atelier.dev", Name: "Ines Instructor"}, []string{"instructor"}},
			{userDatamodel.User{ID: 2, Email: "student@atelier.dev", Name: "Sam Student"}, []string{"student"}},
			{userDatamodel.User{ID: 3, Email: "admin@atelier.dev", Name: "Ada Admin"}, []string{cfg.Security.AdminRole}},
		}
		for i := range users {
			u := &users[i].row
			if err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(u).Error; err != nil {
				log.Fatalf("failed to insert user %s: %v", u.Email, err)
			}
			fmt.Println("Seeded user:", u.Email)
		}

		courses := []struct {
			course  courseDatamodel.Course
			modules map[string][]string
		}{
			{
				course: courseDatamodel.Course{ID: 1, Title: "Sketching Fundamentals", InstructorID: 1, Price: 0, Currency: cfg.Payment.Currency, IsPublished: true},
				modules: map[string][]string{
					"Lines and Shapes": {"Warm-up Strokes", "Basic Forms"},
				},
			},
			{
				course: courseDatamodel.Course{ID: 2, Title: "Watercolor Landscapes", InstructorID: 1, Price: 4900, Currency: cfg.Payment.Currency, IsPublished: true},
				modules: map[string][]string{
					"Materials":  {"Brushes and Paper", "Mixing a Palette"},
					"Techniques": {"Wet on Wet", "Glazing"},
				},
			},
		}
		for i := range courses {
			if err := seedCourse(ctx, db, &courses[i].course, courses[i].modules); err != nil {
				log.Fatalf("failed to seed course %q: %v", courses[i].course.Title, err)
			}
			fmt.Println("Seeded course:", courses[i].course.Title)
		}

		validator := auth.NewJWTValidator(cfg.Security)
		for _, u := range users {
			token, err := validator.IssueToken(u.row.ID, u.row.Email, u.row.Name, u.roles, tokenTTL)
			if err != nil {
				log.Fatalf("failed to issue token for %s: %v", u.row.Email, err)
			}
			fmt.Printf("Token for %s:\n%s\n", u.row.Email, token)
		}
	},
}

func seedCourse(ctx context.Context, db *gorm.DB, c *courseDatamodel.Course, modules map[string][]string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(c)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		position := 1
		for _, title := range sortedKeys(modules) {
			m := &courseDatamodel.Module{CourseID: c.ID, Title: title, Position: position}
			if err := tx.Create(m).Error; err != nil {
				return err
			}
			for j, lessonTitle := range modules[title] {
				lesson := &courseDatamodel.Lesson{ModuleID: m.ID, CourseID: c.ID, Title: lessonTitle, Position: j + 1}
				if err := tx.Create(lesson).Error; err != nil {
					return err
				}
			}
			position++
		}
		return nil
	})
}

func clearSeedData(ctx context.Context, db *gorm.DB) error {
	tables := []string{
		"notifications", "webhook_events", "payment_requests", "payments",
		"pending_enrollments", "user_progress", "course_students",
		"course_lessons", "course_modules", "courses", "users",
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, t := range tables {
			if err := tx.Exec("DELETE FROM " + t).Error; err != nil {
				return fmt.Errorf("failed to clear %s: %w", t, err)
			}
		}
		return nil
	})
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	seedCmd.Flags().BoolVar(&clearData, "clear", false, "Clear existing data before seeding")
	seedCmd.Flags().DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "Lifetime of the printed development tokens")
}
