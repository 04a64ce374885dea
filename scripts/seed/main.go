package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/uni-enroll-api/pkg/config"
	"github.com/noah-isme/uni-enroll-api/pkg/database"
)

// Seeds a development database with an active period, a small course
// catalog and demo accounts. Inserts are idempotent, so the script can
// be re-run after wiping individual tables.
func main() {
	var (
		adminPassword   string
		studentPassword string
		students        int
	)
	flag.StringVar(&adminPassword, "admin-password", "admin123", "Password for the seeded admin user")
	flag.StringVar(&studentPassword, "student-password", "student123", "Password for seeded student users")
	flag.IntVar(&students, "students", 5, "Number of student accounts to seed")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db.DB, zap.NewNop()); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := seed(ctx, db, adminPassword, studentPassword, students); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
	log.Println("seed complete")
}

func seed(ctx context.Context, db *sqlx.DB, adminPassword, studentPassword string, students int) error {
	const periodID = "per-2025-1"

	if _, err := db.ExecContext(ctx,
		`INSERT INTO periods (id, code, name, is_active) VALUES ($1, $2, $3, TRUE) ON CONFLICT DO NOTHING`,
		periodID, "2025-1", "Spring 2025"); err != nil {
		return fmt.Errorf("seed period: %w", err)
	}

	courses := []struct {
		id, code, name, teacher string
	}{
		{"crs-math101", "MATH-101", "Calculus I", "Dr. Alan Hart"},
		{"crs-phys201", "PHYS-201", "Classical Mechanics", "Dr. Mia Torres"},
		{"crs-chem110", "CHEM-110", "General Chemistry", "Dr. Priya Nair"},
		{"crs-cs150", "CS-150", "Programming Fundamentals", "Dr. Omar Reyes"},
	}
	for _, c := range courses {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO courses (id, code, name, teacher_name) VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
			c.id, c.code, c.name, c.teacher); err != nil {
			return fmt.Errorf("seed course %s: %w", c.code, err)
		}
	}

	sections := []struct {
		id, course, label string
		seats             int
	}{
		{"sec-math101-a", "crs-math101", "A", 30},
		{"sec-math101-b", "crs-math101", "B", 30},
		{"sec-phys201-a", "crs-phys201", "A", 25},
		{"sec-chem110-a", "crs-chem110", "A", 40},
		{"sec-cs150-a", "crs-cs150", "A", 2},
	}
	for _, s := range sections {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO sections (id, course_id, period_id, label, seats_total, seats_left)
                         VALUES ($1, $2, $3, $4, $5, $5) ON CONFLICT DO NOTHING`,
			s.id, s.course, periodID, s.label, s.seats); err != nil {
			return fmt.Errorf("seed section %s: %w", s.id, err)
		}
	}

	slots := []struct {
		section  string
		weekday  int
		startMin int
		endMin   int
		room     string
	}{
		{"sec-math101-a", 1, 600, 660, "R101"},
		{"sec-math101-a", 3, 600, 660, "R101"},
		{"sec-math101-b", 2, 600, 660, "R102"},
		{"sec-math101-b", 4, 600, 660, "R102"},
		{"sec-phys201-a", 1, 630, 690, "LAB-2"},
		{"sec-phys201-a", 4, 840, 900, "LAB-2"},
		{"sec-chem110-a", 2, 480, 540, "LAB-1"},
		{"sec-cs150-a", 5, 720, 780, "R201"},
	}
	for _, sl := range slots {
		id := fmt.Sprintf("slot-%s-%d-%d", sl.section, sl.weekday, sl.startMin)
		if _, err := db.ExecContext(ctx,
			`INSERT INTO meeting_slots (id, section_id, weekday, start_min, end_min, room)
                         VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT DO NOTHING`,
			id, sl.section, sl.weekday, sl.startMin, sl.endMin, sl.room); err != nil {
			return fmt.Errorf("seed slot %s: %w", id, err)
		}
	}

	adminHash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	studentHash, err := bcrypt.GenerateFromPassword([]byte(studentPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash student password: %w", err)
	}

	const insertUser = `INSERT INTO users (id, email, password_hash, full_name, role, active)
                VALUES ($1, $2, $3, $4, $5, TRUE) ON CONFLICT DO NOTHING`
	if _, err := db.ExecContext(ctx, insertUser, "usr-admin", "admin@uni.test", string(adminHash), "Registrar Admin", "ADMIN"); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	if _, err := db.ExecContext(ctx, insertUser, "usr-staff", "staff@uni.test", string(adminHash), "Registrar Staff", "STAFF"); err != nil {
		return fmt.Errorf("seed staff user: %w", err)
	}
	for i := 1; i <= students; i++ {
		id := fmt.Sprintf("stu-%03d", i)
		email := fmt.Sprintf("student%d@uni.test", i)
		name := fmt.Sprintf("Student %d", i)
		if _, err := db.ExecContext(ctx, insertUser, id, email, string(studentHash), name, "STUDENT"); err != nil {
			return fmt.Errorf("seed student %s: %w", id, err)
		}
	}

	log.Printf("seeded period %s with %d courses, %d sections, %d slots, %d students",
		periodID, len(courses), len(sections), len(slots), students)
	return nil
}
