package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-enroll-api/internal/models"
)

// SectionRepository handles persistence for course sections.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// List returns sections joined with their course, filtered by the
// provided criteria.
func (r *SectionRepository) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error) {
	base := `FROM sections s
JOIN courses c ON c.id = s.course_id`
	var conditions []string
	var args []interface{}

	if filter.PeriodID != "" {
		conditions = append(conditions, fmt.Sprintf("s.period_id = $%d", len(args)+1))
		args = append(args, filter.PeriodID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("s.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.OnlyAvailable {
		conditions = append(conditions, "s.seats_left > 0")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"course_code": "c.code",
		"label":       "s.label",
		"seats_left":  "s.seats_left",
		"created_at":  "s.created_at",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "course_code"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "c.code"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT s.id, s.course_id, s.period_id, s.label, s.seats_total, s.seats_left, s.created_at, s.updated_at,
        c.code AS course_code, c.name AS course_name, c.teacher_name AS teacher_name
        %s ORDER BY %s %s, s.label ASC LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var sections []models.SectionDetail
	if err := r.db.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sections: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sections: %w", err)
	}
	return sections, total, nil
}

// FindDetailsByIDs loads the given sections joined with their course.
// IDs absent from the result did not exist; callers detect the gap.
func (r *SectionRepository) FindDetailsByIDs(ctx context.Context, ids []string) ([]models.SectionDetail, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT s.id, s.course_id, s.period_id, s.label, s.seats_total, s.seats_left, s.created_at, s.updated_at,
        c.code AS course_code, c.name AS course_name, c.teacher_name AS teacher_name
        FROM sections s
        JOIN courses c ON c.id = s.course_id
        WHERE s.id IN (%s)
        ORDER BY c.code ASC, s.label ASC`, strings.Join(placeholders, ","))

	var sections []models.SectionDetail
	if err := r.db.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, fmt.Errorf("find sections: %w", err)
	}
	return sections, nil
}
