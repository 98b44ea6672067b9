package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"sinapsisdata/pkg/domain"
)

const migrateLockID int64 = 51730942

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// foreign keys added after AutoMigrate; every child row goes with its parent.
var foreignKeys = []struct {
	table, constraint, column, refTable string
}{
	{"member_models", "member_models_project_id_fkey", "project_id", "project_models"},
	{"member_models", "member_models_user_id_fkey", "user_id", "user_models"},
	{"report_models", "report_models_project_id_fkey", "project_id", "project_models"},
	{"report_file_models", "report_file_models_report_id_fkey", "report_id", "report_models"},
	{"question_models", "question_models_report_id_fkey", "report_id", "report_models"},
	{"question_models", "question_models_project_id_fkey", "project_id", "project_models"},
	{"proposal_models", "proposal_models_report_id_fkey", "report_id", "report_models"},
	{"proposal_models", "proposal_models_project_id_fkey", "project_id", "project_models"},
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, migrate); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func migrate(tx *gorm.DB) error {
	if err := tx.AutoMigrate(
		&UserModel{}, &ProjectModel{}, &MemberModel{}, &ReportModel{},
		&ReportFileModel{}, &QuestionModel{}, &ProposalModel{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, fk := range foreignKeys {
		if err := tx.Exec(fmt.Sprintf(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = '%[1]s'
					AND constraint_name = '%[2]s'
				) THEN
					ALTER TABLE %[1]s
					ADD CONSTRAINT %[2]s
					FOREIGN KEY (%[3]s) REFERENCES %[4]s(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`, fk.table, fk.constraint, fk.column, fk.refTable)).Error; err != nil {
			return fmt.Errorf("ensure foreign key %s: %w", fk.constraint, err)
		}
	}
	if err := tx.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS report_models_one_overview
		ON report_models (project_id) WHERE type = 'OVERVIEW'
	`).Error; err != nil {
		return fmt.Errorf("ensure overview index: %w", err)
	}
	if err := tx.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS report_models_project_slug
		ON report_models (project_id, slug) WHERE slug <> ''
	`).Error; err != nil {
		return fmt.Errorf("ensure report slug index: %w", err)
	}
	return nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "name", "password_hash", "role", "status", "updated_at"}),
	}).Create(&model).Error
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// UserCount returns number of users.
func (s *GormStore) UserCount() (int, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// SaveProject stores or updates a project.
func (s *GormStore) SaveProject(p domain.Project) error {
	model := projectToModel(p)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "slug", "description", "ai_context", "status", "updated_at"}),
	}).Create(&model).Error
}

func (s *GormStore) GetProject(id string) (domain.Project, bool, error) {
	return s.getProject("id = ?", id)
}

func (s *GormStore) GetProjectBySlug(slug string) (domain.Project, bool, error) {
	return s.getProject("slug = ?", slug)
}

func (s *GormStore) getProject(cond string, arg any) (domain.Project, bool, error) {
	var model ProjectModel
	if err := s.db.Where(cond, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Project{}, false, nil
		}
		return domain.Project{}, false, err
	}
	return projectFromModel(model), true, nil
}

// ListProjects returns every project ordered by name.
func (s *GormStore) ListProjects() ([]domain.Project, error) {
	var models []ProjectModel
	if err := s.db.Order("name ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, projectFromModel), nil
}

// ListProjectsForUser returns the projects the user is a member of.
func (s *GormStore) ListProjectsForUser(userID string) ([]domain.Project, error) {
	var models []ProjectModel
	if err := s.db.
		Joins("JOIN member_models m ON m.project_id = project_models.id").
		Where("m.user_id = ?", userID).
		Order("project_models.name ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, projectFromModel), nil
}

func (s *GormStore) ProjectSlugTaken(slug string) (bool, error) {
	var count int64
	if err := s.db.Model(&ProjectModel{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// SaveMember adds a member or updates its role.
func (s *GormStore) SaveMember(m domain.Member) error {
	model := MemberModel{ProjectID: m.ProjectID, UserID: m.UserID, Role: string(m.Role), CreatedAt: m.CreatedAt}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role"}),
	}).Create(&model).Error
}

func (s *GormStore) GetMember(projectID, userID string) (domain.Member, bool, error) {
	var model MemberModel
	if err := s.db.First(&model, "project_id = ? AND user_id = ?", projectID, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Member{}, false, nil
		}
		return domain.Member{}, false, err
	}
	return domain.Member{
		ProjectID: model.ProjectID,
		UserID:    model.UserID,
		Role:      domain.MemberRole(model.Role),
		CreatedAt: model.CreatedAt,
	}, true, nil
}

// SaveReport stores or fully replaces a report. A worker claim is left as is.
func (s *GormStore) SaveReport(r domain.Report) error {
	model := reportToModel(r)
	return s.db.Omit("claimed_at").Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&model).Error
}

// GetReport retrieves a report.
func (s *GormStore) GetReport(id string) (domain.Report, bool, error) {
	var model ReportModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Report{}, false, nil
		}
		return domain.Report{}, false, err
	}
	return reportFromModel(model), true, nil
}

// ListReports returns a project's reports, newest first.
func (s *GormStore) ListReports(projectID string, filter ReportFilter) ([]domain.Report, error) {
	tx := s.db.Where("project_id = ?", projectID)
	if filter.Type != "" {
		tx = tx.Where("type = ?", string(filter.Type))
	}
	if filter.Status != "" {
		tx = tx.Where("status = ?", string(filter.Status))
	}
	var models []ReportModel
	if err := tx.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, reportFromModel), nil
}

// ListReadyReportUsage returns READY reports across all projects without
// their HTML bodies.
func (s *GormStore) ListReadyReportUsage() ([]domain.Report, error) {
	var models []ReportModel
	if err := s.db.Omit("html_content").
		Where("status = ?", string(domain.StatusReady)).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, reportFromModel), nil
}

// DeleteReport removes a report; files, questions and proposals cascade.
func (s *GormStore) DeleteReport(id string) error {
	return s.db.Delete(&ReportModel{}, "id = ?", id).Error
}

// FindOrCreateOverview returns the project's overview, inserting candidate
// when none exists. The bool reports whether candidate was inserted.
func (s *GormStore) FindOrCreateOverview(candidate domain.Report) (domain.Report, bool, error) {
	var (
		out     domain.Report
		created bool
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		model := reportToModel(candidate)
		model.Type = string(domain.ReportOverview)
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected > 0
		var existing ReportModel
		if err := tx.Where("project_id = ? AND type = ?", candidate.ProjectID, string(domain.ReportOverview)).
			First(&existing).Error; err != nil {
			return err
		}
		out = reportFromModel(existing)
		return nil
	})
	if err != nil {
		return domain.Report{}, false, err
	}
	return out, created, nil
}

// MarkProcessing moves a report into PROCESSING for a new job and clears its
// last error, document and worker claim.
func (s *GormStore) MarkProcessing(id string) error {
	return s.updateReport(id, map[string]any{
		"status":        string(domain.StatusProcessing),
		"html_content":  gorm.Expr("NULL"),
		"error_message": "",
		"claimed_at":    gorm.Expr("NULL"),
		"updated_at":    time.Now().UTC(),
	})
}

// MarkRefining moves a report into PROCESSING for a synchronous refine. The
// document stays until the refined one replaces it, and no worker may claim
// the row.
func (s *GormStore) MarkRefining(id string) error {
	now := time.Now().UTC()
	return s.updateReport(id, map[string]any{
		"status":        string(domain.StatusProcessing),
		"error_message": "",
		"claimed_at":    now,
		"updated_at":    now,
	})
}

// ClaimReport takes a PROCESSING report for one worker. It returns false
// when the report has settled or another worker holds it.
func (s *GormStore) ClaimReport(id string) (bool, error) {
	now := time.Now().UTC()
	res := s.db.Model(&ReportModel{}).
		Where("id = ? AND status = ? AND claimed_at IS NULL", id, string(domain.StatusProcessing)).
		Updates(map[string]any{"claimed_at": now, "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	var count int64
	if err := s.db.Model(&ReportModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	if count == 0 {
		return false, ErrNotFound
	}
	return false, nil
}

// RecoverStale settles PROCESSING reports untouched since before. A report
// that still holds a document was mid-refine and goes back to READY; the
// rest end in ERROR with message.
func (s *GormStore) RecoverStale(before time.Time, message string) (int, error) {
	var n int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		stale := func() *gorm.DB {
			return tx.Model(&ReportModel{}).Where("status = ? AND updated_at < ?", string(domain.StatusProcessing), before.UTC())
		}
		res := stale().Where("html_content IS NOT NULL").Updates(map[string]any{
			"status":     string(domain.StatusReady),
			"claimed_at": gorm.Expr("NULL"),
			"updated_at": now,
		})
		if res.Error != nil {
			return res.Error
		}
		n += res.RowsAffected
		res = stale().Where("html_content IS NULL").Updates(map[string]any{
			"status":        string(domain.StatusError),
			"error_message": message,
			"claimed_at":    gorm.Expr("NULL"),
			"updated_at":    now,
		})
		if res.Error != nil {
			return res.Error
		}
		n += res.RowsAffected
		return nil
	})
	return int(n), err
}

func (s *GormStore) updateReport(id string, updates map[string]any) error {
	res := s.db.Model(&ReportModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteReport writes the READY state, folds usage into the stored
// metadata and inserts any new feedback records in one transaction.
func (s *GormStore) CompleteReport(id string, c Completion) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var current ReportModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "ai_metadata").
			First(&current, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		merged := domain.Accumulate(metadataFromJSON(current.AIMetadata), c.Usage)
		updates := map[string]any{
			"status":        string(domain.StatusReady),
			"html_content":  c.HTMLContent,
			"error_message": "",
			"ai_metadata":   metadataToJSON(&merged),
			"claimed_at":    gorm.Expr("NULL"),
			"updated_at":    time.Now().UTC(),
		}
		if c.ExecutiveSummary != nil {
			updates["executive_summary"] = *c.ExecutiveSummary
		}
		if err := tx.Model(&ReportModel{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		if len(c.Questions) > 0 {
			models := mapSlice(c.Questions, questionToModel)
			if err := tx.CreateInBatches(&models, 100).Error; err != nil {
				return fmt.Errorf("insert questions: %w", err)
			}
		}
		if len(c.Proposals) > 0 {
			models := mapSlice(c.Proposals, proposalToModel)
			if err := tx.CreateInBatches(&models, 100).Error; err != nil {
				return fmt.Errorf("insert proposals: %w", err)
			}
		}
		return nil
	})
}

// FailReport moves a report into ERROR with a short message.
func (s *GormStore) FailReport(id string, message string) error {
	return s.updateReport(id, map[string]any{
		"status":        string(domain.StatusError),
		"html_content":  gorm.Expr("NULL"),
		"error_message": message,
		"claimed_at":    gorm.Expr("NULL"),
		"updated_at":    time.Now().UTC(),
	})
}

func (s *GormStore) ReportSlugTaken(projectID, slug string) (bool, error) {
	var count int64
	if err := s.db.Model(&ReportModel{}).
		Where("project_id = ? AND slug = ?", projectID, slug).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetPublishedReport finds a published report by its slug within a project.
func (s *GormStore) GetPublishedReport(projectID, slug string) (domain.Report, bool, error) {
	var model ReportModel
	if err := s.db.Where("project_id = ? AND slug = ? AND is_published = ?", projectID, slug, true).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Report{}, false, nil
		}
		return domain.Report{}, false, err
	}
	return reportFromModel(model), true, nil
}

// SaveFile records an uploaded file.
func (s *GormStore) SaveFile(f domain.ReportFile) error {
	model := fileToModel(f)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&model).Error
}

// ListFiles returns a report's files in upload order.
func (s *GormStore) ListFiles(reportID string) ([]domain.ReportFile, error) {
	var models []ReportFileModel
	if err := s.db.Where("report_id = ?", reportID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, fileFromModel), nil
}

// SetFileParsed stores the ingestion result of a file.
func (s *GormStore) SetFileParsed(id string, rows []domain.Row, columns []string) error {
	if columns == nil {
		columns = []string{}
	}
	res := s.db.Model(&ReportFileModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"parsed_data": mustJSON(rows),
			"columns":     mustJSON(columns),
			"row_count":   len(rows),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) GetQuestion(id string) (domain.Question, bool, error) {
	var model QuestionModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Question{}, false, nil
		}
		return domain.Question{}, false, err
	}
	return questionFromModel(model), true, nil
}

// ListQuestions returns a project's questions, optionally filtered by status.
// Answered questions come back in answer order, the rest newest first.
func (s *GormStore) ListQuestions(projectID string, status domain.QuestionStatus) ([]domain.Question, error) {
	tx := s.db.Where("project_id = ?", projectID)
	if status != "" {
		tx = tx.Where("status = ?", string(status))
	}
	if status == domain.QuestionAnswered {
		tx = tx.Order("answered_at ASC, id ASC")
	} else {
		tx = tx.Order("created_at DESC, id ASC")
	}
	var models []QuestionModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, questionFromModel), nil
}

// ResolveQuestion applies a terminal resolution to a PENDING question.
func (s *GormStore) ResolveQuestion(id string, r QuestionResolution) (domain.Question, error) {
	var out domain.Question
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&QuestionModel{}).
			Where("id = ? AND status = ?", id, string(domain.QuestionPending)).
			Updates(map[string]any{
				"status":         string(r.Status),
				"answer":         r.Answer,
				"answered_by_id": r.AnsweredByID,
				"answered_at":    r.At.UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		var model QuestionModel
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		out = questionFromModel(model)
		if res.RowsAffected == 0 {
			return ErrAlreadyResolved
		}
		return nil
	})
	return out, err
}

func (s *GormStore) GetProposal(id string) (domain.Proposal, bool, error) {
	var model ProposalModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Proposal{}, false, nil
		}
		return domain.Proposal{}, false, err
	}
	return proposalFromModel(model), true, nil
}

// ListProposals returns a project's proposals, optionally filtered by status.
// Voted proposals come back in vote order, pending ones newest first.
func (s *GormStore) ListProposals(projectID string, status domain.ProposalStatus) ([]domain.Proposal, error) {
	tx := s.db.Where("project_id = ?", projectID)
	if status != "" {
		tx = tx.Where("status = ?", string(status))
	}
	if status == domain.ProposalApproved || status == domain.ProposalRejected {
		tx = tx.Order("voted_at ASC, id ASC")
	} else {
		tx = tx.Order("created_at DESC, id ASC")
	}
	var models []ProposalModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	return mapSlice(models, proposalFromModel), nil
}

// ResolveProposal applies a terminal vote to a PENDING proposal.
func (s *GormStore) ResolveProposal(id string, r ProposalResolution) (domain.Proposal, error) {
	var out domain.Proposal
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&ProposalModel{}).
			Where("id = ? AND status = ?", id, string(domain.ProposalPending)).
			Updates(map[string]any{
				"status":       string(r.Status),
				"vote_comment": r.Comment,
				"voted_by_id":  r.VotedByID,
				"voted_at":     r.At.UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		var model ProposalModel
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		out = proposalFromModel(model)
		if res.RowsAffected == 0 {
			return ErrAlreadyResolved
		}
		return nil
	})
	return out, err
}

func mapSlice[T, U any](in []T, fn func(T) U) []U {
	out := make([]U, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}

func mustJSON(v any) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func metadataToJSON(m *domain.AIMetadata) datatypes.JSON {
	if m == nil {
		return nil
	}
	return mustJSON(m)
}

func metadataFromJSON(raw datatypes.JSON) *domain.AIMetadata {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var m domain.AIMetadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return &m
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		Status:       string(u.Status),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	status := domain.UserStatus(m.Status)
	if status == "" {
		status = domain.UserActive
	}
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		Name:         m.Name,
		PasswordHash: m.PasswordHash,
		Role:         domain.UserRole(m.Role),
		Status:       status,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func projectToModel(p domain.Project) ProjectModel {
	return ProjectModel{
		ID:          p.ID,
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		AIContext:   p.AIContext,
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func projectFromModel(m ProjectModel) domain.Project {
	return domain.Project{
		ID:          m.ID,
		Name:        m.Name,
		Slug:        m.Slug,
		Description: m.Description,
		AIContext:   m.AIContext,
		Status:      domain.ProjectStatus(m.Status),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func reportToModel(r domain.Report) ReportModel {
	return ReportModel{
		ID:               r.ID,
		ProjectID:        r.ProjectID,
		Type:             string(r.Type),
		Title:            r.Title,
		Description:      r.Description,
		Prompt:           r.Prompt,
		Status:           string(r.Status),
		HTMLContent:      r.HTMLContent,
		ErrorMessage:     r.ErrorMessage,
		AIMetadata:       metadataToJSON(r.AIMetadata),
		ExecutiveSummary: r.ExecutiveSummary,
		Strengths:        r.Strengths,
		Opportunities:    r.Opportunities,
		IsPublished:      r.IsPublished,
		IsPublic:         r.IsPublic,
		Slug:             r.Slug,
		PublishedAt:      r.PublishedAt,
		PeriodFrom:       r.PeriodFrom,
		PeriodTo:         r.PeriodTo,
		CreatedByID:      r.CreatedByID,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func reportFromModel(m ReportModel) domain.Report {
	return domain.Report{
		ID:               m.ID,
		ProjectID:        m.ProjectID,
		Type:             domain.ReportType(m.Type),
		Title:            m.Title,
		Description:      m.Description,
		Prompt:           m.Prompt,
		Status:           domain.ReportStatus(m.Status),
		HTMLContent:      m.HTMLContent,
		ErrorMessage:     m.ErrorMessage,
		AIMetadata:       metadataFromJSON(m.AIMetadata),
		ExecutiveSummary: m.ExecutiveSummary,
		Strengths:        m.Strengths,
		Opportunities:    m.Opportunities,
		IsPublished:      m.IsPublished,
		IsPublic:         m.IsPublic,
		Slug:             m.Slug,
		PublishedAt:      m.PublishedAt,
		PeriodFrom:       m.PeriodFrom,
		PeriodTo:         m.PeriodTo,
		CreatedByID:      m.CreatedByID,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func fileToModel(f domain.ReportFile) ReportFileModel {
	model := ReportFileModel{
		ID:          f.ID,
		ReportID:    f.ReportID,
		Filename:    f.Filename,
		MimeType:    f.MimeType,
		Size:        f.Size,
		StoragePath: f.StoragePath,
		RowCount:    f.RowCount,
		CreatedAt:   f.CreatedAt,
	}
	if f.Ingested() {
		model.ParsedData = mustJSON(f.ParsedData)
		model.Columns = mustJSON(f.Columns)
	}
	return model
}

func fileFromModel(m ReportFileModel) domain.ReportFile {
	f := domain.ReportFile{
		ID:          m.ID,
		ReportID:    m.ReportID,
		Filename:    m.Filename,
		MimeType:    m.MimeType,
		Size:        m.Size,
		StoragePath: m.StoragePath,
		RowCount:    m.RowCount,
		CreatedAt:   m.CreatedAt,
	}
	if len(m.Columns) > 0 && string(m.Columns) != "null" {
		f.Columns = []string{}
		_ = json.Unmarshal(m.Columns, &f.Columns)
		if len(m.ParsedData) > 0 {
			_ = json.Unmarshal(m.ParsedData, &f.ParsedData)
		}
	}
	return f
}

func questionToModel(q domain.Question) QuestionModel {
	return QuestionModel{
		ID:           q.ID,
		ProjectID:    q.ProjectID,
		ReportID:     q.ReportID,
		Question:     q.Question,
		Context:      q.Context,
		Status:       string(q.Status),
		Answer:       q.Answer,
		AnsweredByID: q.AnsweredByID,
		AnsweredAt:   q.AnsweredAt,
		CreatedAt:    q.CreatedAt,
	}
}

func questionFromModel(m QuestionModel) domain.Question {
	return domain.Question{
		ID:           m.ID,
		ProjectID:    m.ProjectID,
		ReportID:     m.ReportID,
		Question:     m.Question,
		Context:      m.Context,
		Status:       domain.QuestionStatus(m.Status),
		Answer:       m.Answer,
		AnsweredByID: m.AnsweredByID,
		AnsweredAt:   m.AnsweredAt,
		CreatedAt:    m.CreatedAt,
	}
}

func proposalToModel(p domain.Proposal) ProposalModel {
	return ProposalModel{
		ID:          p.ID,
		ProjectID:   p.ProjectID,
		ReportID:    p.ReportID,
		Type:        string(p.Type),
		Title:       p.Title,
		Description: p.Description,
		Priority:    string(p.Priority),
		Status:      string(p.Status),
		VotedByID:   p.VotedByID,
		VotedAt:     p.VotedAt,
		VoteComment: p.VoteComment,
		CreatedAt:   p.CreatedAt,
	}
}

func proposalFromModel(m ProposalModel) domain.Proposal {
	return domain.Proposal{
		ID:          m.ID,
		ProjectID:   m.ProjectID,
		ReportID:    m.ReportID,
		Type:        domain.ProposalType(m.Type),
		Title:       m.Title,
		Description: m.Description,
		Priority:    domain.ProposalPriority(m.Priority),
		Status:      domain.ProposalStatus(m.Status),
		VotedByID:   m.VotedByID,
		VotedAt:     m.VotedAt,
		VoteComment: m.VoteComment,
		CreatedAt:   m.CreatedAt,
	}
}
