// Package postgres is the gorm-backed persistence provider. Every row carries
// a version column; writes are conditional on the version the caller read.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"clubhub-backend/internal/domain"
	"clubhub-backend/internal/store"
)

type Store struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewStore(db *gorm.DB, log *logrus.Entry) *Store {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store{db: db, log: log}
}

// Migrate creates or updates the schema.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&userModel{}, &eventModel{}, &taskModel{}, &creditEntryModel{})
}

func (s *Store) GetUser(ctx context.Context, id string) (store.Record[domain.User], error) {
	var row userModel
	if err := s.first(ctx, &row, "id = ?", strings.TrimSpace(id)); err != nil {
		return store.Record[domain.User]{}, s.fail("postgres.GetUser", err, "user_id", id)
	}
	return store.Record[domain.User]{Value: row.toDomain(), Version: row.Version}, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (store.Record[domain.User], error) {
	var row userModel
	if err := s.first(ctx, &row, "lower(email) = lower(?)", strings.TrimSpace(email)); err != nil {
		return store.Record[domain.User]{}, s.fail("postgres.FindUserByEmail", err, "email", email)
	}
	return store.Record[domain.User]{Value: row.toDomain(), Version: row.Version}, nil
}

func (s *Store) CreateUser(ctx context.Context, u domain.User) (store.Record[domain.User], error) {
	row := userModelFromDomain(u, 1)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return store.Record[domain.User]{}, s.fail("postgres.CreateUser", err, "user_id", u.ID)
	}
	return store.Record[domain.User]{Value: row.toDomain(), Version: row.Version}, nil
}

func (s *Store) CompareAndSwapUser(ctx context.Context, id string, expected int64, next domain.User) (store.Record[domain.User], error) {
	id = strings.TrimSpace(id)
	next.ID = id
	row := userModelFromDomain(next, expected+1)
	if err := swapRow(ctx, s.db, row.TableName(), id, expected, &row); err != nil {
		return store.Record[domain.User]{}, s.fail("postgres.CompareAndSwapUser", err, "user_id", id)
	}
	return store.Record[domain.User]{Value: row.toDomain(), Version: row.Version}, nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (store.Record[domain.Event], error) {
	var row eventModel
	if err := s.first(ctx, &row, "id = ?", strings.TrimSpace(id)); err != nil {
		return store.Record[domain.Event]{}, s.fail("postgres.GetEvent", err, "event_id", id)
	}
	return store.Record[domain.Event]{Value: row.toDomain(), Version: row.Version}, nil
}

func (s *Store) CreateEvent(ctx context.Context, e domain.Event) (store.Record[domain.Event], error) {
	row := eventModelFromDomain(e, 1)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return store.Record[domain.Event]{}, s.fail("postgres.CreateEvent", err, "event_id", e.ID)
	}
	return store.Record[domain.Event]{Value: row.toDomain(), Version: row.Version}, nil
}

func (s *Store) CompareAndSwapEvent(ctx context.Context, id string, expected int64, next domain.Event) (store.Record[domain.Event], error) {
	id = strings.TrimSpace(id)
	next.ID = id
	row := eventModelFromDomain(next, expected+1)
	if err := swapRow(ctx, s.db, row.TableName(), id, expected, &row); err != nil {
		return store.Record[domain.Event]{}, s.fail("postgres.CompareAndSwapEvent", err, "event_id", id)
	}
	return store.Record[domain.Event]{Value: row.toDomain(), Version: row.Version}, nil
}

func (s *Store) DeleteEvent(ctx context.Context, id string, expected int64) error {
	id = strings.TrimSpace(id)
	if err := deleteRow(ctx, s.db, &eventModel{}, eventModel{}.TableName(), id, expected); err != nil {
		return s.fail("postgres.DeleteEvent", err, "event_id", id)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, f store.EventFilter) ([]domain.Event, error) {
	q := s.db.WithContext(ctx).Model(&eventModel{})
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		like := "%" + kw + "%"
		q = q.Where("title ILIKE ? OR description ILIKE ? OR location ILIKE ?", like, like, like)
	}
	if !f.From.IsZero() {
		q = q.Where("date >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("date <= ?", f.To)
	}
	if f.CreatorID != "" {
		q = q.Where("creator_id = ?", f.CreatorID)
	}
	if f.Participant != "" {
		needle, err := json.Marshal([]string{f.Participant})
		if err != nil {
			return nil, err
		}
		q = q.Where("participants @> ?", string(needle))
	}
	if f.Club != domain.NoClub {
		q = q.Where("club = ?", string(f.Club))
	}
	if f.PublishedOnly {
		q = q.Where("published = ?", true)
	}

	var rows []eventModel
	if err := q.Order("date ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, s.fail("postgres.ListEvents", err)
	}
	items := make([]domain.Event, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toDomain())
	}
	return items, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (store.Record[domain.Task], error) {
	var row taskModel
	if err := s.first(ctx, &row, "id = ?", strings.TrimSpace(id)); err != nil {
		return store.Record[domain.Task]{}, s.fail("postgres.GetTask", err, "task_id", id)
	}
	return taskRecord(row)
}

func (s *Store) CreateTask(ctx context.Context, t domain.Task) (store.Record[domain.Task], error) {
	row := taskModelFromDomain(t, 1)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return store.Record[domain.Task]{}, s.fail("postgres.CreateTask", err, "task_id", t.ID)
	}
	return taskRecord(row)
}

func (s *Store) CompareAndSwapTask(ctx context.Context, id string, expected int64, next domain.Task) (store.Record[domain.Task], error) {
	id = strings.TrimSpace(id)
	next.ID = id
	row := taskModelFromDomain(next, expected+1)
	if err := swapRow(ctx, s.db, row.TableName(), id, expected, &row); err != nil {
		return store.Record[domain.Task]{}, s.fail("postgres.CompareAndSwapTask", err, "task_id", id)
	}
	return taskRecord(row)
}

func (s *Store) DeleteTask(ctx context.Context, id string, expected int64) error {
	id = strings.TrimSpace(id)
	if err := deleteRow(ctx, s.db, &taskModel{}, taskModel{}.TableName(), id, expected); err != nil {
		return s.fail("postgres.DeleteTask", err, "task_id", id)
	}
	return nil
}

func (s *Store) ListTasks(ctx context.Context, f store.TaskFilter) ([]domain.Task, error) {
	q := s.db.WithContext(ctx).Model(&taskModel{})
	if f.AssignedTo != "" {
		q = q.Where("assigned_to = ?", f.AssignedTo)
	}
	if f.CreatedBy != "" {
		q = q.Where("created_by = ?", f.CreatedBy)
	}
	if f.Club != domain.NoClub {
		q = q.Where("club = ?", string(f.Club))
	}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		like := "%" + kw + "%"
		q = q.Where("title ILIKE ? OR description ILIKE ?", like, like)
	}

	var rows []taskModel
	if err := q.Order("created_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, s.fail("postgres.ListTasks", err)
	}
	items := make([]domain.Task, 0, len(rows))
	for _, row := range rows {
		rec, err := taskRecord(row)
		if err != nil {
			return nil, s.fail("postgres.ListTasks", err, "task_id", row.ID)
		}
		items = append(items, rec.Value)
	}
	return items, nil
}

func (s *Store) CommitVerification(ctx context.Context, taskID string, expected int64, next domain.Task, entry domain.CreditEntry) (store.Record[domain.Task], error) {
	taskID = strings.TrimSpace(taskID)
	next.ID = taskID
	row := taskModelFromDomain(next, expected+1)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := swapRow(ctx, tx, row.TableName(), taskID, expected, &row); err != nil {
			return err
		}

		credit := creditEntryModel{
			ID:        entry.ID,
			UserID:    entry.UserID,
			TaskID:    taskID,
			Amount:    entry.Amount,
			CreatedAt: entry.CreatedAt,
		}
		if err := tx.Create(&credit).Error; err != nil {
			return err
		}

		res := tx.Model(&userModel{}).
			Where("id = ?", entry.UserID).
			Updates(map[string]any{
				"credit_score": gorm.Expr("credit_score + ?", entry.Amount),
				"version":      gorm.Expr("version + 1"),
				"updated_at":   entry.CreatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return store.Record[domain.Task]{}, s.fail("postgres.CommitVerification", err, "task_id", taskID, "user_id", entry.UserID)
	}
	return taskRecord(row)
}

func (s *Store) ListCreditEntries(ctx context.Context, userID string) ([]domain.CreditEntry, error) {
	var rows []creditEntryModel
	err := s.db.WithContext(ctx).
		Where("user_id = ?", strings.TrimSpace(userID)).
		Order("created_at ASC").
		Find(&rows).
		Error
	if err != nil {
		return nil, s.fail("postgres.ListCreditEntries", err, "user_id", userID)
	}
	items := make([]domain.CreditEntry, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toDomain())
	}
	return items, nil
}

func (s *Store) first(ctx context.Context, dest any, query string, args ...any) error {
	return s.db.WithContext(ctx).Where(query, args...).First(dest).Error
}

// fail maps driver errors onto store sentinels and logs anything that is not
// an expected business outcome.
func (s *Store) fail(op string, err error, kv ...string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound), isInvalidText(err):
		return store.ErrNotFound
	case isUniqueViolation(err):
		return store.ErrDuplicate
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrVersionConflict), errors.Is(err, store.ErrDuplicate):
		return err
	}

	fields := logrus.Fields{"operation": op}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[kv[i]] = kv[i+1]
	}
	s.log.WithFields(fields).WithError(err).Error("postgres store failure")
	return err
}

func taskRecord(row taskModel) (store.Record[domain.Task], error) {
	t, err := row.toDomain()
	if err != nil {
		return store.Record[domain.Task]{}, err
	}
	return store.Record[domain.Task]{Value: t, Version: row.Version}, nil
}

// swapRow writes row only when the stored version still equals expected.
// row must already carry the next version.
func swapRow(ctx context.Context, db *gorm.DB, table, id string, expected int64, row any) error {
	res := db.WithContext(ctx).
		Model(row).
		Clauses(clause.Returning{}).
		Where("id = ? AND version = ?", id, expected).
		Select("*").
		Omit("id", "created_at").
		Updates(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return missingOrConflict(ctx, db, table, id)
	}
	return nil
}

func deleteRow(ctx context.Context, db *gorm.DB, model any, table, id string, expected int64) error {
	res := db.WithContext(ctx).
		Where("id = ? AND version = ?", id, expected).
		Delete(model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return missingOrConflict(ctx, db, table, id)
	}
	return nil
}

func missingOrConflict(ctx context.Context, db *gorm.DB, table, id string) error {
	var n int64
	if err := db.WithContext(ctx).Table(table).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return store.ErrVersionConflict
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isInvalidText catches malformed uuids in lookups.
func isInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

var _ store.Store = (*Store)(nil)
