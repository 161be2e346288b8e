package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"booktracker/pkg/domain"
)

const migrateLockID int64 = 51904417

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type GormStoreOptions struct {
	Driver        string
	SlowThreshold time.Duration
}

type GormStoreOption func(*GormStoreOptions)

// WithDriver forces the database driver instead of inferring it from the DSN.
func WithDriver(driver string) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.Driver = driver
	}
}

// WithSlowThreshold sets the duration after which queries are logged as slow.
func WithSlowThreshold(d time.Duration) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.SlowThreshold = d
	}
}

// GormStore implements Store using GORM over Postgres or SQLite.
type GormStore struct {
	db     *gorm.DB
	driver string
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{SlowThreshold: time.Second}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	driver, err := ResolveDriver(opts.Driver, dsn)
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		path := sqlitePath(dsn)
		if err := ensureSQLiteDir(path); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(path)
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             opts.SlowThreshold,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	migrate := func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &BookModel{}, &ReadingProgressModel{}, &ReviewModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}
	switch driver {
	case DriverPostgres:
		err = withMigrationLock(db, migrate)
	case DriverSQLite:
		// SQLite allows a single writer; one pooled connection avoids "database is locked".
		sqlDB, dbErr := db.DB()
		if dbErr != nil {
			return nil, fmt.Errorf("get sql db: %w", dbErr)
		}
		sqlDB.SetMaxOpenConns(1)
		err = migrate(db)
	}
	if err != nil {
		return nil, err
	}
	return &GormStore{db: db, driver: driver}, nil
}

// ResolveDriver returns the explicit driver when set, otherwise infers it
// from the DSN: postgres URLs and key/value DSNs select Postgres, anything
// else is treated as a SQLite path.
func ResolveDriver(driver, dsn string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverPostgres, "postgresql":
		return DriverPostgres, nil
	case DriverSQLite, "sqlite3":
		return DriverSQLite, nil
	case "":
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", errors.New("database URL required")
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return DriverPostgres, nil
	}
	return DriverSQLite, nil
}

// Driver returns the resolved database driver name.
func (s *GormStore) Driver() string {
	return s.driver
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func sqlitePath(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	for _, prefix := range []string{"sqlite3://", "sqlite://", "sqlite:"} {
		if strings.HasPrefix(dsn, prefix) {
			return strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

func ensureSQLiteDir(path string) error {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sqlite dir: %w", err)
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

// CreateUser inserts a user. A taken username or email yields ErrDuplicate.
func (s *GormStore) CreateUser(u domain.User) (domain.User, error) {
	model := userToModel(u)
	if err := s.db.Create(&model).Error; err != nil {
		return domain.User{}, translateError(err)
	}
	return userFromModel(model), nil
}

// HasUsername checks if username exists.
func (s *GormStore) HasUsername(username string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByUsername looks up a user by username.
func (s *GormStore) GetUserByUsername(username string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("username = ?", username).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id int64) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// CreateBook inserts a book and returns it with its assigned ID.
func (s *GormStore) CreateBook(b domain.Book) (domain.Book, error) {
	model := bookToModel(b)
	if err := s.db.Create(&model).Error; err != nil {
		return domain.Book{}, translateError(err)
	}
	return bookFromModel(model), nil
}

// UpdateBook replaces title, author, description and total pages of the
// book identified by b.ID and owned by b.OwnerID. ErrNotFound when no such
// book exists.
func (s *GormStore) UpdateBook(b domain.Book) (domain.Book, error) {
	var model BookModel
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&model, "id = ? AND owner_id = ?", b.ID, b.OwnerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Model(&model).Updates(map[string]any{
			"title":       b.Title,
			"author":      b.Author,
			"description": nullableString(b.Description),
			"total_pages": b.TotalPages,
		}).Error; err != nil {
			return err
		}
		if err := tx.Model(&ReadingProgressModel{}).
			Where("book_id = ?", b.ID).
			UpdateColumn("is_finished", gorm.Expr("current_page >= ?", b.TotalPages)).Error; err != nil {
			return err
		}
		return tx.First(&model, "id = ?", b.ID).Error
	})
	if err != nil {
		return domain.Book{}, err
	}
	return bookFromModel(model), nil
}

// GetBook retrieves a book regardless of owner.
func (s *GormStore) GetBook(id int64) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// GetOwnedBook retrieves a book only when it belongs to ownerID.
func (s *GormStore) GetOwnedBook(ownerID, id int64) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.First(&model, "id = ? AND owner_id = ?", id, ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// ListBooksByOwner returns books filtered by owner.
func (s *GormStore) ListBooksByOwner(ownerID int64) ([]domain.Book, error) {
	return s.listBooks("id ASC", "owner_id = ?", ownerID)
}

func (s *GormStore) listBooks(order string, conds ...any) ([]domain.Book, error) {
	var models []BookModel
	tx := s.db.Order(order)
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

// DeleteBook removes a book together with its progress and reviews.
func (s *GormStore) DeleteBook(id int64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ReadingProgressModel{}, "book_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&ReviewModel{}, "book_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&BookModel{}, "id = ?", id).Error; err != nil {
			return err
		}
		return nil
	})
}

// UpsertProgress records currentPage for (userID, bookID) inside one
// transaction. The book must be owned by userID, otherwise ErrNotFound.
// An existing row is overwritten; the (user_id, book_id) unique index is the
// conflict target so concurrent calls cannot insert duplicates.
func (s *GormStore) UpsertProgress(userID, bookID int64, currentPage int, updatedAt time.Time) (domain.ReadingProgress, error) {
	var out ReadingProgressModel
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var book BookModel
		if err := tx.First(&book, "id = ? AND owner_id = ?", bookID, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		model := ReadingProgressModel{
			UserID:      userID,
			BookID:      bookID,
			CurrentPage: currentPage,
			IsFinished:  domain.Finished(currentPage, book.TotalPages),
			UpdatedAt:   updatedAt.UTC(),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "book_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"current_page", "is_finished", "updated_at"}),
		}).Create(&model).Error; err != nil {
			return err
		}
		return tx.First(&out, "user_id = ? AND book_id = ?", userID, bookID).Error
	})
	if err != nil {
		return domain.ReadingProgress{}, err
	}
	return progressFromModel(out), nil
}

// GetProgress returns the progress row for (userID, bookID).
func (s *GormStore) GetProgress(userID, bookID int64) (domain.ReadingProgress, bool, error) {
	var model ReadingProgressModel
	if err := s.db.Where("user_id = ? AND book_id = ?", userID, bookID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ReadingProgress{}, false, nil
		}
		return domain.ReadingProgress{}, false, err
	}
	return progressFromModel(model), true, nil
}

// CreateReview records a review.
func (s *GormStore) CreateReview(r domain.Review) (domain.Review, error) {
	model := reviewToModel(r)
	if err := s.db.Create(&model).Error; err != nil {
		return domain.Review{}, translateError(err)
	}
	return reviewFromModel(model), nil
}

// ListReviewsByBook returns reviews of a book, oldest first.
func (s *GormStore) ListReviewsByBook(bookID int64) ([]domain.Review, error) {
	var models []ReviewModel
	if err := s.db.Where("book_id = ?", bookID).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Review, 0, len(models))
	for _, m := range models {
		res = append(res, reviewFromModel(m))
	}
	return res, nil
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key") {
		return ErrDuplicate
	}
	return err
}

func nullableString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:             u.ID,
		Username:       u.Username,
		Email:          nullableString(u.Email),
		HashedPassword: u.PasswordHash,
		CreatedAt:      u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Username:     m.Username,
		Email:        derefString(m.Email),
		PasswordHash: m.HashedPassword,
		CreatedAt:    m.CreatedAt,
	}
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:          b.ID,
		Title:       b.Title,
		Author:      b.Author,
		Description: nullableString(b.Description),
		TotalPages:  b.TotalPages,
		PDFPath:     nullableString(b.PDFPath),
		OwnerID:     b.OwnerID,
		CreatedAt:   b.CreatedAt,
	}
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:          m.ID,
		OwnerID:     m.OwnerID,
		Title:       m.Title,
		Author:      m.Author,
		Description: derefString(m.Description),
		TotalPages:  m.TotalPages,
		PDFPath:     derefString(m.PDFPath),
		CreatedAt:   m.CreatedAt,
	}
}

func progressFromModel(m ReadingProgressModel) domain.ReadingProgress {
	return domain.ReadingProgress{
		ID:          m.ID,
		UserID:      m.UserID,
		BookID:      m.BookID,
		CurrentPage: m.CurrentPage,
		IsFinished:  m.IsFinished,
		UpdatedAt:   m.UpdatedAt,
	}
}

func reviewToModel(r domain.Review) ReviewModel {
	return ReviewModel{
		ID:        r.ID,
		UserID:    r.UserID,
		BookID:    r.BookID,
		Rating:    r.Rating,
		Text:      nullableString(r.Text),
		CreatedAt: r.CreatedAt,
	}
}

func reviewFromModel(m ReviewModel) domain.Review {
	return domain.Review{
		ID:        m.ID,
		UserID:    m.UserID,
		BookID:    m.BookID,
		Rating:    m.Rating,
		Text:      derefString(m.Text),
		CreatedAt: m.CreatedAt,
	}
}
