package store

import "time"

// GORM models used for persistence.
type UserModel struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	Username       string    `gorm:"size:50;uniqueIndex;not null"`
	Email          *string   `gorm:"size:100;uniqueIndex"`
	HashedPassword string    `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

type BookModel struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	Title       string `gorm:"not null"`
	Author      string `gorm:"not null"`
	Description *string
	TotalPages  int `gorm:"not null"`
	PDFPath     *string
	OwnerID     int64     `gorm:"not null;index"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (BookModel) TableName() string { return "books" }

type ReadingProgressModel struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	UserID      int64     `gorm:"not null;uniqueIndex:idx_reading_progress_user_book"`
	BookID      int64     `gorm:"not null;uniqueIndex:idx_reading_progress_user_book;index"`
	CurrentPage int       `gorm:"not null;default:0"`
	IsFinished  bool      `gorm:"not null;default:false"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (ReadingProgressModel) TableName() string { return "reading_progress" }

type ReviewModel struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	UserID    int64 `gorm:"not null;index"`
	BookID    int64 `gorm:"not null;index"`
	Rating    int   `gorm:"not null"`
	Text      *string
	CreatedAt time.Time `gorm:"not null"`
}

func (ReviewModel) TableName() string { return "reviews" }
