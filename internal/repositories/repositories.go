package repositories

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lendinglibrary/internal/models"
)

type MemberRepository interface {
	Create(db *gorm.DB, member *models.Member) error
	GetByID(db *gorm.DB, id uint) (*models.Member, error)
	GetByUsername(db *gorm.DB, username string) (*models.Member, error)
}

type BookRepository interface {
	Create(db *gorm.DB, book *models.Book) error
	GetByID(db *gorm.DB, id uint) (*models.Book, error)
	GetByIDForUpdate(db *gorm.DB, id uint) (*models.Book, error)
	Update(db *gorm.DB, book *models.Book) error
	Delete(db *gorm.DB, id uint) (int64, error)
	Search(db *gorm.DB, substring string) ([]models.Book, error)
	TakeAvailableCopy(db *gorm.DB, id uint) (int64, error)
	ReleaseCopy(db *gorm.DB, id uint) error
}

type BorrowRepository interface {
	Create(db *gorm.DB, record *models.BorrowRecord) error
	GetByID(db *gorm.DB, id uint) (*models.BorrowRecord, error)
	GetByIDForUpdate(db *gorm.DB, id uint) (*models.BorrowRecord, error)
	FindActive(db *gorm.DB, memberID, bookID uint) (*models.BorrowRecord, error)
	Transition(db *gorm.DB, id uint, from []models.BorrowStatus, to models.BorrowStatus) (int64, error)
	ListByMember(db *gorm.DB, memberID uint) ([]models.MemberRequestRow, error)
	ListAll(db *gorm.DB, status models.BorrowStatus) ([]models.RequestRow, error)
}

// concrete implementations

type memberRepository struct {
	db *gorm.DB
}

func NewMemberRepository(db *gorm.DB) MemberRepository {
	return &memberRepository{db: db}
}

func (r *memberRepository) Create(db *gorm.DB, member *models.Member) error {
	if db == nil {
		db = r.db
	}
	return db.Create(member).Error
}

func (r *memberRepository) GetByID(db *gorm.DB, id uint) (*models.Member, error) {
	if db == nil {
		db = r.db
	}
	var member models.Member
	if err := db.First(&member, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *memberRepository) GetByUsername(db *gorm.DB, username string) (*models.Member, error) {
	if db == nil {
		db = r.db
	}
	var member models.Member
	if err := db.First(&member, "username = ?", username).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

type bookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) Create(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	return db.Create(book).Error
}

func (r *bookRepository) GetByID(db *gorm.DB, id uint) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	if err := db.First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// GetByIDForUpdate row-locks the book on Postgres. SQLite ignores the locking
// clause; its single writer connection already serializes the transaction.
func (r *bookRepository) GetByIDForUpdate(db *gorm.DB, id uint) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&book, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) Update(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Book{}).
		Where("id = ?", book.ID).
		Updates(map[string]interface{}{
			"title":            book.Title,
			"author":           book.Author,
			"category":         book.Category,
			"total_copies":     book.TotalCopies,
			"available_copies": book.AvailableCopies,
		}).Error
}

func (r *bookRepository) Delete(db *gorm.DB, id uint) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Delete(&models.Book{}, "id = ?", id)
	return res.RowsAffected, res.Error
}

func (r *bookRepository) Search(db *gorm.DB, substring string) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	pattern := "%" + substring + "%"
	var books []models.Book
	err := db.
		Where("title LIKE ? OR author LIKE ? OR category LIKE ?", pattern, pattern, pattern).
		Order("id").
		Find(&books).Error
	if err != nil {
		return nil, err
	}
	return books, nil
}

// TakeAvailableCopy decrements available_copies only while it is positive.
// Zero rows affected means no copy was free.
func (r *bookRepository) TakeAvailableCopy(db *gorm.DB, id uint) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Book{}).
		Where("id = ? AND available_copies > 0", id).
		UpdateColumn("available_copies", gorm.Expr("available_copies - 1"))
	return res.RowsAffected, res.Error
}

func (r *bookRepository) ReleaseCopy(db *gorm.DB, id uint) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Book{}).
		Where("id = ?", id).
		UpdateColumn("available_copies", gorm.Expr("available_copies + 1")).
		Error
}

type borrowRepository struct {
	db *gorm.DB
}

func NewBorrowRepository(db *gorm.DB) BorrowRepository {
	return &borrowRepository{db: db}
}

func (r *borrowRepository) Create(db *gorm.DB, record *models.BorrowRecord) error {
	if db == nil {
		db = r.db
	}
	return db.Omit(clause.Associations).Create(record).Error
}

func (r *borrowRepository) GetByID(db *gorm.DB, id uint) (*models.BorrowRecord, error) {
	if db == nil {
		db = r.db
	}
	var record models.BorrowRecord
	if err := db.First(&record, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *borrowRepository) GetByIDForUpdate(db *gorm.DB, id uint) (*models.BorrowRecord, error) {
	if db == nil {
		db = r.db
	}
	var record models.BorrowRecord
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&record, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *borrowRepository) FindActive(db *gorm.DB, memberID, bookID uint) (*models.BorrowRecord, error) {
	if db == nil {
		db = r.db
	}
	var record models.BorrowRecord
	err := db.
		Where("member_id = ? AND book_id = ? AND status IN ?", memberID, bookID,
			[]models.BorrowStatus{models.BorrowStatusPending, models.BorrowStatusBorrowed}).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Transition moves a record to status to. When from is non-empty the update
// only applies if the current status is one of from; the affected row count
// tells the caller whether it did.
func (r *borrowRepository) Transition(db *gorm.DB, id uint, from []models.BorrowStatus, to models.BorrowStatus) (int64, error) {
	if db == nil {
		db = r.db
	}
	q := db.Model(&models.BorrowRecord{}).Where("id = ?", id)
	if len(from) > 0 {
		q = q.Where("status IN ?", from)
	}
	res := q.Update("status", to)
	return res.RowsAffected, res.Error
}

func (r *borrowRepository) ListByMember(db *gorm.DB, memberID uint) ([]models.MemberRequestRow, error) {
	if db == nil {
		db = r.db
	}
	var rows []models.MemberRequestRow
	err := db.Table("borrow_records AS br").
		Select("br.id AS request_id, bk.id AS book_id, bk.title, bk.author, br.borrowed_date, br.due_date, br.status").
		Joins("JOIN books bk ON br.book_id = bk.id").
		Where("br.member_id = ?", memberID).
		Order("br.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListAll returns every ledger row, newest first. An empty status means no
// filter.
func (r *borrowRepository) ListAll(db *gorm.DB, status models.BorrowStatus) ([]models.RequestRow, error) {
	if db == nil {
		db = r.db
	}
	q := db.Table("borrow_records AS br").
		Select("br.id AS request_id, m.username AS member, bk.title, bk.author, br.borrowed_date, br.due_date, br.status").
		Joins("JOIN books bk ON br.book_id = bk.id").
		Joins("JOIN members m ON br.member_id = m.id")
	if status != "" {
		q = q.Where("br.status = ?", status)
	}
	var rows []models.RequestRow
	if err := q.Order("br.id DESC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
