package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"lendinglibrary/internal/metrics"
	"lendinglibrary/internal/models"
	"lendinglibrary/internal/repositories"
)

// LoanPeriodDays is the number of days between a borrow request and its due date.
const LoanPeriodDays = 14

// ─── Service Interface ────────────────────────────────────────────────────────

// LibraryService defines the application-level operations of the library system.
type LibraryService interface {
	AddBook(ctx context.Context, title, author, category string, totalCopies int) (*models.Book, error)
	EditBook(ctx context.Context, id uint, title, author, category string, newTotal int) (*models.Book, error)
	DeleteBook(ctx context.Context, id uint) error
	GetBook(ctx context.Context, id uint) (*models.Book, error)
	SearchBooks(ctx context.Context, substring string) ([]models.Book, error)

	Register(ctx context.Context, username, secret string) (*models.Member, error)
	Authenticate(ctx context.Context, username, secret string) (*models.Member, error)
	EnsureSeedAdmin(ctx context.Context, username, secret string) (*models.Member, error)
	GetMember(ctx context.Context, id uint) (*models.Member, error)

	RequestBorrow(ctx context.Context, memberID, bookID uint) (*models.BorrowRecord, error)
	Approve(ctx context.Context, requestID uint) (*models.BorrowRecord, error)
	Reject(ctx context.Context, requestID uint) (*models.BorrowRecord, error)
	MarkReturned(ctx context.Context, requestID uint) (*models.BorrowRecord, error)
	GetBorrowRecord(ctx context.Context, requestID uint) (*models.BorrowRecord, error)

	ListMemberRequests(ctx context.Context, memberID uint) ([]models.MemberRequestRow, error)
	ListAllRequests(ctx context.Context, status models.BorrowStatus) ([]models.RequestRow, error)
}

// ─── Implementation ───────────────────────────────────────────────────────────

type libraryService struct {
	db         *gorm.DB
	memberRepo repositories.MemberRepository
	bookRepo   repositories.BookRepository
	borrowRepo repositories.BorrowRepository

	log      *logrus.Logger
	metrics  metrics.Recorder
	now      func() time.Time
	hashCost int
	locks    *keyedLocker
}

// Option customises a LibraryService.
type Option func(*libraryService)

func WithLogger(l *logrus.Logger) Option {
	return func(s *libraryService) { s.log = l }
}

func WithMetrics(r metrics.Recorder) Option {
	return func(s *libraryService) { s.metrics = r }
}

// WithClock replaces time.Now for borrow and due dates.
func WithClock(now func() time.Time) Option {
	return func(s *libraryService) { s.now = now }
}

// WithHashCost sets the bcrypt cost used for member secrets.
func WithHashCost(cost int) Option {
	return func(s *libraryService) { s.hashCost = cost }
}

// NewLibraryService wires up all dependencies and returns a LibraryService.
func NewLibraryService(
	db *gorm.DB,
	memberRepo repositories.MemberRepository,
	bookRepo repositories.BookRepository,
	borrowRepo repositories.BorrowRepository,
	opts ...Option,
) LibraryService {
	s := &libraryService{
		db:         db,
		memberRepo: memberRepo,
		bookRepo:   bookRepo,
		borrowRepo: borrowRepo,
		log:        logrus.StandardLogger(),
		metrics:    metrics.Nop{},
		now:        time.Now,
		hashCost:   bcrypt.DefaultCost,
		locks:      newKeyedLocker(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *libraryService) observe(ctx context.Context, operation string, start time.Time, err *error) {
	s.metrics.Observe(ctx, operation, *err == nil, time.Since(start))
}

// ─── Book Management ──────────────────────────────────────────────────────────

type bookFields struct {
	title, author, category string
	copies                  int
}

func normalizeBook(title, author, category string, copies int) (bookFields, error) {
	f := bookFields{
		title:    strings.TrimSpace(title),
		author:   strings.TrimSpace(author),
		category: strings.TrimSpace(category),
		copies:   copies,
	}
	if f.title == "" || f.author == "" || f.category == "" {
		return f, fmt.Errorf("%w: title, author and category are required", ErrInvalidInput)
	}
	if f.copies < 1 {
		return f, fmt.Errorf("%w: total copies must be at least 1", ErrInvalidInput)
	}
	return f, nil
}

// AddBook stores a new title with every copy available.
func (s *libraryService) AddBook(ctx context.Context, title, author, category string, totalCopies int) (_ *models.Book, err error) {
	defer s.observe(ctx, "add_book", time.Now(), &err)

	f, err := normalizeBook(title, author, category, totalCopies)
	if err != nil {
		return nil, err
	}
	book := &models.Book{
		Title:           f.title,
		Author:          f.author,
		Category:        f.category,
		TotalCopies:     f.copies,
		AvailableCopies: f.copies,
	}
	if err := s.bookRepo.Create(s.db.WithContext(ctx), book); err != nil {
		if isUniqueViolation(err) {
			s.log.WithFields(logrus.Fields{"title": f.title, "author": f.author, "category": f.category}).
				Warn("AddBook: duplicate book")
			return nil, fmt.Errorf("book %q by %s in %s: %w", f.title, f.author, f.category, ErrDuplicateEntity)
		}
		s.log.WithError(err).Error("AddBook: failed to create book record")
		return nil, fmt.Errorf("create book: %w", err)
	}
	s.log.WithField("book_id", book.ID).Infof("AddBook: created book %q with %d copies", book.Title, book.TotalCopies)
	return book, nil
}

// EditBook replaces a book's identity fields and applies the change in total
// copies as a delta to the current available count, floored at zero. The
// available count is not recomputed from outstanding loans, so shrinking the
// total below the number of Borrowed records leaves it out of step with the
// ledger.
func (s *libraryService) EditBook(ctx context.Context, id uint, title, author, category string, newTotal int) (_ *models.Book, err error) {
	defer s.observe(ctx, "edit_book", time.Now(), &err)

	f, err := normalizeBook(title, author, category, newTotal)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(bookKey(id))
	defer unlock()

	var updated *models.Book
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		book, err := s.bookRepo.GetByIDForUpdate(tx, id)
		if err != nil {
			if isNotFound(err) {
				return fmt.Errorf("book %d: %w", id, ErrNotFound)
			}
			return err
		}

		diff := f.copies - book.TotalCopies
		book.Title = f.title
		book.Author = f.author
		book.Category = f.category
		book.TotalCopies = f.copies
		book.AvailableCopies = max(0, book.AvailableCopies+diff)

		if err := s.bookRepo.Update(tx, book); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("book %q by %s in %s: %w", f.title, f.author, f.category, ErrDuplicateEntity)
			}
			return err
		}
		updated = book
		return nil
	})
	if err != nil {
		s.log.WithError(err).WithField("book_id", id).Warn("EditBook: transaction failed")
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"book_id":   id,
		"total":     updated.TotalCopies,
		"available": updated.AvailableCopies,
	}).Info("EditBook: book updated")
	return updated, nil
}

// DeleteBook removes a book without looking at its borrow records; they keep
// pointing at the deleted id.
func (s *libraryService) DeleteBook(ctx context.Context, id uint) (err error) {
	defer s.observe(ctx, "delete_book", time.Now(), &err)

	unlock := s.locks.Lock(bookKey(id))
	defer unlock()

	n, err := s.bookRepo.Delete(s.db.WithContext(ctx), id)
	if err != nil {
		s.log.WithError(err).WithField("book_id", id).Error("DeleteBook: failed to delete book")
		return fmt.Errorf("delete book: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("book %d: %w", id, ErrNotFound)
	}
	s.log.WithField("book_id", id).Info("DeleteBook: book deleted")
	return nil
}

func (s *libraryService) GetBook(ctx context.Context, id uint) (*models.Book, error) {
	book, err := s.bookRepo.GetByID(s.db.WithContext(ctx), id)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("book %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return book, nil
}

// SearchBooks matches substring against title, author and category. An empty
// substring lists the whole catalogue.
func (s *libraryService) SearchBooks(ctx context.Context, substring string) ([]models.Book, error) {
	return s.bookRepo.Search(s.db.WithContext(ctx), substring)
}

// ─── Members ──────────────────────────────────────────────────────────────────

// Register creates a member account. Secrets are stored as bcrypt hashes.
func (s *libraryService) Register(ctx context.Context, username, secret string) (_ *models.Member, err error) {
	defer s.observe(ctx, "register", time.Now(), &err)
	return s.createMember(ctx, username, secret, models.MemberRoleMember)
}

func (s *libraryService) createMember(ctx context.Context, username, secret string, role models.MemberRole) (*models.Member, error) {
	username = strings.TrimSpace(username)
	if username == "" || secret == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash secret: %w", err)
	}
	member := &models.Member{
		Username:  username,
		Secret:    string(hash),
		Role:      role,
		CreatedAt: s.now().UTC(),
	}
	if err := s.memberRepo.Create(s.db.WithContext(ctx), member); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("username %q: %w", username, ErrDuplicateEntity)
		}
		s.log.WithError(err).Error("Register: failed to create member")
		return nil, fmt.Errorf("create member: %w", err)
	}
	s.log.WithFields(logrus.Fields{"member_id": member.ID, "role": role}).Infof("Register: created member %q", username)
	return member, nil
}

func (s *libraryService) Authenticate(ctx context.Context, username, secret string) (_ *models.Member, err error) {
	defer s.observe(ctx, "authenticate", time.Now(), &err)

	member, err := s.memberRepo.GetByUsername(s.db.WithContext(ctx), strings.TrimSpace(username))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(member.Secret), []byte(secret)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return member, nil
}

// EnsureSeedAdmin creates the administrator account if username is not taken
// yet and returns the existing member otherwise.
func (s *libraryService) EnsureSeedAdmin(ctx context.Context, username, secret string) (*models.Member, error) {
	existing, err := s.memberRepo.GetByUsername(s.db.WithContext(ctx), strings.TrimSpace(username))
	if err == nil {
		return existing, nil
	}
	if !isNotFound(err) {
		return nil, err
	}
	member, err := s.createMember(ctx, username, secret, models.MemberRoleAdmin)
	if err != nil {
		// Another process seeded it first.
		if errors.Is(err, ErrDuplicateEntity) {
			return s.memberRepo.GetByUsername(s.db.WithContext(ctx), strings.TrimSpace(username))
		}
		return nil, err
	}
	s.log.WithField("member_id", member.ID).Info("EnsureSeedAdmin: seed administrator created")
	return member, nil
}

func (s *libraryService) GetMember(ctx context.Context, id uint) (*models.Member, error) {
	member, err := s.memberRepo.GetByID(s.db.WithContext(ctx), id)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("member %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return member, nil
}
