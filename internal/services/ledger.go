package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"lendinglibrary/internal/models"
)

// ─── Borrow Requests ──────────────────────────────────────────────────────────

// RequestBorrow opens a Pending request for the member. Copies are not
// reserved here; availability is checked only when an admin approves, so any
// number of members may be waiting on the same book.
func (s *libraryService) RequestBorrow(ctx context.Context, memberID, bookID uint) (_ *models.BorrowRecord, err error) {
	defer s.observe(ctx, "request_borrow", time.Now(), &err)

	unlock := s.locks.Lock(pairKey(memberID, bookID))
	defer unlock()

	var created *models.BorrowRecord
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.memberRepo.GetByID(tx, memberID); err != nil {
			if isNotFound(err) {
				return fmt.Errorf("member %d: %w", memberID, ErrNotFound)
			}
			return err
		}
		if _, err := s.bookRepo.GetByID(tx, bookID); err != nil {
			if isNotFound(err) {
				return fmt.Errorf("book %d: %w", bookID, ErrNotFound)
			}
			return err
		}

		existing, err := s.borrowRepo.FindActive(tx, memberID, bookID)
		if err != nil && !isNotFound(err) {
			return err
		}
		if existing != nil {
			s.log.WithFields(logrus.Fields{
				"member_id":  memberID,
				"book_id":    bookID,
				"request_id": existing.ID,
			}).Warnf("RequestBorrow: request already %s", existing.Status)
			return ErrDuplicateRequest
		}

		now := s.now().UTC()
		record := &models.BorrowRecord{
			MemberID:     memberID,
			BookID:       bookID,
			BorrowedDate: now,
			DueDate:      now.AddDate(0, 0, LoanPeriodDays),
			Status:       models.BorrowStatusPending,
			CreatedAt:    now,
		}
		if err := s.borrowRepo.Create(tx, record); err != nil {
			// uniq_active_borrow caught a request from another process.
			if isUniqueViolation(err) {
				return ErrDuplicateRequest
			}
			return err
		}
		created = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"member_id":  memberID,
		"book_id":    bookID,
		"request_id": created.ID,
	}).Infof("RequestBorrow: request created, due %s", created.DueDate.Format("2006-01-02"))
	return created, nil
}

// ─── Approval ─────────────────────────────────────────────────────────────────

// Approve lends a copy for a Pending request. It is the only place copies are
// taken, so the availability check and the decrement run under the book's
// lock, inside one transaction, and as a conditional update.
func (s *libraryService) Approve(ctx context.Context, requestID uint) (_ *models.BorrowRecord, err error) {
	defer s.observe(ctx, "approve", time.Now(), &err)

	record, err := s.GetBorrowRecord(ctx, requestID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(bookKey(record.BookID))
	defer unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.borrowRepo.GetByIDForUpdate(tx, requestID)
		if err != nil {
			if isNotFound(err) {
				return fmt.Errorf("request %d: %w", requestID, ErrNotFound)
			}
			return err
		}
		if current.Status != models.BorrowStatusPending {
			return fmt.Errorf("approve request %d in status %s: %w", requestID, current.Status, ErrInvalidTransition)
		}

		book, err := s.bookRepo.GetByIDForUpdate(tx, current.BookID)
		if err != nil {
			if isNotFound(err) {
				return fmt.Errorf("book %d: %w", current.BookID, ErrNotFound)
			}
			return err
		}
		if book.AvailableCopies <= 0 {
			return ErrNoAvailableCopies
		}

		taken, err := s.bookRepo.TakeAvailableCopy(tx, book.ID)
		if err != nil {
			return err
		}
		if taken == 0 {
			return ErrNoAvailableCopies
		}

		moved, err := s.borrowRepo.Transition(tx, requestID,
			[]models.BorrowStatus{models.BorrowStatusPending}, models.BorrowStatusBorrowed)
		if err != nil {
			return err
		}
		if moved == 0 {
			// Rejected concurrently; rolling back returns the copy.
			return fmt.Errorf("approve request %d: %w", requestID, ErrInvalidTransition)
		}
		current.Status = models.BorrowStatusBorrowed
		record = current
		return nil
	})
	if err != nil {
		s.log.WithError(err).WithField("request_id", requestID).Warn("Approve: request not approved")
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"request_id": requestID, "book_id": record.BookID}).Info("Approve: copy lent")
	return record, nil
}

// Reject marks the request Rejected whatever its current status and leaves
// the book's copy count untouched. Rejecting a Borrowed request therefore
// strands one copy.
func (s *libraryService) Reject(ctx context.Context, requestID uint) (_ *models.BorrowRecord, err error) {
	defer s.observe(ctx, "reject", time.Now(), &err)

	var record *models.BorrowRecord
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := s.borrowRepo.Transition(tx, requestID, nil, models.BorrowStatusRejected)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("request %d: %w", requestID, ErrNotFound)
		}
		record, err = s.borrowRepo.GetByID(tx, requestID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.WithField("request_id", requestID).Info("Reject: request rejected")
	return record, nil
}

// ─── Return ───────────────────────────────────────────────────────────────────

// MarkReturned closes a Borrowed request and puts its copy back. The count is
// not capped at total_copies.
func (s *libraryService) MarkReturned(ctx context.Context, requestID uint) (_ *models.BorrowRecord, err error) {
	defer s.observe(ctx, "mark_returned", time.Now(), &err)

	record, err := s.GetBorrowRecord(ctx, requestID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(bookKey(record.BookID))
	defer unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.borrowRepo.GetByIDForUpdate(tx, requestID)
		if err != nil {
			if isNotFound(err) {
				return fmt.Errorf("request %d: %w", requestID, ErrNotFound)
			}
			return err
		}
		if current.Status != models.BorrowStatusBorrowed {
			return fmt.Errorf("return request %d in status %s: %w", requestID, current.Status, ErrInvalidTransition)
		}

		moved, err := s.borrowRepo.Transition(tx, requestID,
			[]models.BorrowStatus{models.BorrowStatusBorrowed}, models.BorrowStatusReturned)
		if err != nil {
			return err
		}
		if moved == 0 {
			return fmt.Errorf("return request %d: %w", requestID, ErrInvalidTransition)
		}
		if err := s.bookRepo.ReleaseCopy(tx, current.BookID); err != nil {
			return err
		}
		current.Status = models.BorrowStatusReturned
		record = current
		return nil
	})
	if err != nil {
		s.log.WithError(err).WithField("request_id", requestID).Warn("MarkReturned: request not returned")
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"request_id": requestID, "book_id": record.BookID}).Info("MarkReturned: copy returned")
	return record, nil
}

func (s *libraryService) GetBorrowRecord(ctx context.Context, requestID uint) (*models.BorrowRecord, error) {
	record, err := s.borrowRepo.GetByID(s.db.WithContext(ctx), requestID)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("request %d: %w", requestID, ErrNotFound)
		}
		return nil, err
	}
	return record, nil
}

// ─── Queries ──────────────────────────────────────────────────────────────────

// ListMemberRequests returns the member's requests, newest first.
func (s *libraryService) ListMemberRequests(ctx context.Context, memberID uint) ([]models.MemberRequestRow, error) {
	return s.borrowRepo.ListByMember(s.db.WithContext(ctx), memberID)
}

// ListAllRequests returns every request, newest first, optionally limited to
// one status.
func (s *libraryService) ListAllRequests(ctx context.Context, status models.BorrowStatus) ([]models.RequestRow, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.borrowRepo.ListAll(s.db.WithContext(ctx), status)
}
