package models

import (
	"time"
)

type MemberRole string

const (
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

type BorrowStatus string

const (
	BorrowStatusPending  BorrowStatus = "Pending"
	BorrowStatusBorrowed BorrowStatus = "Borrowed"
	BorrowStatusRejected BorrowStatus = "Rejected"
	BorrowStatusReturned BorrowStatus = "Returned"
)

// Valid reports whether s is one of the four ledger states.
func (s BorrowStatus) Valid() bool {
	switch s {
	case BorrowStatusPending, BorrowStatusBorrowed, BorrowStatusRejected, BorrowStatusReturned:
		return true
	}
	return false
}

// Active reports whether a record in this state blocks a new request for the
// same member and book.
func (s BorrowStatus) Active() bool {
	return s == BorrowStatusPending || s == BorrowStatusBorrowed
}

type Member struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Username  string     `gorm:"size:255;not null;uniqueIndex" json:"username"`
	Secret    string     `gorm:"size:255;not null" json:"-"`
	Role      MemberRole `gorm:"size:16;not null;default:member" json:"role"`
	CreatedAt time.Time  `gorm:"not null" json:"created_at"`
}

type Book struct {
	ID              uint   `gorm:"primaryKey" json:"id"`
	Title           string `gorm:"size:255;not null;uniqueIndex:uniq_book_identity" json:"title"`
	Author          string `gorm:"size:255;not null;uniqueIndex:uniq_book_identity" json:"author"`
	Category        string `gorm:"size:255;not null;uniqueIndex:uniq_book_identity" json:"category"`
	TotalCopies     int    `gorm:"not null;default:1" json:"total_copies"`
	AvailableCopies int    `gorm:"not null;default:1" json:"available_copies"`
}

type BorrowRecord struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	MemberID     uint         `gorm:"not null;index" json:"member_id"`
	Member       Member       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	// No FK on book_id: deleting a book leaves its ledger rows in place.
	BookID       uint         `gorm:"not null;index" json:"book_id"`
	BorrowedDate time.Time    `gorm:"not null" json:"borrowed_date"`
	DueDate      time.Time    `gorm:"not null" json:"due_date"`
	Status       BorrowStatus `gorm:"size:16;not null;default:Pending;index" json:"status"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
}

// MemberRequestRow is one line of a member's own borrow history.
type MemberRequestRow struct {
	RequestID    uint         `json:"request_id"`
	BookID       uint         `json:"book_id"`
	Title        string       `json:"title"`
	Author       string       `json:"author"`
	BorrowedDate time.Time    `json:"borrowed_date"`
	DueDate      time.Time    `json:"due_date"`
	Status       BorrowStatus `json:"status"`
}

// RequestRow is one line of the library-wide ledger as shown to admins.
type RequestRow struct {
	RequestID    uint         `json:"request_id"`
	Member       string       `json:"member"`
	Title        string       `json:"title"`
	Author       string       `json:"author"`
	BorrowedDate time.Time    `json:"borrowed_date"`
	DueDate      time.Time    `json:"due_date"`
	Status       BorrowStatus `json:"status"`
}
