package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Store groups the repositories that make up the relational store. InTx runs
// fn against a Store bound to a single transaction; nested calls reuse it.
type Store interface {
	Chats() ChatRepository
	Messages() MessageRepository
	Visibility() VisibilityRepository
	Receipts() ReceiptRepository
	Schedules() ScheduleRepository
	Users() UserRepository
	InTx(ctx context.Context, fn func(Store) error) error
}

// SQLStore is the sqlx-backed Store.
type SQLStore struct {
	db  *sqlx.DB
	ext sqlx.ExtContext
}

// NewStore constructs a SQLStore.
func NewStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, ext: db}
}

func (s *SQLStore) Chats() ChatRepository            { return NewChatRepo(s.ext) }
func (s *SQLStore) Messages() MessageRepository      { return NewMessageRepo(s.ext) }
func (s *SQLStore) Visibility() VisibilityRepository { return NewVisibilityRepo(s.ext) }
func (s *SQLStore) Receipts() ReceiptRepository      { return NewReceiptRepo(s.ext) }
func (s *SQLStore) Schedules() ScheduleRepository    { return NewScheduleRepo(s.ext) }
func (s *SQLStore) Users() UserRepository            { return NewUserRepo(s.ext) }

// InTx commits when fn returns nil and rolls back otherwise.
func (s *SQLStore) InTx(ctx context.Context, fn func(Store) error) (err error) {
	if s.db == nil {
		return fn(s)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(&SQLStore{ext: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
