package postgres

import (
	"database/sql"

	_ "github.com/lib/pq"

	"rentdesk-backend/internal/repository"
)

type Store struct {
	db *sql.DB
	repository.BillRepository
	repository.TenantRepository
	repository.NotificationRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                     db,
		BillRepository:         NewBillRepository(db),
		TenantRepository:       NewTenantRepository(db),
		NotificationRepository: NewNotificationRepository(db),
	}
}

// DB exposes the underlying pool for health checks
func (s *Store) DB() *sql.DB {
	return s.db
}
