package database

import (
	"fmt"
	"log"

	"tixgate/internal/events"
	"tixgate/internal/orders"

	"gorm.io/gorm"
)

// Migrate runs auto-migrations for all models
func Migrate(db *gorm.DB) error {
	log.Println("🔄 Running database migrations...")

	if err := db.AutoMigrate(
		&events.EventSchedule{},
		&events.SeatMapping{},
		&orders.Order{},
		&orders.Ticket{},
	); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	log.Println("✅ Database migrations completed")
	return nil
}
