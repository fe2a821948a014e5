package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notify-engine/internal/repository"
	"gorm.io/gorm"
)

func createScheduledTasksTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_create_scheduled_tasks",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ScheduledTaskModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_scheduled_tasks_due ON scheduled_tasks (run_at) WHERE status = 'PENDING'`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ScheduledTaskModel{})
		},
	}
}
