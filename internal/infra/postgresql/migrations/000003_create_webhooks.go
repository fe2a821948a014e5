package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notify-engine/internal/repository"
	"gorm.io/gorm"
)

func createWebhooksTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_webhooks",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.WebhookModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_webhooks_tenant_active ON webhooks (tenant_id) WHERE active`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.WebhookModel{})
		},
	}
}
