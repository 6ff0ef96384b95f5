package migration

import (
	"errors"

	billingdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/billingsync/domain"
	profiledomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/profile/domain"
	tierdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/tier/domain"
	usagedomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/usage/domain"
	"gorm.io/gorm"
)

// Models lists every persisted type, in dependency order.
func Models() []any {
	return []any{
		&tierdomain.Tier{},
		&profiledomain.UserProfile{},
		&usagedomain.UsageCounter{},
		&billingdomain.BillingEvent{},
	}
}

func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	return conn.AutoMigrate(Models()...)
}
