package webhook

import (
	"fmt"
	"strings"
	"testing"

	"github.com/flaboy/aira-billing/pkg/database"
	"github.com/flaboy/aira-billing/pkg/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB 每个测试独立的内存sqlite库，TranslateError 让唯一键
// 冲突表现为 gorm.ErrDuplicatedKey，与生产驱动一致。
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

func newTestAccount(t *testing.T, db *gorm.DB, mutate func(*models.Account)) *models.Account {
	t.Helper()

	account := &models.Account{
		Email:             "user@example.com",
		GatewayCustomerID: "cus_1",
	}
	if mutate != nil {
		mutate(account)
	}
	require.NoError(t, db.Create(account).Error)
	return account
}

func strPtr(s string) *string {
	return &s
}
