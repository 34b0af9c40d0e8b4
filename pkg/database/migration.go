package database

import "gorm.io/gorm"

var autoMigrateModels []interface{}

// RegisterAutoMigrateModels 注册需要自动迁移的模型，模型包的 init 中调用
func RegisterAutoMigrateModels(models ...interface{}) {
	autoMigrateModels = append(autoMigrateModels, models...)
}

func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(autoMigrateModels...)
}
