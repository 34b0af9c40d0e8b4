package database

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var db *gorm.DB

// Open 按配置初始化数据库连接并执行自动迁移
func Open(driver, dsn string) error {
	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres", "":
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", driver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return err
	}
	db = conn

	return AutoMigrate(db)
}

// SetDatabase 注入已建立的连接（测试使用）
func SetDatabase(conn *gorm.DB) {
	db = conn
}

func Database() *gorm.DB {
	return db
}
