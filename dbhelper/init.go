package dbhelper

import (
	"fmt"
	"os"
	"time"

	"tryonapi/models"
	"tryonapi/services"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func dsn() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		services.GetEnv("DB_USERNAME", ""),
		services.GetEnv("DB_PASSWORD", ""),
		services.GetEnv("DB_HOST", ""),
		services.GetEnv("DB_PORT", ""),
		services.GetEnv("DB_NAME", ""),
	)
}

// Open connects and migrates the wardrobe tables.
func Open() (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(300)
	sqlDB.SetConnMaxLifetime(time.Minute * 5)

	if err := db.AutoMigrate(&models.Clothing{}, &models.TryOnGeneration{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func SetupDB() *gorm.DB {
	db, err := Open()
	if err != nil {
		panic(err)
	}
	return db
}

func setTestEnv() {
	os.Setenv("DB_USERNAME", services.GetEnv("TEST_DB_USERNAME", "tryon"))
	os.Setenv("DB_PASSWORD", services.GetEnv("TEST_DB_PASSWORD", "tryon"))
	os.Setenv("DB_HOST", services.GetEnv("TEST_DB_HOST", "localhost"))
	os.Setenv("DB_NAME", services.GetEnv("TEST_DB_NAME", "tryon"))
	os.Setenv("DB_PORT", services.GetEnv("TEST_DB_PORT", "5432"))
}

func SetupTestDB() *gorm.DB {
	setTestEnv()
	return SetupDB()
}

// OpenTestDB is SetupTestDB without the panic, for tests that skip when postgres is not running.
func OpenTestDB() (*gorm.DB, error) {
	setTestEnv()
	return Open()
}
