package playlist

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"nexttrack/internal/config"
	"nexttrack/internal/errors"
	"nexttrack/internal/logger"
	"nexttrack/internal/metrics"
	"nexttrack/internal/models"
)

const memoryDSN = ":memory:"

// OpenDatabase 打开SQLite数据库并配置连接池
func OpenDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dbLogger := logger.NewLogger("database")

	if cfg.Path != memoryDSN {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, errors.ErrDatabaseConnection("cannot create database directory", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		appErr := errors.ErrDatabaseConnection(cfg.Path, err)
		dbLogger.LogAppError(appErr, "Failed to open database")
		return nil, appErr
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.ErrDatabaseConnection(cfg.Path, err)
	}
	// 每个内存连接都是独立的数据库
	if cfg.Path == memoryDSN {
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}

	dbLogger.Info("Database opened", logger.Fields{
		"type": cfg.Type,
		"path": cfg.Path,
	})
	return db, nil
}

// SQLiteStore 基于GORM的持久化存储
type SQLiteStore struct {
	db     *gorm.DB
	logger *logger.Logger
}

// NewSQLiteStore 创建SQLite存储，autoMigrate为true时建表
func NewSQLiteStore(db *gorm.DB, autoMigrate bool) (*SQLiteStore, error) {
	if autoMigrate {
		if err := db.AutoMigrate(&models.Playlist{}); err != nil {
			return nil, errors.ErrDatabaseOperation("auto_migrate", err)
		}
	}
	return &SQLiteStore{db: db, logger: logger.NewLogger("playlist-store")}, nil
}

// Get 按ID读取
func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Playlist, error) {
	var p models.Playlist
	err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error
	metrics.RecordPlaylistOperation("get", err)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrResourceNotFound("playlist", id)
		}
		return nil, s.wrap("get", id, err)
	}
	return &p, nil
}

// Put 创建或覆盖
func (s *SQLiteStore) Put(ctx context.Context, playlist *models.Playlist) error {
	err := s.db.WithContext(ctx).Save(playlist).Error
	metrics.RecordPlaylistOperation("put", err)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return err
		}
		return s.wrap("put", playlist.ID, err)
	}
	return nil
}

// Delete 删除，不存在时返回未找到
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&models.Playlist{}, "id = ?", id)
	metrics.RecordPlaylistOperation("delete", result.Error)
	if result.Error != nil {
		return s.wrap("delete", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.ErrResourceNotFound("playlist", id)
	}
	return nil
}

func (s *SQLiteStore) wrap(op, id string, err error) error {
	appErr := errors.ErrDatabaseOperation(op, err).WithContext(map[string]interface{}{
		"playlist_id": id,
	})
	s.logger.LogAppError(appErr, "Playlist store operation failed")
	return appErr
}
