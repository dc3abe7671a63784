package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"pagepilot/internal/logger"
	"pagepilot/pkg/model"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// 设置项键名
const (
	KeyAPIKey    = "apiKey"
	KeyVoice     = "voice"
	KeyAutoSpeak = "autoSpeak"
)

// Setting 键值设置表的一行
type Setting struct {
	Name      string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}

// SettingsStore 基于 GORM 的设置存储
type SettingsStore struct {
	db  *gorm.DB
	log logger.Logger
}

// Open 打开 SQLite 数据库并迁移设置表；prefix 为表名前缀
func Open(dsn, prefix string, l logger.Logger) (*SettingsStore, error) {
	if l == nil {
		l = logger.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         NewGormLogger(l).LogMode(defaultGormLevel),
		NamingStrategy: schema.NamingStrategy{TablePrefix: prefix},
	})
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	if err := db.AutoMigrate(&Setting{}); err != nil {
		return nil, fmt.Errorf("迁移设置表失败: %w", err)
	}
	l.Debug("设置存储已就绪", "dsn", dsn, "prefix", prefix)
	return &SettingsStore{db: db, log: l}, nil
}

// Load 读取设置；缺失的键使用默认值
func (s *SettingsStore) Load(ctx context.Context) (model.Settings, error) {
	var rows []Setting
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return model.Settings{}, fmt.Errorf("读取设置失败: %w", err)
	}
	out := model.DefaultSettings()
	for _, r := range rows {
		switch r.Name {
		case KeyAPIKey:
			out.APIKey = r.Value
		case KeyVoice:
			if r.Value != "" {
				out.Voice = r.Value
			}
		case KeyAutoSpeak:
			if b, err := strconv.ParseBool(r.Value); err == nil {
				out.AutoSpeak = b
			}
		}
	}
	return out, nil
}

// Save 覆盖写入全部设置
func (s *SettingsStore) Save(ctx context.Context, st model.Settings) error {
	now := time.Now()
	rows := []Setting{
		{Name: KeyAPIKey, Value: st.APIKey, UpdatedAt: now},
		{Name: KeyVoice, Value: st.Voice, UpdatedAt: now},
		{Name: KeyAutoSpeak, Value: strconv.FormatBool(st.AutoSpeak), UpdatedAt: now},
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("保存设置失败: %w", err)
	}
	s.log.Info("设置已保存", "voice", st.Voice, "autoSpeak", st.AutoSpeak)
	return nil
}

// Close 关闭底层连接
func (s *SettingsStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
