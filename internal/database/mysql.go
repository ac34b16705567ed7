package database

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wisarmy/pump-kmonitor/pkg/types"
)

// Manager 数据库管理器，告警历史落MySQL供事后复盘
type Manager struct {
	db *gorm.DB
}

// AlertRecord 策略告警数据库模型
type AlertRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Mint         string    `gorm:"type:varchar(64);not null;index:idx_mint_time" json:"mint"`
	StrategyName string    `gorm:"type:varchar(64);not null" json:"strategy_name"`
	Message      string    `gorm:"type:text" json:"message"`
	AlertTime    int64     `gorm:"not null;index:idx_mint_time" json:"alert_time"`
	Klines       string    `gorm:"type:text" json:"klines"` // 触发时的K线快照（JSON）
	CreatedAt    time.Time `json:"created_at"`
}

// NewManager 创建数据库管理器并自动迁移表结构
func NewManager(dsn string) (*Manager, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // 生产环境使用Silent
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库实例失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	manager := &Manager{db: db}
	if err := manager.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	zap.L().Info("✅ MySQL数据库连接成功")
	return manager, nil
}

// AutoMigrate 自动迁移表结构
func (m *Manager) AutoMigrate() error {
	return m.db.AutoMigrate(&AlertRecord{})
}

// SaveAlert 保存一条策略告警
func (m *Manager) SaveAlert(alert *types.StrategyAlert) error {
	klines, err := json.Marshal(alert.Klines)
	if err != nil {
		return fmt.Errorf("序列化K线快照失败: %w", err)
	}

	record := &AlertRecord{
		Mint:         alert.Mint,
		StrategyName: alert.StrategyName,
		Message:      alert.Message,
		AlertTime:    alert.Timestamp,
		Klines:       string(klines),
		CreatedAt:    time.Now(),
	}
	return m.db.Create(record).Error
}

// RecentAlerts 获取某mint最近的告警记录
func (m *Manager) RecentAlerts(mint string, limit int) ([]AlertRecord, error) {
	var records []AlertRecord
	err := m.db.Where("mint = ?", mint).
		Order("alert_time DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// Health 检查数据库连接健康状态
func (m *Manager) Health() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close 关闭数据库连接
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
