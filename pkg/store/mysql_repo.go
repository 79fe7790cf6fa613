// 文件: pkg/store/mysql_repo.go
// 告警记录源 MySQL 实现
//
// 状态翻转用条件 UPDATE 实现，靠 WHERE status='PENDING' 的行数判断胜负，
// 不依赖事务隔离级别，也不持锁跨网络调用。

package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// 确保实现了接口
var _ AlertRepository = (*MySQLAlertRepository)(nil)

// MySQLAlertRepository MySQL 实现
type MySQLAlertRepository struct {
	db *gorm.DB
}

// NewMySQLAlertRepository 包装外部持有的 gorm 连接
func NewMySQLAlertRepository(db *gorm.DB) *MySQLAlertRepository {
	return &MySQLAlertRepository{db: db}
}

// AutoMigrate 建表 (启动时调用)
func (r *MySQLAlertRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&Alert{})
}

// GetByID 按 ID 读取
func (r *MySQLAlertRepository) GetByID(ctx context.Context, id string) (*Alert, error) {
	var alert Alert
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&alert).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	return &alert, nil
}

// MarkTriggered 条件更新 PENDING -> TRIGGERED
// RowsAffected == 0 表示别的评估路径已经翻转过 (或告警已被撤销)，不算错误
func (r *MySQLAlertRepository) MarkTriggered(ctx context.Context, id string, triggeredAt int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&Alert{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]any{
			"status":       StatusTriggered,
			"triggered_at": triggeredAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
