// 文件: pkg/notify/nats_notifier.go
// NATS 事件发射器
//
// 按用户路由: 事件发到 notify.user.{userID}，
// 会话网关订阅自己负责的用户主题，连接管理与引擎无关。

package notify

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
)

// 确保实现了接口
var _ Notifier = (*NATSNotifier)(nil)

const userSubjectPrefix = "notify.user."

// NATSNotifier NATS 实现
type NATSNotifier struct {
	conn *nats.Conn
}

// NewNATSNotifier 包装外部持有的 NATS 连接
func NewNATSNotifier(conn *nats.Conn) *NATSNotifier {
	return &NATSNotifier{conn: conn}
}

// Notify 发布 JSON 事件到用户主题
func (n *NATSNotifier) Notify(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return n.conn.Publish(userSubjectPrefix+event.UserID, data)
}
