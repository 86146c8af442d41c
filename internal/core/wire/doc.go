// Package wire 定义跨进程边界的二进制编码
//
// 编码使用 protobuf 线格式（google.golang.org/protobuf/encoding/protowire），
// 不依赖生成代码。未知字段被跳过，便于后续增加字段。
//
// # 帧类型
//
//	Frame
//	├── Announce  端点公告（参与者、GUID、角色、主题、类型、QoS）
//	├── Withdraw  端点撤销；GUID 为零表示整个参与者离开
//	└── Data      样本，寻址到一个远端读端
//
// 同一套样本编码也被持久化存储复用。
package wire
