// Package transport 把参与者桥接到跨进程传输
//
// Bridge 通过 pkgif.Transport 的两个通道与同域的其它参与者交换帧：
//
//	<prefix>/<domain>/discovery  端点公告与撤销
//	<prefix>/<domain>/data       寻址到单个读端的样本
//
// 域 ID 是通道名的一部分，不同域的参与者互不可见。
//
// # 发现
//
// 本地端点创建时公告，之后每个 AnnounceInterval 重新公告一次，销毁时撤销。
// 收到远端公告后在参与者中建立代理端点：代理写端参与匹配与存活性监测，
// 代理读端是投递器的 sink，把样本编码为 Data 帧发往远端。
// 远端参与者超过 LeaseDuration 没有任何帧到达时，其代理全部移除。
//
// 任何来自远端参与者的帧都视为该参与者的心跳，声明其 Automatic 写端存活。
//
// # 后端
//
//   - inmem: 进程内 Hub，同一进程中的多个参与者
//   - redis: Redis 发布/订阅（go-redis）
//
// # Fx 模块集成
//
//	app := fx.New(
//	    participant.Module(),
//	    transport.Module(),
//	)
//
// 未启用传输时模块不创建 Bridge。
package transport
