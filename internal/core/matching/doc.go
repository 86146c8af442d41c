// Package matching 维护写端与读端的匹配记录
//
// 端点创建时扫描同一主题下对侧角色的全部端点，逐对调用 qos.Resolve，
// 为兼容的对生成 Record；端点销毁时移除所有引用它的记录。
//
// 匹配只按主题进行。类型名不一致在主题绑定时就作为配置错误拒绝，
// 不会到达这里。
//
// 锁顺序：Engine.mu -> topicMatches.mu。Add/Remove 对同一主题互斥，
// 投递方通过 ReadersOf 在主题读锁下获取一致快照。
package matching
