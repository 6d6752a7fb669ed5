// Package crawlers 实现范围受限、可中断恢复的网页文本爬取
//
// # 概述
//
// 一次爬取由固定数量的worker从Frontier拉取URL,抓取页面、提取正文与链接,
// 把范围内的新链接放回Frontier,并在每个URL处理结束后写入检查点。
//
// # 核心组件
//
// ## Frontier
//
// 待处理队列与已准入集合。EnqueueIfNew在同一把锁内完成"检查-插入",
// 保证每个URL在一次运行中最多被准入一次;出队的URL在MarkVisited或Requeue之前
// 处于处理中状态,Snapshot会把它们计入Pending,中断后不会丢失。
//
//	frontier := NewFrontier()
//	frontier.Restore(state)
//	frontier.EnqueueIfNew("https://example.com/docs/")
//
// ## Scope
//
// 主机名完全相等,且路径包含路径前缀子串的链接才会入队。
// StrictPrefix为true时改为前缀匹配。
//
// ## Fetcher
//
// RodFetcher 使用无头浏览器渲染页面,等待网络空闲并点击"阅读更多"元素;
// CollyFetcher 直接请求HTML,适合无需执行JavaScript的站点。
// 两者在单次尝试超时时都返回ErrFetchTimeout。
//
// ## RetryPolicy
//
// 只重试超时,总尝试次数为MaxRetries+1,每次尝试前随机等待。
// 收到关闭信号后不再发起新的尝试,返回ErrInterrupted。
//
// ## WorkerPool
//
//	pool := NewWorkerPool(frontier, fetcher, NewExtractor(), scope, sink, store, PoolConfig{
//	    Workers:  4,
//	    Retry:    DefaultRetryPolicy(),
//	    MinDelay: time.Second,
//	    MaxDelay: 3 * time.Second,
//	})
//	err := pool.Run(ctx)
//
// Frontier为空且没有处理中的URL时全部worker退出;ctx取消时进行中的尝试自然结束,
// 被中断的URL放回队首。
//
// ## PagePool 与 ResourceMonitor
//
// RodFetcher内部复用浏览器标签页。标签页数不超过worker数,
// 同时受ResourceMonitor根据可用内存与CPU负载计算的上限约束。
package crawlers
