/*
Package supervisor 实现问答编排状态机。

# 状态机

一次会话沿固定路径流转：

	Supervisor → Worker[name] → QualityEvaluator → Supervisor

Supervisor 把问题路由给恰好一个专家 worker；worker 检索知识库并
生成回答；质量评估器给回答打分并产出结构化判定。判定要求重试且
预算未耗尽时，Supervisor 用"原问题 + 第一条改进建议"构造新任务
描述重新调用同一个 worker；否则终止并返回最终回答。

# 约束

  - 每次路由决策只调度一个 worker。
  - worker 报错回到 Supervisor，不经过评估器。
  - 最多 max_retry_count 次重试，即 worker 总调用数不超过
    max_retry_count+1。
  - 终止前清除消息序列中的评估器判定消息，最终对话里只留
    用户与专家的发言。
*/
package supervisor
