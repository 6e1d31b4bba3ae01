/*
Package types 提供 BlindInsight 检索与编排核心的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 rag、supervisor、embedding、
llm 等上层模块提供统一的类型契约。所有跨包共享的结构体、枚举和错误码
均定义于此，以避免循环依赖。

# 核心类型

  - Document      — 不可变的检索内容单元（正文 + 元数据）
  - IndexedEntry  — Document + 向量 + 集合内唯一 ID
  - SearchResult  — 单次检索输出（相关性分数、排名、检索方法标记）
  - Message       — 对话消息（user / assistant / tool）
  - Verdict       — 质量评估结构化结论（should_retry、overall_score 等）
  - Error 哨兵    — ErrEmptyQuery、ErrInvalidFilter、ErrUnknownWorker 等

# 集合

五个固定的评论主题集合：company_culture、work_life_balance、management、
salary_benefits、career_growth。Collections 返回全量列表，
IsValidCollection 做成员校验。
*/
package types
