/*
Package rag 实现 BlindInsight 的检索与排序引擎。

# 概述

引擎由四层组成，自底向上：

  - VectorIndex   — 按集合存储向量 + 元数据，支持带等值过滤的近邻查询。
    提供内存实现（测试/小规模）与 Chroma 后端实现（生产）。
  - LexicalIndex  — 对过滤后的文档子集做 BM25 排序；构建成本高，
    由 LexicalCache 按 (collection, filters) 键 TTL 缓存。
  - HybridRetriever — 并行词法 + 向量检索，按排名位次 1/(rank+1)
    加权融合，双列表命中求和并施加前十重叠加成，可选交叉编码重排，
    最后做相关性阈值过滤与排名压缩。
  - KnowledgeStore — 摄取管线（分块 → 嵌入 → 入索引）与唯一的
    Search 检索面；专家 worker 只许通过它访问检索。

# 降级语义

任何单一阶段失败都降级而不是失败整个检索：向量后端不可用退化为
纯词法；融合失败退化为纯语义；重排失败返回融合序。校验类错误
（空查询、非法集合）立即返回调用方。
*/
package rag
