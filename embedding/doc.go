/*
Package embedding 提供统一的嵌入提供者接口和实现。

Provider 把文本映射为固定维度的向量。OpenAIProvider 走 OpenAI 兼容的
HTTP 接口；CachingProvider 在其上叠加 md5 键控的内存缓存与降级语义：
单条失败返回零向量而不是中断整个批次。
*/
package embedding
