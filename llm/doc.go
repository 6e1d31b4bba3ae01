/*
Package llm 提供文本生成提供者接口与 OpenAI 兼容实现。

Generator 是编排核心唯一消费的生成面：给定提示词和至多五条检索上下文
文档，返回一段自由文本。失败或空响应表示"没有答案"，由调用方降级处理。
*/
package llm
