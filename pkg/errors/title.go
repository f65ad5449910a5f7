package errors

// Language selects the language of an error title.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageChinese Language = "zh"
)

type title struct {
	en string
	zh string
}

var titles = map[ErrorCode]title{
	ErrCodeUnknown:  {"unknown error", "未知错误"},
	ErrCodeInternal: {"internal error", "内部错误"},

	ErrCodeInvalidParameter:       {"invalid parameter", "参数无效"},
	ErrCodeInvalidConfiguration:   {"invalid configuration", "配置无效"},
	ErrCodeInvalidNodeConfig:      {"invalid node configuration", "节点配置无效"},
	ErrCodeUnknownNodeType:        {"unknown node type", "未知节点类型"},
	ErrCodeMissingParameter:       {"missing parameter", "缺少参数"},
	ErrCodeInvalidVersion:         {"invalid version", "版本无效"},
	ErrCodeVersionMismatch:        {"version mismatch", "版本不匹配"},
	ErrCodeInvalidIndicatorConfig: {"invalid indicator configuration", "指标配置无效"},

	ErrCodeInvalidKey:      {"invalid key", "键格式无效"},
	ErrCodeInvalidKeyField: {"invalid key field", "键字段无效"},

	ErrCodeInvalidTransition: {"invalid state transition", "无效的状态转换"},
	ErrCodeActionFailed:      {"state action failed", "状态动作执行失败"},
	ErrCodeNodeFailed:        {"node failed", "节点失败"},

	ErrCodeGraphCycle:          {"strategy graph has a cycle", "策略图存在环"},
	ErrCodeNodeNotFound:        {"node not found", "节点不存在"},
	ErrCodeDuplicateNode:       {"duplicate node", "节点重复"},
	ErrCodeInvalidEdge:         {"invalid edge", "连线无效"},
	ErrCodeNodeInitTimeout:     {"node init timeout", "节点初始化超时"},
	ErrCodeNodeStopTimeout:     {"node stop timeout", "节点停止超时"},
	ErrCodeNodeTaskFailed:      {"node task failed", "节点任务失败"},
	ErrCodeNodeStateNotReady:   {"node state not ready", "节点未就绪"},
	ErrCodeNodeStateNotStopped: {"node state not stopped", "节点未停止"},
	ErrCodeHandleNotFound:      {"handle not found", "句柄不存在"},

	ErrCodeEventSendFailed:      {"event send failed", "事件发送失败"},
	ErrCodeCommandSendFailed:    {"command send failed", "命令发送失败"},
	ErrCodeResponseRecvFailed:   {"response receive failed", "响应接收失败"},
	ErrCodeUnexpectedResponse:   {"unexpected response", "响应类型不符"},
	ErrCodeSubscriptionClosed:   {"subscription closed", "订阅已关闭"},
	ErrCodeUnsupportedCommand:   {"unsupported command", "不支持的命令"},
	ErrCodeCommandHandlerPanics: {"command handler panicked", "命令处理崩溃"},

	ErrCodeUnsupportedOrderType: {"unsupported order type", "不支持的订单类型"},
	ErrCodeKlineKeyNotFound:     {"kline key not found", "K线键不存在"},
	ErrCodeMarginNotEnough:      {"margin not enough", "保证金不足"},
	ErrCodeOrderNotFound:        {"order not found", "订单不存在"},
	ErrCodePositionNotFound:     {"position not found", "仓位不存在"},
	ErrCodeDirectionConflict:    {"only one direction is supported", "仅支持单向持仓"},
	ErrCodeInvalidOrder:         {"invalid order", "订单无效"},
	ErrCodeQuantityExceeds:      {"quantity exceeds position", "数量超过仓位"},

	ErrCodeCacheKeyNotFound: {"cache key not found", "缓存键不存在"},
	ErrCodeCacheOutOfOrder:  {"out of order value", "数据时间乱序"},
	ErrCodeCacheKeyMismatch: {"cache key mismatch", "缓存键类型不符"},

	ErrCodeStrategyNotFound:      {"strategy not found", "策略不存在"},
	ErrCodeStrategyAlreadyExists: {"strategy already exists", "策略已存在"},
	ErrCodeStrategyNotReady:      {"strategy not ready", "策略未就绪"},
	ErrCodeStrategyFinished:      {"strategy finished", "策略已结束"},
	ErrCodeStepTimeout:           {"step timeout", "单步执行超时"},
	ErrCodeUnsupportedStrategy:   {"unsupported strategy", "不支持的策略"},
	ErrCodeAlreadyPlaying:        {"strategy is already playing", "策略正在播放"},
	ErrCodeNotPlaying:            {"strategy is not playing", "策略未在播放"},

	ErrCodeQueryFailed:      {"query failed", "查询失败"},
	ErrCodeDataNotFound:     {"data not found", "数据不存在"},
	ErrCodeLedgerWrite:      {"ledger write failed", "账本写入失败"},
	ErrCodeHistoryLoadError: {"history load failed", "历史数据加载失败"},
}

// TitleOf returns the title of the code in lang. Unknown codes fall back to the
// code's full name, Chinese falls back to English when no translation exists.
func TitleOf(code ErrorCode, lang Language) string {
	t, ok := titles[code]
	if !ok {
		return code.String()
	}

	if lang == LanguageChinese && t.zh != "" {
		return t.zh
	}

	return t.en
}
