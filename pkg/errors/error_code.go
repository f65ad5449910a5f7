package errors

import "fmt"

// ErrorCode represents a unique error code for identifying different error types.
// The hundred-range of a code names the component that raised it.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown  ErrorCode = 1
	ErrCodeInternal ErrorCode = 2

	// Configuration errors (1100-1199)
	ErrCodeInvalidParameter       ErrorCode = 1100
	ErrCodeInvalidConfiguration   ErrorCode = 1101
	ErrCodeInvalidNodeConfig      ErrorCode = 1102
	ErrCodeUnknownNodeType        ErrorCode = 1103
	ErrCodeMissingParameter       ErrorCode = 1104
	ErrCodeInvalidVersion         ErrorCode = 1105
	ErrCodeVersionMismatch        ErrorCode = 1106
	ErrCodeInvalidIndicatorConfig ErrorCode = 1107

	// Key errors (1200-1299)
	ErrCodeInvalidKey      ErrorCode = 1200
	ErrCodeInvalidKeyField ErrorCode = 1201

	// Node state machine errors (1300-1399)
	ErrCodeInvalidTransition ErrorCode = 1300
	ErrCodeActionFailed      ErrorCode = 1301
	ErrCodeNodeFailed        ErrorCode = 1302

	// Strategy graph errors (1400-1499)
	ErrCodeGraphCycle          ErrorCode = 1400
	ErrCodeNodeNotFound        ErrorCode = 1401
	ErrCodeDuplicateNode       ErrorCode = 1402
	ErrCodeInvalidEdge         ErrorCode = 1403
	ErrCodeNodeInitTimeout     ErrorCode = 1404
	ErrCodeNodeStopTimeout     ErrorCode = 1405
	ErrCodeNodeTaskFailed      ErrorCode = 1406
	ErrCodeNodeStateNotReady   ErrorCode = 1407
	ErrCodeNodeStateNotStopped ErrorCode = 1408
	ErrCodeHandleNotFound      ErrorCode = 1409

	// Transport errors (1500-1599)
	ErrCodeEventSendFailed      ErrorCode = 1500
	ErrCodeCommandSendFailed    ErrorCode = 1501
	ErrCodeResponseRecvFailed   ErrorCode = 1502
	ErrCodeUnexpectedResponse   ErrorCode = 1503
	ErrCodeSubscriptionClosed   ErrorCode = 1504
	ErrCodeUnsupportedCommand   ErrorCode = 1505
	ErrCodeCommandHandlerPanics ErrorCode = 1506

	// Virtual trading system errors (1600-1699)
	ErrCodeUnsupportedOrderType ErrorCode = 1601
	ErrCodeKlineKeyNotFound     ErrorCode = 1602
	ErrCodeMarginNotEnough      ErrorCode = 1604
	ErrCodeOrderNotFound        ErrorCode = 1605
	ErrCodePositionNotFound     ErrorCode = 1606
	ErrCodeDirectionConflict    ErrorCode = 1609
	ErrCodeInvalidOrder         ErrorCode = 1610
	ErrCodeQuantityExceeds      ErrorCode = 1611

	// Cache errors (1700-1799)
	ErrCodeCacheKeyNotFound ErrorCode = 1700
	ErrCodeCacheOutOfOrder  ErrorCode = 1701
	ErrCodeCacheKeyMismatch ErrorCode = 1702

	// Strategy errors (1800-1899)
	ErrCodeStrategyNotFound      ErrorCode = 1800
	ErrCodeStrategyAlreadyExists ErrorCode = 1801
	ErrCodeStrategyNotReady      ErrorCode = 1802
	ErrCodeStrategyFinished      ErrorCode = 1803
	ErrCodeStepTimeout           ErrorCode = 1804
	ErrCodeUnsupportedStrategy   ErrorCode = 1805
	ErrCodeAlreadyPlaying        ErrorCode = 1806
	ErrCodeNotPlaying            ErrorCode = 1807

	// Persistence errors (1900-1999)
	ErrCodeQueryFailed      ErrorCode = 1900
	ErrCodeDataNotFound     ErrorCode = 1901
	ErrCodeLedgerWrite      ErrorCode = 1902
	ErrCodeHistoryLoadError ErrorCode = 1903
)

// Component returns the name of the component owning the code range.
func (c ErrorCode) Component() string {
	switch {
	case c >= 1100 && c < 1200:
		return "CONFIGURATION"
	case c >= 1200 && c < 1300:
		return "KEY"
	case c >= 1300 && c < 1400:
		return "NODE_STATE_MACHINE"
	case c >= 1400 && c < 1500:
		return "STRATEGY_GRAPH"
	case c >= 1500 && c < 1600:
		return "BUS"
	case c >= 1600 && c < 1700:
		return "VIRTUAL_TRADING_SYSTEM"
	case c >= 1700 && c < 1800:
		return "CACHE"
	case c >= 1800 && c < 1900:
		return "STRATEGY"
	case c >= 1900 && c < 2000:
		return "PERSISTENCE"
	default:
		return "GENERAL"
	}
}

// String renders the code as COMPONENT_NNNN, e.g. VIRTUAL_TRADING_SYSTEM_1604.
func (c ErrorCode) String() string {
	return fmt.Sprintf("%s_%04d", c.Component(), int(c))
}
