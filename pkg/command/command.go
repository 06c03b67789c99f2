package command

// Command is a validated action. The concrete type is one of the variants
// below; consumers switch over them exhaustively.
type Command interface {
	CommandName() Name
	isCommand()
}

type (
	GetInstruments            struct{}
	GetTickers                struct{}
	GetNotifications          struct{}
	GetAccounts               struct{}
	GetAccountLog             struct{}
	GetOpenPositions          struct{}
	GetOpenOrders             struct{}
	GetAccountAvailableMargin struct{}

	GetOrderbook struct {
		Symbol string
	}

	GetHistory struct {
		Symbol   string
		LastTime string
	}

	GetRecentOrders struct {
		Symbol string
	}

	GetHistoricalPriceData struct {
		Pair     string
		Interval int
		Since    int64
	}

	GetFills struct {
		LastTime string
	}

	GetTransfers struct {
		LastTime string
	}
)

// OrderType is the order kind accepted by sendOrder.
type OrderType string

const (
	OrderTypeLimit  OrderType = "lmt"
	OrderTypeMarket OrderType = "mkt"
	OrderTypeStop   OrderType = "stp"
)

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type (
	SendOrder struct {
		OrderType  OrderType
		Symbol     string
		Side       Side
		Size       float64
		LimitPrice *float64
		StopPrice  *float64
		ReduceOnly bool
	}

	EditOrder struct {
		OrderID    string
		Size       float64
		LimitPrice float64
	}

	CancelOrder struct {
		OrderID string
	}

	CancelAllOrders struct {
		Symbol string
	}

	CancelAllOrdersAfter struct {
		TimeoutSeconds int
	}

	BatchOrder struct {
		BatchJSON string
	}
)

type (
	CallAI struct {
		Prompt string
	}

	ClearTerminal struct{}

	WriteActionPlan struct {
		ActionPlan string
	}

	ClearActionPlan struct{}

	WriteNotes struct {
		Notes  string
		Append bool
	}

	Wait struct {
		Minutes float64
	}

	NotifyOperator struct {
		Message string
	}

	DoNothing struct {
		Reason string
	}
)

func (GetInstruments) CommandName() Name            { return GetInstrumentsName }
func (GetTickers) CommandName() Name                { return GetTickersName }
func (GetNotifications) CommandName() Name          { return GetNotificationsName }
func (GetAccounts) CommandName() Name               { return GetAccountsName }
func (GetAccountLog) CommandName() Name             { return GetAccountLogName }
func (GetOpenPositions) CommandName() Name          { return GetOpenPositionsName }
func (GetOpenOrders) CommandName() Name             { return GetOpenOrdersName }
func (GetAccountAvailableMargin) CommandName() Name { return GetAccountAvailableMarginName }
func (GetOrderbook) CommandName() Name              { return GetOrderbookName }
func (GetHistory) CommandName() Name                { return GetHistoryName }
func (GetRecentOrders) CommandName() Name           { return GetRecentOrdersName }
func (GetHistoricalPriceData) CommandName() Name    { return GetHistoricalPriceDataName }
func (GetFills) CommandName() Name                  { return GetFillsName }
func (GetTransfers) CommandName() Name              { return GetTransfersName }
func (SendOrder) CommandName() Name                 { return SendOrderName }
func (EditOrder) CommandName() Name                 { return EditOrderName }
func (CancelOrder) CommandName() Name               { return CancelOrderName }
func (CancelAllOrders) CommandName() Name           { return CancelAllOrdersName }
func (CancelAllOrdersAfter) CommandName() Name      { return CancelAllOrdersAfterName }
func (BatchOrder) CommandName() Name                { return BatchOrderName }
func (CallAI) CommandName() Name                    { return CallAIName }
func (ClearTerminal) CommandName() Name             { return ClearTerminalName }
func (WriteActionPlan) CommandName() Name           { return WriteActionPlanName }
func (ClearActionPlan) CommandName() Name           { return ClearActionPlanName }
func (WriteNotes) CommandName() Name                { return WriteNotesName }
func (Wait) CommandName() Name                      { return WaitName }
func (NotifyOperator) CommandName() Name            { return NotifyOperatorName }
func (DoNothing) CommandName() Name                 { return DoNothingName }

func (GetInstruments) isCommand()            {}
func (GetTickers) isCommand()                {}
func (GetNotifications) isCommand()          {}
func (GetAccounts) isCommand()               {}
func (GetAccountLog) isCommand()             {}
func (GetOpenPositions) isCommand()          {}
func (GetOpenOrders) isCommand()             {}
func (GetAccountAvailableMargin) isCommand() {}
func (GetOrderbook) isCommand()              {}
func (GetHistory) isCommand()                {}
func (GetRecentOrders) isCommand()           {}
func (GetHistoricalPriceData) isCommand()    {}
func (GetFills) isCommand()                  {}
func (GetTransfers) isCommand()              {}
func (SendOrder) isCommand()                 {}
func (EditOrder) isCommand()                 {}
func (CancelOrder) isCommand()               {}
func (CancelAllOrders) isCommand()           {}
func (CancelAllOrdersAfter) isCommand()      {}
func (BatchOrder) isCommand()                {}
func (CallAI) isCommand()                    {}
func (ClearTerminal) isCommand()             {}
func (WriteActionPlan) isCommand()           {}
func (ClearActionPlan) isCommand()           {}
func (WriteNotes) isCommand()                {}
func (Wait) isCommand()                      {}
func (NotifyOperator) isCommand()            {}
func (DoNothing) isCommand()                 {}
