package command

// Name is a canonical action name.
type Name string

// Read operations.
const (
	GetInstrumentsName            Name = "getInstruments"
	GetTickersName                Name = "getTickers"
	GetNotificationsName          Name = "getNotifications"
	GetAccountsName               Name = "getAccounts"
	GetAccountLogName             Name = "getAccountLog"
	GetOpenPositionsName          Name = "getOpenPositions"
	GetOpenOrdersName             Name = "getOpenOrders"
	GetOrderbookName              Name = "getOrderbook"
	GetHistoryName                Name = "getHistory"
	GetRecentOrdersName           Name = "getRecentOrders"
	GetHistoricalPriceDataName    Name = "getHistoricalPriceData"
	GetAccountAvailableMarginName Name = "getAccountAvailableMargin"
	GetFillsName                  Name = "getFills"
	GetTransfersName              Name = "getTransfers"
)

// Order management.
const (
	SendOrderName            Name = "sendOrder"
	EditOrderName            Name = "editOrder"
	CancelOrderName          Name = "cancelOrder"
	CancelAllOrdersName      Name = "cancelAllOrders"
	CancelAllOrdersAfterName Name = "cancelAllOrdersAfter"
	BatchOrderName           Name = "batchOrder"
)

// Local actions.
const (
	CallAIName          Name = "callAI"
	ClearTerminalName   Name = "clearTerminal"
	WriteActionPlanName Name = "writeActionPlan"
	ClearActionPlanName Name = "clearActionPlan"
	WriteNotesName      Name = "writeNotes"
	WaitName            Name = "wait"
	NotifyOperatorName  Name = "notifyOperator"
	DoNothingName       Name = "doNothing"
)

// Category groups commands by the collaborator they touch.
type Category string

const (
	CategoryRead       Category = "read"
	CategoryWrite      Category = "write"
	CategoryRecursive  Category = "recursive reasoning"
	CategoryHistory    Category = "history mutation"
	CategoryState      Category = "state mutation"
	CategoryPacing     Category = "pacing"
	CategoryEscalation Category = "escalation"
	CategoryNoop       Category = "no-op"
)

// Param describes one parameter of a command.
type Param struct {
	Name        string        `json:"name"`
	Types       []string      `json:"types"`
	Description string        `json:"description"`
	Required    bool          `json:"required"`
	Enum        []interface{} `json:"enum,omitempty"`
	// ExclusiveMinimum, when set, requires numbers strictly greater than it.
	ExclusiveMinimum *float64 `json:"exclusiveMinimum,omitempty"`
	Minimum          *float64 `json:"minimum,omitempty"`
	// AllowEmpty lets a required string be "". Identifiers stay non-empty.
	AllowEmpty bool `json:"allowEmpty,omitempty"`
}

// Spec describes one command of the vocabulary.
type Spec struct {
	Name        Name     `json:"name"`
	Category    Category `json:"category"`
	Description string   `json:"description"`
	Params      []Param  `json:"params"`
}

// RequiredParams lists the names of required parameters.
func (s Spec) RequiredParams() []string {
	var out []string
	for _, p := range s.Params {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

func zero() *float64 {
	v := 0.0
	return &v
}

func str(name, desc string, required bool) Param {
	return Param{Name: name, Types: []string{"string"}, Description: desc, Required: required}
}

// text is a required free-form string that may be empty.
func text(name, desc string) Param {
	return Param{Name: name, Types: []string{"string"}, Description: desc, Required: true, AllowEmpty: true}
}

func positive(name, desc string, required bool) Param {
	return Param{Name: name, Types: []string{"number"}, Description: desc, Required: required, ExclusiveMinimum: zero()}
}

func noParams(name Name, category Category, desc string) Spec {
	return Spec{Name: name, Category: category, Description: desc}
}

// DefaultVocabulary returns the closed action set in presentation order.
func DefaultVocabulary() []Spec {
	lastTime := Param{
		Name:        "lastTime",
		Types:       []string{"string", "number"},
		Description: "Only return entries after this time (ISO-8601 or unix ms)",
	}

	return []Spec{
		noParams(GetInstrumentsName, CategoryRead, "List all tradable instruments"),
		noParams(GetTickersName, CategoryRead, "Current tickers for all instruments"),
		{
			Name:        GetOrderbookName,
			Category:    CategoryRead,
			Description: "Order book for a symbol",
			Params:      []Param{str("symbol", "Instrument symbol, e.g. pf_xbtusd", true)},
		},
		{
			Name:        GetHistoryName,
			Category:    CategoryRead,
			Description: "Public trade history for a symbol",
			Params: []Param{
				str("symbol", "Instrument symbol", true),
				lastTime,
			},
		},
		{
			Name:        GetHistoricalPriceDataName,
			Category:    CategoryRead,
			Description: "OHLC candles for a spot pair",
			Params: []Param{
				str("pair", "Spot pair, e.g. XBTUSD", true),
				{Name: "interval", Types: []string{"integer"}, Description: "Candle interval in minutes", Required: true, ExclusiveMinimum: zero()},
				{Name: "since", Types: []string{"integer"}, Description: "Unix seconds to start from", Required: true, Minimum: zero()},
			},
		},
		noParams(GetAccountsName, CategoryRead, "All account balances"),
		noParams(GetAccountAvailableMarginName, CategoryRead, "Available margin of the flex account"),
		noParams(GetOpenPositionsName, CategoryRead, "Open positions"),
		noParams(GetOpenOrdersName, CategoryRead, "Open orders"),
		{
			Name:        GetRecentOrdersName,
			Category:    CategoryRead,
			Description: "Recent orders for a symbol",
			Params:      []Param{str("symbol", "Instrument symbol", true)},
		},
		{
			Name:        GetFillsName,
			Category:    CategoryRead,
			Description: "Fills, optionally since lastTime",
			Params:      []Param{lastTime},
		},
		noParams(GetAccountLogName, CategoryRead, "Account log"),
		{
			Name:        GetTransfersName,
			Category:    CategoryRead,
			Description: "Transfers, optionally since lastTime",
			Params:      []Param{lastTime},
		},
		noParams(GetNotificationsName, CategoryRead, "Exchange notifications"),
		{
			Name:        SendOrderName,
			Category:    CategoryWrite,
			Description: "Place an order. limitPrice is required unless orderType is mkt; stopPrice is required for stp",
			Params: []Param{
				{Name: "orderType", Types: []string{"string"}, Description: "lmt, mkt or stp", Required: true, Enum: []interface{}{"lmt", "mkt", "stp"}},
				str("symbol", "Instrument symbol", true),
				{Name: "side", Types: []string{"string"}, Description: "buy or sell", Required: true, Enum: []interface{}{"buy", "sell"}},
				positive("size", "Order size in contracts", true),
				positive("limitPrice", "Limit price", false),
				positive("stopPrice", "Stop trigger price", false),
				{Name: "reduceOnly", Types: []string{"boolean"}, Description: "Only reduce an existing position"},
			},
		},
		{
			Name:        EditOrderName,
			Category:    CategoryWrite,
			Description: "Edit an open order",
			Params: []Param{
				str("orderId", "Exchange order id", true),
				positive("size", "New size", true),
				positive("limitPrice", "New limit price", true),
			},
		},
		{
			Name:        CancelOrderName,
			Category:    CategoryWrite,
			Description: "Cancel an order",
			Params:      []Param{str("order_id", "Exchange order id", true)},
		},
		{
			Name:        CancelAllOrdersName,
			Category:    CategoryWrite,
			Description: "Cancel all orders for a symbol",
			Params:      []Param{str("symbol", "Instrument symbol", true)},
		},
		{
			Name:        CancelAllOrdersAfterName,
			Category:    CategoryWrite,
			Description: "Dead man's switch: cancel all orders after timeout seconds (0 disarms)",
			Params: []Param{
				{Name: "timeout", Types: []string{"integer"}, Description: "Seconds until cancellation", Required: true, Minimum: zero()},
			},
		},
		{
			Name:        BatchOrderName,
			Category:    CategoryWrite,
			Description: "Submit a batch of order instructions",
			Params: []Param{
				{Name: "batchJson", Types: []string{"string", "object", "array"}, Description: "Batch instructions as JSON", Required: true},
			},
		},
		{
			Name:        CallAIName,
			Category:    CategoryRecursive,
			Description: "Ask a separate model call for analysis; pass prompt or message",
			Params: []Param{
				str("prompt", "Question for the delegated call", false),
				str("message", "Alternative to prompt", false),
			},
		},
		noParams(ClearTerminalName, CategoryHistory, "Reset the conversation to the system prompt; action plan and notes are kept"),
		{
			Name:        WriteActionPlanName,
			Category:    CategoryState,
			Description: "Replace the action plan checklist",
			Params:      []Param{text("actionPlan", "Full action plan text")},
		},
		noParams(ClearActionPlanName, CategoryState, "Empty the action plan"),
		{
			Name:        WriteNotesName,
			Category:    CategoryState,
			Description: "Write notes, optionally appending",
			Params: []Param{
				text("notes", "Notes text"),
				{Name: "append", Types: []string{"boolean"}, Description: "Append instead of overwrite (default false)"},
			},
		},
		{
			Name:        WaitName,
			Category:    CategoryPacing,
			Description: "Pause before the next cycle",
			Params:      []Param{positive("minutes", "Minutes to wait", true)},
		},
		{
			Name:        NotifyOperatorName,
			Category:    CategoryEscalation,
			Description: "Send a message to the human operator",
			Params:      []Param{str("message", "Message text", true)},
		},
		{
			Name:        DoNothingName,
			Category:    CategoryNoop,
			Description: "Pass this cycle; include a reason",
			Params:      []Param{str("reason", "Why no action is taken", true)},
		},
	}
}

// commandAliases maps historical action names to canonical ones.
var commandAliases = map[string]Name{
	"callDeepseekAPI":    CallAIName,
	"callHuggingfaceAPI": CallAIName,
	"callOpenRouterAPI":  CallAIName,
	"writeToActionPlan":  WriteActionPlanName,
	"fetchKrakenData":    GetHistoricalPriceDataName,
}

// paramAliases maps historical parameter names to canonical ones per command.
var paramAliases = map[Name]map[string]string{
	WriteActionPlanName: {"updatedActionPlan": "actionPlan"},
	GetFillsName:        {"lastFillTime": "lastTime"},
	GetTransfersName:    {"lastTransferTime": "lastTime"},
}
