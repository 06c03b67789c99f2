package command

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Raw is a candidate command as emitted by the model, before validation.
type Raw struct {
	Name       string                 `json:"command"`
	Parameters map[string]interface{} `json:"parameters"`
}

// ParseRaw extracts a candidate command from a decoded JSON object. The name
// is read from "command", falling back to "name"; absent parameters mean {}.
func ParseRaw(obj map[string]interface{}) (Raw, error) {
	name, _ := obj["command"].(string)
	if name == "" {
		name, _ = obj["name"].(string)
	}
	if strings.TrimSpace(name) == "" {
		return Raw{}, unknownCommand("", "response has no command field")
	}

	raw := Raw{Name: name, Parameters: map[string]interface{}{}}
	switch params := obj["parameters"].(type) {
	case nil:
	case map[string]interface{}:
		raw.Parameters = params
	default:
		return Raw{}, missingParameter(Name(name), "parameters", "parameters must be an object")
	}
	return raw, nil
}

// Normalize resolves historical command and parameter aliases. The input is
// not modified.
func Normalize(raw Raw) Raw {
	name := Name(raw.Name)
	if canonical, ok := commandAliases[raw.Name]; ok {
		name = canonical
	}

	params := make(map[string]interface{}, len(raw.Parameters))
	for k, v := range raw.Parameters {
		params[k] = v
	}
	for from, to := range paramAliases[name] {
		if v, ok := params[from]; ok {
			if _, exists := params[to]; !exists {
				params[to] = v
			}
			delete(params, from)
		}
	}

	return Raw{Name: string(name), Parameters: params}
}

type registryEntry struct {
	spec   Spec
	schema *gojsonschema.Schema
}

// Registry holds the vocabulary and a compiled JSON schema per command.
type Registry struct {
	entries map[Name]*registryEntry
	order   []Name
}

// NewRegistry compiles the default vocabulary.
func NewRegistry() (*Registry, error) {
	return NewRegistryFromSpecs(DefaultVocabulary())
}

// NewRegistryFromSpecs compiles the given specs. Names must be unique.
func NewRegistryFromSpecs(specs []Spec) (*Registry, error) {
	r := &Registry{entries: make(map[Name]*registryEntry, len(specs))}

	for _, spec := range specs {
		if err := validateSpec(spec); err != nil {
			return nil, fmt.Errorf("invalid command spec: %w", err)
		}
		if _, exists := r.entries[spec.Name]; exists {
			return nil, fmt.Errorf("duplicate command: %s", spec.Name)
		}

		schema, err := generateJSONSchema(spec)
		if err != nil {
			return nil, fmt.Errorf("failed to generate schema for %s: %w", spec.Name, err)
		}

		r.entries[spec.Name] = &registryEntry{spec: spec, schema: schema}
		r.order = append(r.order, spec.Name)
	}

	return r, nil
}

// Lookup returns the spec of a canonical name.
func (r *Registry) Lookup(name Name) (Spec, bool) {
	entry, ok := r.entries[name]
	if !ok {
		return Spec{}, false
	}
	return entry.spec, true
}

// Specs returns every spec in registration order.
func (r *Registry) Specs() []Spec {
	out := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].spec)
	}
	return out
}


// Validate normalizes a candidate and returns its typed variant, or a
// *ValidationError of kind UnknownCommand or MissingParameter.
func (r *Registry) Validate(raw Raw) (Command, error) {
	norm := Normalize(raw)

	entry, ok := r.entries[Name(norm.Name)]
	if !ok {
		return nil, unknownCommand(raw.Name, "")
	}

	if err := validateParameters(entry, norm.Parameters); err != nil {
		return nil, err
	}

	return build(entry.spec.Name, norm.Parameters)
}

func validateSpec(spec Spec) error {
	if spec.Name == "" {
		return fmt.Errorf("command name cannot be empty")
	}
	if spec.Category == "" {
		return fmt.Errorf("category cannot be empty for %s", spec.Name)
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, p := range spec.Params {
		if p.Name == "" {
			return fmt.Errorf("parameter name cannot be empty in %s", spec.Name)
		}
		if len(p.Types) == 0 {
			return fmt.Errorf("parameter type cannot be empty for %s.%s", spec.Name, p.Name)
		}
		for _, t := range p.Types {
			if !validTypes[t] {
				return fmt.Errorf("invalid parameter type %s for %s.%s", t, spec.Name, p.Name)
			}
		}
	}
	return nil
}

// generateJSONSchema builds an object schema from the parameter list.
// Unknown properties are tolerated; only declared ones are used.
func generateJSONSchema(spec Spec) (*gojsonschema.Schema, error) {
	properties := make(map[string]interface{}, len(spec.Params))
	required := []string{}

	for _, p := range spec.Params {
		prop := map[string]interface{}{
			"description": p.Description,
		}
		if len(p.Types) == 1 {
			prop["type"] = p.Types[0]
		} else {
			prop["type"] = p.Types
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.ExclusiveMinimum != nil {
			prop["exclusiveMinimum"] = *p.ExclusiveMinimum
		}
		if p.Minimum != nil {
			prop["minimum"] = *p.Minimum
		}
		if p.Types[0] == "string" && len(p.Types) == 1 && p.Required && !p.AllowEmpty {
			prop["minLength"] = 1
		}

		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schemaMap := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}

func validateParameters(entry *registryEntry, params map[string]interface{}) error {
	result, err := entry.schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return missingParameter(entry.spec.Name, "parameters", err.Error())
	}
	if result.Valid() {
		return nil
	}

	first := ""
	reasons := make([]string, 0, len(result.Errors()))
	for _, resErr := range result.Errors() {
		param := resErr.Field()
		if prop, ok := resErr.Details()["property"].(string); ok && resErr.Type() == "required" {
			param = prop
		}
		if first == "" {
			first = param
		}
		reasons = append(reasons, fmt.Sprintf("%s: %s", param, resErr.Description()))
	}

	return missingParameter(entry.spec.Name, first, strings.Join(reasons, "; "))
}

func build(name Name, p map[string]interface{}) (Command, error) {
	switch name {
	case GetInstrumentsName:
		return GetInstruments{}, nil
	case GetTickersName:
		return GetTickers{}, nil
	case GetNotificationsName:
		return GetNotifications{}, nil
	case GetAccountsName:
		return GetAccounts{}, nil
	case GetAccountLogName:
		return GetAccountLog{}, nil
	case GetOpenPositionsName:
		return GetOpenPositions{}, nil
	case GetOpenOrdersName:
		return GetOpenOrders{}, nil
	case GetAccountAvailableMarginName:
		return GetAccountAvailableMargin{}, nil
	case GetOrderbookName:
		return GetOrderbook{Symbol: stringParam(p, "symbol")}, nil
	case GetHistoryName:
		return GetHistory{Symbol: stringParam(p, "symbol"), LastTime: timeParam(p, "lastTime")}, nil
	case GetRecentOrdersName:
		return GetRecentOrders{Symbol: stringParam(p, "symbol")}, nil
	case GetHistoricalPriceDataName:
		interval, _ := numberParam(p, "interval")
		since, _ := numberParam(p, "since")
		return GetHistoricalPriceData{
			Pair:     stringParam(p, "pair"),
			Interval: int(interval),
			Since:    int64(since),
		}, nil
	case GetFillsName:
		return GetFills{LastTime: timeParam(p, "lastTime")}, nil
	case GetTransfersName:
		return GetTransfers{LastTime: timeParam(p, "lastTime")}, nil

	case SendOrderName:
		return buildSendOrder(p)
	case EditOrderName:
		size, _ := numberParam(p, "size")
		limit, _ := numberParam(p, "limitPrice")
		return EditOrder{OrderID: stringParam(p, "orderId"), Size: size, LimitPrice: limit}, nil
	case CancelOrderName:
		return CancelOrder{OrderID: stringParam(p, "order_id")}, nil
	case CancelAllOrdersName:
		return CancelAllOrders{Symbol: stringParam(p, "symbol")}, nil
	case CancelAllOrdersAfterName:
		timeout, _ := numberParam(p, "timeout")
		return CancelAllOrdersAfter{TimeoutSeconds: int(timeout)}, nil
	case BatchOrderName:
		batch, err := jsonTextParam(p, "batchJson")
		if err != nil {
			return nil, missingParameter(name, "batchJson", err.Error())
		}
		return BatchOrder{BatchJSON: batch}, nil

	case CallAIName:
		return buildCallAI(p)
	case ClearTerminalName:
		return ClearTerminal{}, nil
	case WriteActionPlanName:
		return WriteActionPlan{ActionPlan: stringParam(p, "actionPlan")}, nil
	case ClearActionPlanName:
		return ClearActionPlan{}, nil
	case WriteNotesName:
		appendMode, _ := p["append"].(bool)
		return WriteNotes{Notes: stringParam(p, "notes"), Append: appendMode}, nil
	case WaitName:
		minutes, _ := numberParam(p, "minutes")
		return Wait{Minutes: minutes}, nil
	case NotifyOperatorName:
		return NotifyOperator{Message: stringParam(p, "message")}, nil
	case DoNothingName:
		return DoNothing{Reason: stringParam(p, "reason")}, nil
	}

	return nil, unknownCommand(string(name), "no variant registered")
}

func buildSendOrder(p map[string]interface{}) (Command, error) {
	order := SendOrder{
		OrderType: OrderType(stringParam(p, "orderType")),
		Symbol:    stringParam(p, "symbol"),
		Side:      Side(stringParam(p, "side")),
	}
	order.Size, _ = numberParam(p, "size")
	order.ReduceOnly, _ = p["reduceOnly"].(bool)

	if limit, ok := numberParam(p, "limitPrice"); ok {
		order.LimitPrice = &limit
	}
	if order.OrderType != OrderTypeMarket && order.LimitPrice == nil {
		return nil, missingParameter(SendOrderName, "limitPrice", fmt.Sprintf("limitPrice is required for %s orders", order.OrderType))
	}

	if order.OrderType == OrderTypeStop {
		stop, ok := numberParam(p, "stopPrice")
		if !ok {
			return nil, missingParameter(SendOrderName, "stopPrice", "stopPrice is required for stp orders")
		}
		order.StopPrice = &stop
	}

	return order, nil
}

func buildCallAI(p map[string]interface{}) (Command, error) {
	_, hasPrompt := p["prompt"]
	_, hasMessage := p["message"]
	for _, key := range []string{"prompt", "message"} {
		if s := stringParam(p, key); strings.TrimSpace(s) != "" {
			return CallAI{Prompt: s}, nil
		}
	}
	if hasPrompt || hasMessage {
		return nil, missingParameter(CallAIName, "prompt", "prompt or message must not be empty")
	}
	if len(p) == 0 {
		return nil, missingParameter(CallAIName, "prompt", "prompt or message is required")
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, missingParameter(CallAIName, "prompt", err.Error())
	}
	return CallAI{Prompt: string(data)}, nil
}

func stringParam(p map[string]interface{}, key string) string {
	s, _ := p[key].(string)
	return s
}

func numberParam(p map[string]interface{}, key string) (float64, bool) {
	switch n := p[key].(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// timeParam renders a string or numeric timestamp as text.
func timeParam(p map[string]interface{}, key string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	if f, ok := numberParam(p, key); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

func jsonTextParam(p map[string]interface{}, key string) (string, error) {
	switch v := p[key].(type) {
	case string:
		return v, nil
	case nil:
		return "", fmt.Errorf("%s is required", key)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}
