package yagna

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ActivityState is the lifecycle state of a single activity as reported by
// the activity API.
type ActivityState string

const (
	StateNew          ActivityState = "New"
	StateInitialized  ActivityState = "Initialized"
	StateDeployed     ActivityState = "Deployed"
	StateReady        ActivityState = "Ready"
	StateTerminated   ActivityState = "Terminated"
	StateUnresponsive ActivityState = "Unresponsive"
)

var knownStates = []ActivityState{
	StateNew,
	StateInitialized,
	StateDeployed,
	StateReady,
	StateTerminated,
	StateUnresponsive,
}

// ParseActivityState matches s case-insensitively against the known states.
func ParseActivityState(s string) (ActivityState, error) {
	s = strings.TrimSpace(s)
	for _, state := range knownStates {
		if strings.EqualFold(string(state), s) {
			return state, nil
		}
	}
	return "", fmt.Errorf("unknown activity state %q", s)
}

func (s *ActivityState) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseActivityState(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// StatePair is the (current, next) activity state tuple. Next is nil when no
// transition is in flight.
type StatePair struct {
	Current      ActivityState
	Next         *ActivityState
	Reason       string
	ErrorMessage string
}

// Pair builds a StatePair; pass an empty next for "no transition".
func Pair(current, next ActivityState) StatePair {
	p := StatePair{Current: current}
	if next != "" {
		n := next
		p.Next = &n
	}
	return p
}

func (p StatePair) String() string {
	if p.Next == nil {
		return string(p.Current)
	}
	return string(p.Current) + "->" + string(*p.Next)
}

// UnmarshalJSON accepts the /state object form
// ({"state":["Ready",null],"reason":..}) as well as the bare forms used in
// monitor records: a two element array or a single state string.
func (p *StatePair) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var aux struct {
			State        json.RawMessage `json:"state"`
			Reason       *string         `json:"reason"`
			ErrorMessage *string         `json:"errorMessage"`
		}
		if err := json.Unmarshal(trimmed, &aux); err != nil {
			return err
		}
		if err := p.decodeState(aux.State); err != nil {
			return err
		}
		if aux.Reason != nil {
			p.Reason = *aux.Reason
		}
		if aux.ErrorMessage != nil {
			p.ErrorMessage = *aux.ErrorMessage
		}
		return nil
	}
	return p.decodeState(trimmed)
}

func (p *StatePair) decodeState(raw json.RawMessage) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fmt.Errorf("missing activity state")
	}
	if raw[0] == '"' {
		var current ActivityState
		if err := json.Unmarshal(raw, &current); err != nil {
			return err
		}
		p.Current = current
		p.Next = nil
		return nil
	}
	var pair []*ActivityState
	if err := json.Unmarshal(raw, &pair); err != nil {
		return err
	}
	if len(pair) == 0 || pair[0] == nil {
		return fmt.Errorf("activity state array missing current state")
	}
	p.Current = *pair[0]
	p.Next = nil
	if len(pair) > 1 && pair[1] != nil {
		next := *pair[1]
		p.Next = &next
	}
	return nil
}

// ActivityRecord is one entry of a monitor stream message.
type ActivityRecord struct {
	ID          string                     `json:"id"`
	AgreementID string                     `json:"agreementId"`
	State       StatePair                  `json:"state"`
	Usage       map[string]decimal.Decimal `json:"usage"`
	ExeUnit     string                     `json:"exeUnit"`
}

// TrackingEvent is one decoded monitor stream message.
type TrackingEvent struct {
	Ts         time.Time        `json:"ts"`
	Activities []ActivityRecord `json:"activities"`
}

// ActivityUsage is the positional usage vector of an activity.
type ActivityUsage struct {
	CurrentUsage []decimal.Decimal `json:"currentUsage"`
	Timestamp    int64             `json:"timestamp"`
}

// Agreement state names reported by the market API.
const (
	AgreementProposal   = "Proposal"
	AgreementPending    = "Pending"
	AgreementApproved   = "Approved"
	AgreementTerminated = "Terminated"
)

// Property names used to derive job pricing from an offer.
const (
	PropertyUsageVector  = "golem.com.usage.vector"
	PropertyLinearCoeffs = "golem.com.pricing.model.linear.coeffs"
)

// Usage counter names published in the usage vector.
const (
	CounterGPUSec      = "golem.usage.gpu-sec"
	CounterDurationSec = "golem.usage.duration_sec"
	CounterRequests    = "ai-runtime.requests"
)

type Agreement struct {
	AgreementID  string          `json:"agreementId"`
	Demand       AgreementDemand `json:"demand"`
	Offer        AgreementOffer  `json:"offer"`
	ValidTo      *time.Time      `json:"validTo,omitempty"`
	ApprovedDate *time.Time      `json:"approvedDate,omitempty"`
	State        string          `json:"state"`
	Timestamp    time.Time       `json:"timestamp"`
	AppSessionID string          `json:"appSessionId,omitempty"`
}

type AgreementDemand struct {
	Properties  map[string]any `json:"properties"`
	Constraints string         `json:"constraints"`
	DemandID    string         `json:"demandId"`
	RequestorID string         `json:"requestorId"`
	Timestamp   *time.Time     `json:"timestamp,omitempty"`
}

type AgreementOffer struct {
	Properties  map[string]any `json:"properties"`
	Constraints string         `json:"constraints"`
	OfferID     string         `json:"offerId"`
	ProviderID  string         `json:"providerId"`
	Timestamp   *time.Time     `json:"timestamp,omitempty"`
}

func (a *Agreement) RequestorID() string {
	if a == nil {
		return ""
	}
	return strings.TrimSpace(a.Demand.RequestorID)
}

func (a *Agreement) Terminated() bool {
	return a != nil && a.State == AgreementTerminated
}

// UsageVector returns the counter names the offer prices.
func (o AgreementOffer) UsageVector() ([]string, error) {
	raw, ok := lookupProperty(o.Properties, PropertyUsageVector)
	if !ok {
		return nil, fmt.Errorf("offer property %s missing", PropertyUsageVector)
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("offer property %s is %T, want array", PropertyUsageVector, raw)
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		name, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("offer property %s contains %T", PropertyUsageVector, item)
		}
		names = append(names, name)
	}
	return names, nil
}

// LinearCoeffs returns the pricing coefficients. The final entry is the
// fixed start price.
func (o AgreementOffer) LinearCoeffs() ([]decimal.Decimal, error) {
	raw, ok := lookupProperty(o.Properties, PropertyLinearCoeffs)
	if !ok {
		return nil, fmt.Errorf("offer property %s missing", PropertyLinearCoeffs)
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("offer property %s is %T, want array", PropertyLinearCoeffs, raw)
	}
	coeffs := make([]decimal.Decimal, 0, len(items))
	for _, item := range items {
		d, err := toDecimal(item)
		if err != nil {
			return nil, fmt.Errorf("offer property %s: %w", PropertyLinearCoeffs, err)
		}
		coeffs = append(coeffs, d)
	}
	return coeffs, nil
}

// lookupProperty resolves a dotted key against either the flat property map
// or its nested object form.
func lookupProperty(props map[string]any, key string) (any, bool) {
	if props == nil {
		return nil, false
	}
	if v, ok := props[key]; ok {
		return v, true
	}
	var current any = props
	for _, part := range strings.Split(key, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = m[part]; !ok {
			return nil, false
		}
	}
	return current, true
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch value := v.(type) {
	case float64:
		return decimal.NewFromFloat(value), nil
	case json.Number:
		return decimal.NewFromString(value.String())
	case string:
		return decimal.NewFromString(value)
	case int:
		return decimal.NewFromInt(int64(value)), nil
	case int64:
		return decimal.NewFromInt(value), nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported numeric value %T", v)
	}
}

// AgreementInfo is an entry of the agreement listing.
type AgreementInfo struct {
	ID        string     `json:"id"`
	ValidTo   *time.Time `json:"validTo,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

func (a *AgreementInfo) UnmarshalJSON(data []byte) error {
	var aux struct {
		ID          string     `json:"id"`
		AgreementID string     `json:"agreementId"`
		ValidTo     *time.Time `json:"validTo"`
		Timestamp   time.Time  `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	a.ID = aux.ID
	if a.ID == "" {
		a.ID = aux.AgreementID
	}
	a.ValidTo = aux.ValidTo
	a.Timestamp = aux.Timestamp
	return nil
}

// AgreementEvent types.
const (
	AgreementApprovedEvent   = "AgreementApprovedEvent"
	AgreementRejectedEvent   = "AgreementRejectedEvent"
	AgreementCancelledEvent  = "AgreementCancelledEvent"
	AgreementTerminatedEvent = "AgreementTerminatedEvent"
)

// Terminator names the side that ended an agreement.
const (
	TerminatorRequestor = "Requestor"
	TerminatorProvider  = "Provider"
)

type AgreementEvent struct {
	AgreementID string         `json:"agreementId"`
	EventDate   time.Time      `json:"eventDate"`
	EventType   string         `json:"eventType"`
	Terminator  string         `json:"terminator,omitempty"`
	Reason      map[string]any `json:"reason,omitempty"`
}

// Message returns the human readable termination message, if any.
func (e *AgreementEvent) Message() string {
	return e.reasonField("message")
}

// Code returns the terminating side's reason code.
func (e *AgreementEvent) Code() string {
	switch e.Terminator {
	case TerminatorRequestor:
		return e.reasonField("golem.requestor.code")
	case TerminatorProvider:
		return e.reasonField("golem.provider.code")
	default:
		return ""
	}
}

func (e *AgreementEvent) reasonField(key string) string {
	if e == nil || e.Reason == nil {
		return ""
	}
	v, ok := e.Reason[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Reason is the body of an agreement termination request.
type Reason struct {
	Message string `json:"message"`
	Code    string `json:"golem.provider.code,omitempty"`
}

// InvoiceStatus is the daemon-native invoice status.
type InvoiceStatus string

const (
	InvoiceIssued    InvoiceStatus = "ISSUED"
	InvoiceReceived  InvoiceStatus = "RECEIVED"
	InvoiceAccepted  InvoiceStatus = "ACCEPTED"
	InvoiceRejected  InvoiceStatus = "REJECTED"
	InvoiceFailed    InvoiceStatus = "FAILED"
	InvoiceSettled   InvoiceStatus = "SETTLED"
	InvoiceCancelled InvoiceStatus = "CANCELLED"
)

// InvoiceEventTypes are the lifecycle event names requested from the
// invoice events endpoint.
var InvoiceEventTypes = []InvoiceStatus{
	InvoiceIssued,
	InvoiceReceived,
	InvoiceAccepted,
	InvoiceRejected,
	InvoiceFailed,
	InvoiceSettled,
	InvoiceCancelled,
}

type Invoice struct {
	InvoiceID       string          `json:"invoiceId"`
	IssuerID        string          `json:"issuerId"`
	RecipientID     string          `json:"recipientId"`
	PayeeAddr       string          `json:"payeeAddr"`
	PayerAddr       string          `json:"payerAddr"`
	PaymentPlatform string          `json:"paymentPlatform"`
	Timestamp       time.Time       `json:"timestamp"`
	AgreementID     string          `json:"agreementId"`
	ActivityIDs     []string        `json:"activityIds"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentDueDate  time.Time       `json:"paymentDueDate"`
	Status          InvoiceStatus   `json:"status"`
}

type InvoiceEvent struct {
	InvoiceID string    `json:"invoiceId"`
	EventDate time.Time `json:"eventDate"`
	EventType string    `json:"eventType"`
}

type AgreementPayment struct {
	AgreementID  string          `json:"agreementId"`
	Amount       decimal.Decimal `json:"amount"`
	AllocationID string          `json:"allocationId,omitempty"`
}

type ActivityPayment struct {
	ActivityID   string          `json:"activityId"`
	Amount       decimal.Decimal `json:"amount"`
	AllocationID string          `json:"allocationId,omitempty"`
}

type Payment struct {
	PaymentID         string             `json:"paymentId"`
	PayerID           string             `json:"payerId"`
	PayeeID           string             `json:"payeeId"`
	PayerAddr         string             `json:"payerAddr"`
	PayeeAddr         string             `json:"payeeAddr"`
	PaymentPlatform   string             `json:"paymentPlatform"`
	Amount            decimal.Decimal    `json:"amount"`
	Timestamp         time.Time          `json:"timestamp"`
	AgreementPayments []AgreementPayment `json:"agreementPayments"`
	ActivityPayments  []ActivityPayment  `json:"activityPayments"`
	Details           string             `json:"details,omitempty"`
}

// ForAgreement sums the amounts this payment attributes to agreementID.
// ok is false when the payment does not reference the agreement.
func (p Payment) ForAgreement(agreementID string) (decimal.Decimal, bool) {
	total := decimal.Zero
	found := false
	for _, ap := range p.AgreementPayments {
		if ap.AgreementID != agreementID {
			continue
		}
		total = total.Add(ap.Amount)
		found = true
	}
	return total, found
}

// MeInfo is the identity of the running daemon.
type MeInfo struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}
