package jobs

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"golemfacade/internal/yagna"
)

// Payment is a confirmed partial payment attributed to one agreement.
type Payment struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
	PayerAddr string          `json:"payer_addr,omitempty"`
	PayeeAddr string          `json:"payee_addr,omitempty"`
	Platform  string          `json:"platform,omitempty"`
}

// PaymentForAgreement extracts the part of p that pays agreementID. ok is
// false when p does not reference the agreement.
func PaymentForAgreement(p yagna.Payment, agreementID string) (Payment, bool) {
	amount, ok := p.ForAgreement(agreementID)
	if !ok {
		return Payment{}, false
	}
	return Payment{
		ID:        p.PaymentID,
		Amount:    amount,
		Timestamp: p.Timestamp,
		PayerAddr: p.PayerAddr,
		PayeeAddr: p.PayeeAddr,
		Platform:  p.PaymentPlatform,
	}, true
}

// Job aggregates everything known about one agreement. Values handed out by
// the Registry are snapshots; mutate through Registry methods only.
type Job struct {
	ID              string        `json:"id"`
	RequestorID     string        `json:"requestor_id"`
	Price           Price         `json:"price"`
	Status          Status        `json:"status"`
	PaymentStatus   PaymentStatus `json:"payment_status,omitempty"`
	Usage           Usage         `json:"usage"`
	Payments        []Payment     `json:"payments,omitempty"`
	Timestamp       time.Time     `json:"timestamp"`
	UpdatedAt       time.Time     `json:"updated_at"`
	Terminated      bool          `json:"terminated"`
	TerminationCode string        `json:"termination_code,omitempty"`
}

// Active reports whether the job can still make progress.
func (j *Job) Active() bool {
	return !j.Status.Terminal()
}

// CurrentReward is the amount earned so far under the agreement price.
func (j *Job) CurrentReward() decimal.Decimal {
	return j.Usage.Reward(j.Price)
}

// ConfirmedAmount sums all confirmed partial payments.
func (j *Job) ConfirmedAmount() decimal.Decimal {
	total := decimal.Zero
	for _, p := range j.Payments {
		total = total.Add(p.Amount)
	}
	return total
}

// UpdateActivityState resolves the job status from an activity state pair
// and reports whether it changed. Jobs whose agreement has terminated no
// longer follow activity state.
func (j *Job) UpdateActivityState(pair yagna.StatePair) bool {
	if j.Terminated {
		return false
	}
	status, ok := ResolveStatus(pair)
	if !ok || status == j.Status {
		return false
	}
	j.Status = status
	return true
}

// AddPartialPayment appends p unless a payment with the same id is already
// recorded, then re-evaluates the payment status.
func (j *Job) AddPartialPayment(p Payment) bool {
	if slices.ContainsFunc(j.Payments, func(existing Payment) bool { return existing.ID == p.ID }) {
		return false
	}
	j.Payments = append(j.Payments, p)
	j.PaymentStatus = j.EvaluatePaymentStatus(j.PaymentStatus)
	return true
}

// EvaluatePaymentStatus upgrades an Accepted suggestion to Settled once the
// confirmed partial payments cover the whole reward. The daemon does not
// always move such invoices to SETTLED by itself.
func (j *Job) EvaluatePaymentStatus(suggested PaymentStatus) PaymentStatus {
	if suggested == PaymentAccepted && j.ConfirmedAmount().Equal(j.CurrentReward()) {
		return PaymentSettled
	}
	return suggested
}

func (j *Job) terminate(code string) bool {
	status := ResolveTerminationReason(code)
	changed := !j.Terminated || j.Status != status || j.TerminationCode != code
	j.Terminated = true
	j.TerminationCode = code
	j.Status = status
	return changed
}

func (j *Job) clone() Job {
	out := *j
	out.Payments = slices.Clone(j.Payments)
	return out
}
