package jobs

import (
	"fmt"

	"golemfacade/internal/yagna"
)

// Status is the externally visible state of a job. It is derived from
// activity and agreement state and never set directly by callers.
type Status string

const (
	StatusIdle             Status = "idle"
	StatusDownloadingModel Status = "downloading_model"
	StatusComputing        Status = "computing"
	StatusFinished         Status = "finished"
	StatusInterrupted      Status = "interrupted"
)

// Terminal reports whether the job can no longer change through activity updates.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusInterrupted
}

// PaymentStatus is the simplified invoice lifecycle.
type PaymentStatus string

const (
	PaymentNone        PaymentStatus = ""
	PaymentInvoiceSent PaymentStatus = "invoice_sent"
	PaymentAccepted    PaymentStatus = "accepted"
	PaymentSettled     PaymentStatus = "settled"
	PaymentRejected    PaymentStatus = "rejected"
)

// PaymentStatusFromInvoice maps a daemon invoice status onto PaymentStatus.
func PaymentStatusFromInvoice(status yagna.InvoiceStatus) (PaymentStatus, error) {
	switch status {
	case yagna.InvoiceIssued, yagna.InvoiceReceived:
		return PaymentInvoiceSent, nil
	case yagna.InvoiceAccepted:
		return PaymentAccepted, nil
	case yagna.InvoiceRejected, yagna.InvoiceFailed, yagna.InvoiceCancelled:
		return PaymentRejected, nil
	case yagna.InvoiceSettled:
		return PaymentSettled, nil
	default:
		return PaymentNone, fmt.Errorf("unknown invoice status %q", status)
	}
}

// ResolveStatus maps an activity state pair onto a job status. ok is false
// for Terminated: activity termination alone does not end a job, the
// agreement state decides.
func ResolveStatus(pair yagna.StatePair) (status Status, ok bool) {
	switch pair.Current {
	case yagna.StateNew:
		return StatusIdle, true
	case yagna.StateInitialized:
		if pair.Next != nil && *pair.Next == yagna.StateDeployed {
			return StatusDownloadingModel, true
		}
		return StatusIdle, true
	case yagna.StateDeployed, yagna.StateReady:
		return StatusComputing, true
	case yagna.StateUnresponsive:
		// The requestor may still open another activity under the same agreement.
		return StatusIdle, true
	default:
		return "", false
	}
}

var interruptedCodes = map[string]struct{}{
	"InitializationError":  {},
	"NoActivity":           {},
	"DebitNotesDeadline":   {},
	"DebitNoteRejected":    {},
	"DebitNoteCancelled":   {},
	"DebitNoteNotPaid":     {},
	"RequestorUnreachable": {},
	"Shutdown":             {},
	"Interrupted":          {},
	"HealthCheckFailed":    {},
	"ConnectionTimedOut":   {},
	"ProviderUnreachable":  {},
}

// ResolveTerminationReason maps an agreement termination code onto the final
// job status. Unknown or empty codes count as a normal finish.
func ResolveTerminationReason(code string) Status {
	if _, ok := interruptedCodes[code]; ok {
		return StatusInterrupted
	}
	return StatusFinished
}
