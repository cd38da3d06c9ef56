package signal

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/models"
)

// DefaultWindowSeconds 调用方未给出窗口时使用。
const DefaultWindowSeconds = 60

// Validator 按「先判过期、再比对码」的顺序校验提交的信号。拒绝是结果而不是错误。
type Validator struct {
	deriver *Deriver
}

func NewValidator(d *Deriver) *Validator {
	return &Validator{deriver: d}
}

// Validate 以提交的 issuedAt 原串重新派生并比较。windowSeconds <= 0 时按 DefaultWindowSeconds。
func (v *Validator) Validate(transactionID, submittedCode, issuedAt string, windowSeconds int, now time.Time) *models.ValidationOutcome {
	if windowSeconds <= 0 {
		windowSeconds = DefaultWindowSeconds
	}
	issued, err := ParseTimestamp(issuedAt)
	if err != nil {
		return errorOutcome(err)
	}
	elapsed := now.Sub(issued).Seconds()
	if elapsed > float64(windowSeconds) {
		return &models.ValidationOutcome{
			Kind:           models.OutcomeExpired,
			Reason:         fmt.Sprintf("Signal expired. Elapsed: %.1fs / %ds", elapsed, windowSeconds),
			ElapsedSeconds: elapsed,
		}
	}
	expected, err := v.deriver.Derive(transactionID, issuedAt)
	if err != nil {
		return errorOutcome(err)
	}
	got := strings.ToUpper(strings.TrimSpace(submittedCode))
	if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
		return &models.ValidationOutcome{
			Kind:           models.OutcomeMismatch,
			Reason:         "Signal code mismatch. Invalid signature.",
			ElapsedSeconds: elapsed,
		}
	}
	return &models.ValidationOutcome{
		Approved:       true,
		Kind:           models.OutcomeApproved,
		Reason:         fmt.Sprintf("Valid signal. Verified in %.1fs", elapsed),
		ElapsedSeconds: elapsed,
	}
}

func errorOutcome(err error) *models.ValidationOutcome {
	return &models.ValidationOutcome{
		Kind:   models.OutcomeError,
		Reason: fmt.Sprintf("Validation error: %v", err),
	}
}
