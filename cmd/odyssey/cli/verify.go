package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// IntegrityChecker runs the ledger integrity checks for one tenant.
type IntegrityChecker interface {
	RunGLIntegrityCheck(ctx context.Context, tenantID int64) error
}

// VerifyCLI checks ledger integrity from the command line.
type VerifyCLI struct {
	checker IntegrityChecker
}

// NewVerifyCLI constructs the helper.
func NewVerifyCLI(checker IntegrityChecker) *VerifyCLI {
	return &VerifyCLI{checker: checker}
}

// VerifyOptions defines available flags for the verify command.
type VerifyOptions struct {
	TenantIDs  []int64
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// Violation is one failed check.
type Violation struct {
	TenantID int64  `json:"tenant_id"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// VerifySummary describes the JSON response for verify.
type VerifySummary struct {
	OK         bool        `json:"ok"`
	Tenants    []int64     `json:"tenants"`
	Violations []Violation `json:"violations"`
}

// ExitViolations is returned when any check failed.
const ExitViolations = 10

// VerifyCommand runs the checks for every tenant and prints the outcome.
func (c *VerifyCLI) VerifyCommand(ctx context.Context, opts VerifyOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if len(opts.TenantIDs) == 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "verify: --tenant is required")
		return 1
	}
	summary := VerifySummary{Tenants: opts.TenantIDs, Violations: []Violation{}}
	for _, tenantID := range opts.TenantIDs {
		err := c.checker.RunGLIntegrityCheck(ctx, tenantID)
		if err == nil {
			continue
		}
		found := violations(tenantID, err)
		if len(found) == 0 {
			_, _ = fmt.Fprintf(opts.Stderr, "verify: tenant %d: %v\n", tenantID, err)
			return 1
		}
		summary.Violations = append(summary.Violations, found...)
	}
	sort.SliceStable(summary.Violations, func(i, j int) bool {
		a, b := summary.Violations[i], summary.Violations[j]
		if a.TenantID == b.TenantID {
			return a.Code < b.Code
		}
		return a.TenantID < b.TenantID
	})
	summary.OK = len(summary.Violations) == 0

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "verify: encode json: %v\n", err)
			return 1
		}
	} else {
		renderVerifyHuman(opts.Stdout, summary)
	}
	if !summary.OK {
		return ExitViolations
	}
	return 0
}

// violations flattens joined integrity errors. Anything else is not a
// violation and yields nil.
func violations(tenantID int64, err error) []Violation {
	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}
	out := make([]Violation, 0, len(errs))
	for _, e := range errs {
		var domainErr *shared.Error
		if !errors.As(e, &domainErr) || domainErr.Kind != shared.KindIntegrity {
			return nil
		}
		out = append(out, Violation{TenantID: tenantID, Code: string(domainErr.Code), Message: domainErr.Message})
	}
	return out
}

func renderVerifyHuman(out io.Writer, summary VerifySummary) {
	if summary.OK {
		_, _ = fmt.Fprintf(out, "ledger verified for %d tenant(s)\n", len(summary.Tenants))
		return
	}
	_, _ = fmt.Fprintf(out, "%d violation(s):\n", len(summary.Violations))
	for _, v := range summary.Violations {
		_, _ = fmt.Fprintf(out, "  tenant %d  %-24s %s\n", v.TenantID, v.Code, v.Message)
	}
}
