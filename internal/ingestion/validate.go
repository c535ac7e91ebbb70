package ingestion

import (
	"fmt"
	"regexp"
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Validate checks a parsed file and returns every problem found. An empty
// result means the batch is ready for reconciliation; any error aborts the
// whole batch (no partial acceptance). Line numbers are 1-indexed counting
// the header line.
func Validate(pf ParsedFile) []string {
	errs := []string{}

	for _, col := range []string{ColumnTenantID, ColumnKPIDate} {
		if !containsHeader(pf.Headers, col) {
			errs = append(errs, fmt.Sprintf("missing required column: %s", col))
		}
	}
	// Row rules are meaningless without the required columns.
	if len(errs) > 0 {
		return errs
	}

	for idx, row := range pf.Rows {
		lineNum := idx + 2
		if row.TenantID == "" {
			errs = append(errs, fmt.Sprintf("line %d: missing tenant_id", lineNum))
		}
		if row.KPIDate == "" {
			errs = append(errs, fmt.Sprintf("line %d: missing kpi_date", lineNum))
		} else if !datePattern.MatchString(row.KPIDate) {
			errs = append(errs, fmt.Sprintf("line %d: invalid date format %q, expected YYYY-MM-DD", lineNum, row.KPIDate))
		}
	}

	// Facts are keyed per tenant and one upload targets one tenant, so a
	// mixed file is a data-entry mistake, not something to split silently.
	if len(pf.Rows) > 0 {
		batchTenant := pf.Rows[0].TenantID
		reported := map[string]bool{}
		for idx, row := range pf.Rows {
			if row.TenantID == "" || row.TenantID == batchTenant || reported[row.TenantID] {
				continue
			}
			reported[row.TenantID] = true
			errs = append(errs, fmt.Sprintf("line %d: tenant %q does not match batch tenant %q, single-tenant files only", idx+2, row.TenantID, batchTenant))
		}
	}

	dates := map[string]bool{}
	for _, row := range pf.Rows {
		dates[row.KPIDate] = true
	}
	if len(dates) < len(pf.Rows) {
		errs = append(errs, "integrity failure: multiple entries detected for the same date")
	}

	return errs
}

// TargetTenant is the tenant the whole batch is ingested under. Only valid
// after Validate returned no errors.
func TargetTenant(pf ParsedFile) string {
	if len(pf.Rows) == 0 {
		return ""
	}
	return pf.Rows[0].TenantID
}

func containsHeader(headers []string, name string) bool {
	for _, h := range headers {
		if h == name {
			return true
		}
	}
	return false
}
