package sqlagent

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/invoiceflow/assistant/internal/agent/model"
	logx "github.com/invoiceflow/assistant/pkg/logger"
)

// UnsafeStatementError is raised when a candidate statement matches the
// deny-list. It is fatal for the turn's SQL path and must never be
// downgraded into a soft correction.
type UnsafeStatementError struct {
	Pattern string
}

func (e *UnsafeStatementError) Error() string {
	return fmt.Sprintf("unsafe SQL pattern detected: %s", e.Pattern)
}

// Result is the outcome of a successful sanitization pass.
type Result struct {
	SQL           string
	SecurityLevel model.SecurityLevel
}

// statement extraction, grouped by how explicit the completion output is
var (
	fencedSQLRe = regexp.MustCompile("(?is)```sql\\s*(.*?)\\s*```")
	fencedDMLRe = regexp.MustCompile("(?is)```\\s*((?:SELECT|INSERT|UPDATE|DELETE|WITH)\\b.*?)```")

	bareStatementRes = []*regexp.Regexp{
		regexp.MustCompile(`(?is)(SELECT\s+.*?)(;|\z)`),
		regexp.MustCompile(`(?is)(INSERT\s+.*?)(;|\z)`),
		regexp.MustCompile(`(?is)(UPDATE\s+.*?)(;|\z)`),
		regexp.MustCompile(`(?is)(DELETE\s+.*?)(;|\z)`),
		regexp.MustCompile(`(?is)(WITH\s+.*?)(;|\z)`),
	}
)

var (
	lineCommentRe  = regexp.MustCompile(`--[^\n]*`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
)

// deny-list: destructive or privilege-changing verbs are hard failures
var denyPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"DROP", regexp.MustCompile(`(?i)\bDROP\b`)},
	{"TRUNCATE", regexp.MustCompile(`(?i)\bTRUNCATE\b`)},
	{"ALTER", regexp.MustCompile(`(?i)\bALTER\b`)},
	{"GRANT", regexp.MustCompile(`(?i)\bGRANT\b`)},
	{"REVOKE", regexp.MustCompile(`(?i)\bREVOKE\b`)},
	{"EXEC", regexp.MustCompile(`(?i)\bEXEC\b`)},
}

var deleteRe = regexp.MustCompile(`(?i)\bDELETE\b`)

// dialect rewrites
var (
	roundAvgRe = regexp.MustCompile(`(?i)ROUND\s*\(\s*AVG\s*\(([^)]+)\)\s*,\s*(\d+)\s*\)`)
	roundRe    = regexp.MustCompile(`(?i)ROUND\s*\(\s*([^,()]+?)\s*,\s*(\d+)\s*\)`)
	toVectorRe = regexp.MustCompile(`(?i)to_vector\s*\(\s*:(\w+)\s*\)`)
)

// tenant-equality surface forms: unqualified column, table-qualified,
// alias-qualified, or wrapped in an explicit cast
var tenantFilterRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\buser_id\s*=\s*:user_id\b`),
	regexp.MustCompile(`(?i)\buser_id\s*=\s*['"]?[\w-]+['"]?`),
	regexp.MustCompile(`(?i)\buser_id\s*=\s*CAST\s*\(`),
	regexp.MustCompile(`(?i)\busers\.id\s*=\s*['"]?[\w-]+['"]?`),
	regexp.MustCompile(`(?i)\bu\.id\s*=\s*['"]?[\w-]+['"]?`),
}

var (
	whereRe          = regexp.MustCompile(`(?i)\bWHERE\b`)
	fromRe           = regexp.MustCompile(`(?i)\bFROM\b`)
	selectRe         = regexp.MustCompile(`(?i)\bSELECT\b`)
	trailingClauseRe = regexp.MustCompile(`(?i)\b(GROUP\s+BY|ORDER\s+BY|LIMIT)\b`)
)

// TenantFilter is the parameterized equality conjunct injected when a
// statement lacks isolation. The executor binds :user_id at run time.
const TenantFilter = "user_id = :user_id"

// Sanitizer turns a raw candidate SQL string into a safe, tenant-scoped
// statement, or rejects it. All methods are side-effect-free and safe
// for concurrent use.
type Sanitizer struct {
	lookupTables []string
	tenantTables []string
}

// NewSanitizer builds a sanitizer with the invoice-schema table sets:
// lookup tables may be queried without a tenant filter, tenant tables
// never may.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		lookupTables: []string{"categories", "statuses", "settings"},
		tenantTables: []string{"invoices", "users", "clients", "products", "items", "conversations", "messages", "media"},
	}
}

// ExtractStatement isolates a candidate SQL statement from a full
// completion-service response. Preference order: a fenced block tagged
// as SQL, an untagged fenced block starting with a DML/DQL keyword, a
// bare keyword-to-terminator match, and finally the trimmed raw text.
// The last case is best-effort; downstream confidence scoring penalises
// non-SQL output.
func (s *Sanitizer) ExtractStatement(raw string) string {
	if m := fencedSQLRe.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := fencedDMLRe.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	for _, re := range bareStatementRes {
		if m := re.FindStringSubmatch(raw); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	logx.Warn().Msg("could not extract SQL from completion response, returning trimmed text")
	return strings.TrimSpace(raw)
}

// Sanitize runs the full pipeline on an already-extracted candidate:
// comment stripping, statement isolation, deny-list rejection, dialect
// rewrites, and tenant-isolation enforcement.
func (s *Sanitizer) Sanitize(candidate string, tenantID string) (Result, error) {
	cleaned := stripComments(candidate)
	cleaned = isolateStatement(cleaned)

	if cleaned == "" {
		return Result{SQL: "", SecurityLevel: model.RequiresVerification}, nil
	}

	if err := checkDenyList(cleaned); err != nil {
		logx.Error().Str("tenant_id", tenantID).Err(err).Msg("rejected unsafe SQL statement")
		return Result{}, err
	}

	cleaned = s.applyDialectRewrites(cleaned)

	return s.enforceTenantIsolation(cleaned, tenantID), nil
}

func stripComments(sql string) string {
	out := lineCommentRe.ReplaceAllString(sql, " ")
	out = blockCommentRe.ReplaceAllString(out, " ")
	out = whitespaceRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// isolateStatement keeps at most one top-level statement. A semicolon
// is an explicit separator; otherwise a left-to-right scan tracks
// parenthesis depth and treats a SELECT keyword at depth zero, after
// content has already accumulated, as the start of a smuggled second
// statement. The depth heuristic is best-effort surface syntax, not a
// parser; it can mis-split exotic but legitimate SQL.
func isolateStatement(sql string) string {
	sql = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sql), ";"))
	if i := strings.Index(sql, ";"); i >= 0 {
		logx.Warn().Msg("SQL contains multiple statements, keeping only the first")
		return strings.TrimSpace(sql[:i])
	}
	if strings.Count(strings.ToUpper(sql), "SELECT") <= 1 {
		return sql
	}

	const kw = "SELECT"
	depth := 0
	for i := 0; i < len(sql); i++ {
		switch sql[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
		end := i + 1
		if depth != 0 || end < len(kw) {
			continue
		}
		head := strings.TrimSpace(sql[:end])
		if len(head) <= len(kw) {
			continue
		}
		if strings.EqualFold(head[len(head)-len(kw):], kw) {
			logx.Warn().Msg("detected second top-level SELECT, truncating statement")
			return strings.TrimSpace(head[:len(head)-len(kw)])
		}
	}
	return sql
}

func checkDenyList(sql string) error {
	for _, p := range denyPatterns {
		if p.re.MatchString(sql) {
			return &UnsafeStatementError{Pattern: p.name}
		}
	}
	// DELETE is only tolerated as DELETE FROM; a bare DELETE is a
	// privilege probe or a truncation attempt.
	for _, loc := range deleteRe.FindAllStringIndex(sql, -1) {
		rest := strings.TrimLeft(sql[loc[1]:], " \t\r\n")
		if !hasKeywordPrefix(rest, "FROM") {
			return &UnsafeStatementError{Pattern: "DELETE"}
		}
	}
	return nil
}

func hasKeywordPrefix(s, kw string) bool {
	if len(s) < len(kw) || !strings.EqualFold(s[:len(kw)], kw) {
		return false
	}
	if len(s) == len(kw) {
		return true
	}
	c := s[len(kw)]
	return !(c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z')
}

// applyDialectRewrites fixes PostgreSQL-isms the completion service
// tends to get wrong. Each rewrite is idempotent and order-independent.
func (s *Sanitizer) applyDialectRewrites(sql string) string {
	out := roundAvgRe.ReplaceAllString(sql, "ROUND(CAST(AVG($1) AS numeric), $2)")
	out = roundRe.ReplaceAllStringFunc(out, func(m string) string {
		sub := roundRe.FindStringSubmatch(m)
		expr := strings.TrimSpace(sub[1])
		if strings.HasPrefix(strings.ToUpper(expr), "CAST") {
			return m
		}
		return fmt.Sprintf("ROUND(CAST(%s AS numeric), %s)", expr, sub[2])
	})

	// to_vector() does not exist in PostgreSQL; the pgvector literal
	// form with an explicit cast does.
	out = toVectorRe.ReplaceAllString(out, `'[:$1]'::vector`)
	out = castVectorColumn(out, "description_embedding")
	if containsWord(out, "invoice_embeddings") {
		out = castVectorColumn(out, "embedding")
	}
	return out
}

// castVectorColumn appends ::vector to each bare occurrence of an
// embedding column that is not already cast.
func castVectorColumn(sql, col string) string {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(col) + `\b`)
	var b strings.Builder
	last := 0
	for _, loc := range re.FindAllStringIndex(sql, -1) {
		b.WriteString(sql[last:loc[1]])
		if !strings.HasPrefix(sql[loc[1]:], "::") {
			b.WriteString("::vector")
		}
		last = loc[1]
	}
	b.WriteString(sql[last:])
	return b.String()
}

func containsWord(sql, word string) bool {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
	return re.MatchString(sql)
}

// enforceTenantIsolation guarantees the statement cannot read another
// tenant's rows: an existing equality filter passes through, queries
// over lookup tables alone need none, and everything else gets a
// parameterized filter injected into (or as) the WHERE clause.
func (s *Sanitizer) enforceTenantIsolation(sql string, tenantID string) Result {
	if hasTenantFilter(sql) {
		return Result{SQL: sql, SecurityLevel: model.Secure}
	}
	if s.touchesOnlyLookupTables(sql) {
		logx.Debug().Str("tenant_id", tenantID).Msg("statement touches only lookup tables, no tenant filter required")
		return Result{SQL: sql, SecurityLevel: model.Secure}
	}
	if !selectRe.MatchString(sql) || !fromRe.MatchString(sql) {
		logx.Warn().Str("tenant_id", tenantID).Msg("statement has no recognizable SELECT/FROM shape, isolation not enforced")
		return Result{SQL: sql, SecurityLevel: model.RequiresVerification}
	}

	logx.Warn().Str("tenant_id", tenantID).Msg("generated SQL lacks tenant filtering, injecting filter")
	return Result{SQL: injectTenantFilter(sql), SecurityLevel: model.SecureAfterModification}
}

func hasTenantFilter(sql string) bool {
	for _, re := range tenantFilterRes {
		if re.MatchString(sql) {
			return true
		}
	}
	return false
}

func (s *Sanitizer) touchesOnlyLookupTables(sql string) bool {
	anyLookup := false
	for _, t := range s.lookupTables {
		if containsWord(sql, t) {
			anyLookup = true
			break
		}
	}
	if !anyLookup {
		return false
	}
	for _, t := range s.tenantTables {
		if containsWord(sql, t) {
			return false
		}
	}
	return true
}

// injectTenantFilter conjoins the tenant filter into an existing WHERE
// clause, or synthesizes one after FROM, in both cases ahead of any
// trailing GROUP BY / ORDER BY / LIMIT clause.
func injectTenantFilter(sql string) string {
	if loc := whereRe.FindStringIndex(sql); loc != nil {
		return insertBeforeTrailingClause(sql, loc[1], " AND "+TenantFilter)
	}
	if loc := fromRe.FindStringIndex(sql); loc != nil {
		return insertBeforeTrailingClause(sql, loc[1], " WHERE "+TenantFilter)
	}
	return sql
}

func insertBeforeTrailingClause(sql string, after int, filter string) string {
	tail := sql[after:]
	if loc := trailingClauseRe.FindStringIndex(tail); loc != nil {
		at := after + loc[0]
		return strings.TrimSpace(sql[:at]) + filter + " " + sql[at:]
	}
	return strings.TrimSpace(sql) + filter
}
