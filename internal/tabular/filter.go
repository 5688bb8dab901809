package tabular

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/textnorm"
)

// MatchStrategy records how FilterMunicipality selected rows.
type MatchStrategy string

const (
	MatchNone     MatchStrategy = "none"
	MatchCode     MatchStrategy = "ibge_code"
	MatchName     MatchStrategy = "municipality_name"
	MatchFileHint MatchStrategy = "file_name_hint"
)

// MunicipalityFilter configures which columns identify the target municipality.
type MunicipalityFilter struct {
	Code        string // 7-digit IBGE code
	Name        string
	UF          string
	CodeColumns []string
	NameColumns []string
	UFColumns   []string
	FileName    string
}

var (
	digitsRe = regexp.MustCompile(`\D`)
	yearRe   = regexp.MustCompile(`(?:^|\D)((?:19|20)\d{2})(?:\D|$)`)
)

// FilterMunicipality keeps rows of the target municipality, trying the IBGE
// code columns first, then name columns (constrained by UF when a UF column
// exists), then the file-name hint.
func FilterMunicipality(f *Frame, mf MunicipalityFilter) (*Frame, MatchStrategy) {
	if f == nil {
		return &Frame{}, MatchNone
	}
	codeCols := f.Present(normalizeAll(mf.CodeColumns)...)
	nameCols := f.Present(normalizeAll(mf.NameColumns)...)

	if len(codeCols) > 0 && mf.Code != "" {
		short := mf.Code
		if len(short) == 7 {
			short = short[:6]
		}
		out := f.Filter(func(r Row) bool {
			for _, c := range codeCols {
				v := CodeDigits(r[c])
				if v == mf.Code || v == short {
					return true
				}
			}
			return false
		})
		if out.Len() > 0 {
			return out, MatchCode
		}
	}

	if len(nameCols) > 0 && mf.Name != "" {
		ufCols := f.Present(normalizeAll(mf.UFColumns)...)
		target := textnorm.Name(mf.Name)
		uf := strings.ToUpper(strings.TrimSpace(mf.UF))
		out := f.Filter(func(r Row) bool {
			if uf != "" && len(ufCols) > 0 {
				ok := false
				for _, c := range ufCols {
					if strings.EqualFold(strings.TrimSpace(r[c]), uf) {
						ok = true
						break
					}
				}
				if !ok {
					return false
				}
			}
			for _, c := range nameCols {
				if nameMatches(r[c], target, uf) {
					return true
				}
			}
			return false
		})
		if out.Len() > 0 {
			return out, MatchName
		}
	}

	if len(codeCols) == 0 && len(nameCols) == 0 && fileHintMatches(mf) {
		return f, MatchFileHint
	}
	return &Frame{Columns: f.Columns}, MatchNone
}

// CodeDigits strips formatting from a code cell ("3121605.0" -> "3121605").
func CodeDigits(v string) string {
	v = strings.TrimSpace(v)
	if i := strings.Index(v, "."); i > 0 && strings.Trim(v[i+1:], "0") == "" {
		v = v[:i]
	}
	return digitsRe.ReplaceAllString(v, "")
}

// nameMatches accepts "Diamantina", "DIAMANTINA - MG", "Diamantina (MG)" and "Diamantina/MG".
func nameMatches(value, target, uf string) bool {
	v := textnorm.Name(value)
	if v == target {
		return true
	}
	if uf == "" {
		return false
	}
	u := strings.ToLower(uf)
	for _, form := range []string{target + " - " + u, target + " (" + u + ")", target + "/" + u, target + " " + u, u + " - " + target} {
		if v == form {
			return true
		}
	}
	return false
}

func fileHintMatches(mf MunicipalityFilter) bool {
	if mf.FileName == "" {
		return false
	}
	name := textnorm.Column(mf.FileName)
	if mf.Code != "" && strings.Contains(name, mf.Code) {
		return true
	}
	target := textnorm.Column(mf.Name)
	return target != "" && strings.Contains(name, target)
}

// FilterYear keeps rows whose year column matches year. When no column is
// present the frame is returned unchanged; when the filter would drop every
// row it is ignored and a warning is returned.
func FilterYear(f *Frame, columns []string, year string) (*Frame, string) {
	if f == nil || year == "" {
		return f, ""
	}
	col := f.FirstPresent(normalizeAll(columns)...)
	if col == "" {
		return f, ""
	}
	out := f.Filter(func(r Row) bool { return ExtractYear(r[col]) == year })
	if out.Len() == 0 && f.Len() > 0 {
		return f, fmt.Sprintf("year filter on %q matched no rows for %s; filter ignored", col, year)
	}
	return out, ""
}

// ExtractYear returns the first 4-digit year in s, or "".
func ExtractYear(s string) string {
	m := yearRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

func normalizeAll(cols []string) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		out = append(out, textnorm.Column(c))
	}
	return out
}
