// Package dates resolves the calendar formats found on health reports.
package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/health-report-parser/internal/common"
	"github.com/joseph-ayodele/health-report-parser/internal/entity"
)

// ROCOffset converts a Republic of China era year to the Gregorian year.
const ROCOffset = 1911

// maxEraYear bounds what is read as an era year; larger 3-digit numbers are noise.
const maxEraYear = 199

type layout struct {
	name string
	re   *regexp.Regexp
	ymd  func(m []string) (y, mo, d int, ok bool)
}

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

const monthNames = `(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?`

// Priority order: era year, four-digit year with 年月日, numeric YYYY/MM/DD,
// English month name.
var layouts = []layout{
	{
		name: "era",
		re:   regexp.MustCompile(`(?:^|\D)(\d{2,3})\s*年\s*(\d{1,2})\s*月\s*(\d{1,2})\s*日`),
		ymd: func(m []string) (int, int, int, bool) {
			y := atoi(m[1])
			if y < 1 || y > maxEraYear {
				return 0, 0, 0, false
			}
			return y + ROCOffset, atoi(m[2]), atoi(m[3]), true
		},
	},
	{
		name: "cjk",
		re:   regexp.MustCompile(`((?:19|20)\d{2})\s*年\s*(\d{1,2})\s*月\s*(\d{1,2})\s*日`),
		ymd:  func(m []string) (int, int, int, bool) { return atoi(m[1]), atoi(m[2]), atoi(m[3]), true },
	},
	{
		name: "numeric",
		re:   regexp.MustCompile(`((?:19|20)\d{2})[/\-](\d{1,2})[/\-](\d{1,2})(?:\D|$)`),
		ymd:  func(m []string) (int, int, int, bool) { return atoi(m[1]), atoi(m[2]), atoi(m[3]), true },
	},
	{
		name: "english",
		re:   regexp.MustCompile(`(?i)\b` + monthNames + `\s+(\d{1,2}),?\s+((?:19|20)\d{2})\b`),
		ymd: func(m []string) (int, int, int, bool) {
			return atoi(m[3]), int(months[strings.ToLower(m[1])]), atoi(m[2]), true
		},
	},
	{
		name: "english-dmy",
		re:   regexp.MustCompile(`(?i)\b(\d{1,2})\s+` + monthNames + `,?\s+((?:19|20)\d{2})\b`),
		ymd: func(m []string) (int, int, int, bool) {
			return atoi(m[3]), int(months[strings.ToLower(m[2])]), atoi(m[1]), true
		},
	},
}

// Resolve returns the first valid calendar date found in span. Layouts are
// tried in priority order; within one layout, occurrences are tried left to
// right and an impossible date (e.g. 2023/02/30) falls through. When nothing
// resolves, the error is a DATE_PARSE_ERROR AppError.
func Resolve(span string) (entity.Date, error) {
	for _, l := range layouts {
		for _, m := range l.re.FindAllStringSubmatch(span, -1) {
			y, mo, d, ok := l.ymd(m)
			if !ok {
				continue
			}
			if date, ok := valid(y, mo, d); ok {
				return date, nil
			}
		}
	}
	return entity.Date{}, common.NewAppError(common.CodeDateParseError,
		fmt.Sprintf("no recognizable date in %q", preview(span, 40)), nil)
}

// valid enforces standard day-in-month bounds.
func valid(y, mo, d int) (entity.Date, bool) {
	if mo < 1 || mo > 12 || d < 1 {
		return entity.Date{}, false
	}
	date := entity.NewDate(y, time.Month(mo), d)
	if date.Day() != d || int(date.Month()) != mo {
		return entity.Date{}, false
	}
	return date, true
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
