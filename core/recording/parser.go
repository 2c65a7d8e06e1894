package recording

import (
	"regexp"
	"strings"
	"time"

	"CallBox/model"
)

// MatchKind tells which rule produced a ParsedName.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchVendor
	MatchGeneric
)

// ParsedName is the metadata recovered from a recording's file name.
type ParsedName struct {
	PhoneNumber string
	Time        time.Time // zero when no timestamp was found
	Direction   model.Direction
	Kind        MatchKind
}

// Samsung call recorder: Call_20240131_142501_INCOMING_15551234567.m4a
var vendorPattern = regexp.MustCompile(`(?i)^Call_(\d{8})_(\d{6})_(INCOMING|OUTGOING)_(\d+)\.m4a$`)

// Generic fallbacks, tried in order. The first capturing groups are always
// year, month, day, and optionally hour, minute, second.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d{4})(\d{2})(\d{2})[_\- ](\d{2})(\d{2})(\d{2})`),
	regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})[ _T](\d{2})[-:.](\d{2})[-:.](\d{2})`),
	regexp.MustCompile(`(\d{4})(\d{2})(\d{2})(\d{2})(\d{2})(\d{2})`),
	regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`),
	regexp.MustCompile(`(\d{4})(\d{2})(\d{2})`),
}

// A leading "+" is not kept so generic and vendor parses agree.
var phoneRun = regexp.MustCompile(`\d{10,}`)

// ParseFilename extracts phone number, timestamp and direction from a file
// name. Timestamps without zone information are read in loc.
// ok is false when neither a phone number nor a timestamp was found.
func ParseFilename(name string, loc *time.Location) (ParsedName, bool) {
	if loc == nil {
		loc = time.Local
	}
	if p, ok := parseVendor(name, loc); ok {
		return p, true
	}
	return parseGeneric(name, loc)
}

func parseVendor(name string, loc *time.Location) (ParsedName, bool) {
	m := vendorPattern.FindStringSubmatch(name)
	if m == nil {
		return ParsedName{}, false
	}
	ts, err := time.ParseInLocation("20060102150405", m[1]+m[2], loc)
	if err != nil {
		return ParsedName{}, false
	}
	return ParsedName{
		PhoneNumber: m[4],
		Time:        ts,
		Direction:   parseDirection(m[3]),
		Kind:        MatchVendor,
	}, true
}

func parseGeneric(name string, loc *time.Location) (ParsedName, bool) {
	base := strings.TrimSuffix(name, extOf(name))
	out := ParsedName{Direction: guessDirection(base)}

	// The date is located first so that its digits are not taken as a phone number.
	rest := base
found:
	for _, re := range datePatterns {
		// 逐字节重试：非重叠匹配会让电话号码尾部吞掉真正的日期
		for off := 0; off < len(rest); {
			idx := re.FindStringSubmatchIndex(rest[off:])
			if idx == nil {
				break
			}
			for i := range idx {
				if idx[i] >= 0 {
					idx[i] += off
				}
			}
			if !digitBounded(rest, idx[0], idx[1]) {
				off = idx[0] + 1
				continue
			}
			parts := make([]string, 0, 6)
			for g := 1; g*2+1 < len(idx); g++ {
				if idx[g*2] < 0 {
					parts = append(parts, "")
					continue
				}
				parts = append(parts, rest[idx[g*2]:idx[g*2+1]])
			}
			if ts, ok := buildTime(parts, loc); ok {
				out.Time = ts
				rest = rest[:idx[0]] + " " + rest[idx[1]:]
				break found
			}
			off = idx[0] + 1
		}
	}

	if phone := phoneRun.FindString(rest); phone != "" {
		out.PhoneNumber = phone
	}

	if out.PhoneNumber == "" && out.Time.IsZero() {
		return ParsedName{Direction: model.DirectionUnknown}, false
	}
	out.Kind = MatchGeneric
	return out, true
}

func buildTime(parts []string, loc *time.Location) (time.Time, bool) {
	layout := "20060102"
	value := parts[0] + parts[1] + parts[2]
	if len(parts) >= 6 && parts[3] != "" {
		layout += "150405"
		value += parts[3] + parts[4] + parts[5]
	}
	ts, err := time.ParseInLocation(layout, value, loc)
	if err != nil {
		return time.Time{}, false
	}
	// Reject implausible years; long digit runs in names produce them.
	if ts.Year() < 2000 || ts.Year() > 2100 {
		return time.Time{}, false
	}
	return ts, true
}

// digitBounded reports whether s[start:end] is not part of a longer digit run.
func digitBounded(s string, start, end int) bool {
	if start > 0 && isDigit(s[start-1]) {
		return false
	}
	if end < len(s) && isDigit(s[end]) {
		return false
	}
	return true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func parseDirection(s string) model.Direction {
	switch strings.ToUpper(s) {
	case "INCOMING":
		return model.DirectionIncoming
	case "OUTGOING":
		return model.DirectionOutgoing
	default:
		return model.DirectionUnknown
	}
}

func guessDirection(base string) model.Direction {
	lower := strings.ToLower(base)
	switch {
	case strings.Contains(lower, "incoming"), strings.Contains(lower, "_in_"):
		return model.DirectionIncoming
	case strings.Contains(lower, "outgoing"), strings.Contains(lower, "_out_"):
		return model.DirectionOutgoing
	default:
		return model.DirectionUnknown
	}
}

func extOf(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[i:]
	}
	return ""
}

// NormalizePhone returns the digit-only grouping key for a phone number.
// An international "00" prefix is dropped and 11-digit NANP numbers
// starting with 1 are reduced to their last 10 digits.
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if strings.HasPrefix(digits, "00") {
		digits = digits[2:]
	}
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	return digits
}
