// Package operatordata canonicalizes free-form subscription answers into the
// record shape expected by the CEE mobility-proof registry.
package operatordata

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Answer keys, matched after lower-casing and whitespace collapsing.
const (
	fieldDrivingLicense = "numéro de permis de conduire"
	fieldJourneyType    = "type de trajet"
	fieldPhone          = "numéro de téléphone"
	fieldSharingDate    = "date de partage des frais"
	fieldJourneyID      = "identifiant du trajet"
)

// OperatorRecord is the registry-side view of a subscription.
type OperatorRecord struct {
	LastNameTrunc        string `json:"last_name_trunc"`
	DrivingLicense       string `json:"driving_license,omitempty"`
	JourneyType          string `json:"journey_type,omitempty"`
	PhoneTrunc           string `json:"phone_trunc,omitempty"`
	Datetime             string `json:"datetime,omitempty"`
	OperatorJourneyID    string `json:"operator_journey_id,omitempty"`
	ApplicationTimestamp string `json:"application_timestamp,omitempty"`
}

var (
	collapseRegex = regexp.MustCompile(`\s+`)
	e164France    = regexp.MustCompile(`^\+33[0-9]{6,10}$`)
	nationalZero  = regexp.MustCompile(`^0.{7,9}$`)
)

// Convert builds an OperatorRecord from the raw specific fields. It is a pure
// function: fields is never mutated and no I/O happens here. Field access is
// insensitive to key casing and stray whitespace.
func Convert(fields map[string]interface{}, lastName string, applicationTimestamp time.Time) OperatorRecord {
	normalized := make(map[string]interface{}, len(fields))
	for key, value := range fields {
		normalized[CollapseWhitespace(strings.ToLower(key))] = value
	}

	record := OperatorRecord{
		LastNameTrunc:  TruncateLastName(lastName),
		DrivingLicense: stringValue(normalized[fieldDrivingLicense]),
	}

	ts := applicationTimestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	switch strings.ToLower(firstString(normalized[fieldJourneyType])) {
	case "long":
		record.JourneyType = "long"
		record.PhoneTrunc = ConvertPhoneNumber(stringValue(normalized[fieldPhone]))
		record.Datetime = convertToISODate(stringValue(normalized[fieldSharingDate]))
		record.ApplicationTimestamp = ts
	case "court", "short":
		record.JourneyType = "short"
		record.OperatorJourneyID = stringValue(normalized[fieldJourneyID])
		record.ApplicationTimestamp = ts
	}

	return record
}

// CollapseWhitespace trims the string and squeezes internal runs of
// whitespace to a single space.
func CollapseWhitespace(s string) string {
	return collapseRegex.ReplaceAllString(strings.TrimSpace(s), " ")
}

// TruncateLastName returns the registry lastname token: diacritics stripped,
// non-letters turned into spaces, upper-cased, collapsed, then cut to three
// characters and right-padded with spaces when shorter.
func TruncateLastName(name string) string {
	stripped, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		stripped = name
	}

	var b strings.Builder
	for _, r := range stripped {
		if unicode.IsLetter(r) {
			b.WriteRune(unicode.ToUpper(r))
		} else {
			b.WriteRune(' ')
		}
	}

	token := CollapseWhitespace(b.String())
	if len(token) > 3 {
		token = token[:3]
	}
	for len(token) < 3 {
		token += " "
	}
	return token
}

// ConvertPhoneNumber normalizes a French phone number to its E.164 form and
// keeps the first ten characters, dropping the trailing digit as the
// registry expects. Unrecognized inputs pass through untouched.
func ConvertPhoneNumber(phone string) string {
	switch {
	case e164France.MatchString(phone):
		formatted := strings.Replace(phone, "+330", "+33", 1)
		return truncate(formatted, 10)
	case nationalZero.MatchString(phone):
		return truncate("+33"+phone[1:], 10)
	default:
		return phone
	}
}

// convertToISODate parses a free-text d/M/yyyy date into an ISO 8601 UTC
// midnight. Unparseable input yields the empty string.
func convertToISODate(raw string) string {
	parsed, err := time.ParseInLocation("2/1/2006", strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return ""
	}
	return parsed.Format("2006-01-02T15:04:05.000Z07:00")
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}

// firstString returns the first element of a list-valued answer. Dynamic
// form answers arrive either as []string or, after JSON decoding, as
// []interface{}.
func firstString(v interface{}) string {
	switch list := v.(type) {
	case []string:
		if len(list) > 0 {
			return list[0]
		}
	case []interface{}:
		if len(list) > 0 {
			return stringValue(list[0])
		}
	case string:
		return list
	}
	return ""
}
