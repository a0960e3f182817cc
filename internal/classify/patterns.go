// Package classify is the second, lower-confidence cascade: it guarantees
// that every transaction the matching cascade could not resolve still
// terminates in some profit-and-loss classification.
package classify

import "regexp"

// internalTransferPatterns recognize self-transfer phrasing in bank
// descriptions. A hit is classified as internal and marked reconciled
// directly, since internal movements need no external settlement proof.
var internalTransferPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bown\s+account\b`),
	regexp.MustCompile(`(?i)\binternal\s+transfer\b`),
	regexp.MustCompile(`(?i)\btransfer\s+between\s+accounts\b`),
	regexp.MustCompile(`(?i)\bsavings\s+sweep\b`),
	regexp.MustCompile(`(?i)\bto\s+savings\b`),
	regexp.MustCompile(`(?i)\bfrom\s+savings\b`),
	regexp.MustCompile(`(?i)\bcash\s+pool(?:ing)?\b`),
}

// legalSuffixPattern marks legal-entity suffixes used by the intercompany
// detector together with a configured entity marker.
var legalSuffixPattern = regexp.MustCompile(`(?i)\b(?:gmbh|ltd|llc|inc|b\.?v\.?|s\.?a\.?|plc|kft|oy|ab|aps|s\.?r\.?l\.?)\b`)

// namePattern pairs an extraction regexp with the capture group holding the
// counterparty name.
type namePattern struct {
	re    *regexp.Regexp
	group int
}

// nameExtractionPatterns pull a candidate counterparty name out of free-text
// bank descriptions. Ordered: the first capturing pattern wins.
var nameExtractionPatterns = []namePattern{
	// "Transfer/Jane Doe Clinic", "TRANSFER / ACME LTD"
	{re: regexp.MustCompile(`(?i)\btransfer\s*/\s*([^/,;]+)`), group: 1},
	// "remittance of Jane Doe", "payment of ACME Ltd"
	{re: regexp.MustCompile(`(?i)\b(?:remittance|payment)\s+of\s+(.+)`), group: 1},
	// "SEPA CREDIT Jane Doe", "GIRO ACME LTD" (code followed by a name)
	{re: regexp.MustCompile(`(?i)\b(?:sepa(?:\s+credit)?|giro|trf|wire)\s+([[:alpha:]][^/,;0-9]{2,})`), group: 1},
	// "from Jane Doe Clinic"
	{re: regexp.MustCompile(`(?i)\bfrom\s+([[:alpha:]][^/,;0-9]{2,})`), group: 1},
}

// defaultGatewayNames are counterparty names skipped by the name extractor:
// a "transfer" from a gateway is a payout, not a direct customer payment.
var defaultGatewayNames = []string{
	"paypal",
	"stripe",
	"braintree",
	"adyen",
	"gocardless",
	"square",
	"mollie",
}

// MatchesInternalTransfer reports whether a description reads like a
// self-transfer.
func MatchesInternalTransfer(description string) bool {
	for _, re := range internalTransferPatterns {
		if re.MatchString(description) {
			return true
		}
	}
	return false
}

// HasLegalSuffix reports whether a description carries a legal-entity
// suffix.
func HasLegalSuffix(description string) bool {
	return legalSuffixPattern.MatchString(description)
}

// ExtractName applies the ordered extraction patterns and returns the first
// captured counterparty name, trimmed, or "".
func ExtractName(description string) string {
	for _, p := range nameExtractionPatterns {
		m := p.re.FindStringSubmatch(description)
		if len(m) > p.group {
			name := trimName(m[p.group])
			if name != "" {
				return name
			}
		}
	}
	return ""
}

func trimName(s string) string {
	// Cut at the first separator that usually starts a reference suffix.
	for i, r := range s {
		if r == '/' || r == ',' || r == ';' || r == ':' {
			s = s[:i]
			break
		}
	}
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == ' ' || r == '.' || r == '-' || r == '&' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r > 127 {
			out = append(out, r)
		}
	}
	trimmed := string(out)
	for len(trimmed) > 0 && (trimmed[0] == ' ' || trimmed[len(trimmed)-1] == ' ') {
		if trimmed[0] == ' ' {
			trimmed = trimmed[1:]
		} else {
			trimmed = trimmed[:len(trimmed)-1]
		}
	}
	return trimmed
}
