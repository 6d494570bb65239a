// Package route performs the two pre-retrieval checks: exact incident-ID
// extraction and the payment-domain gate. An ID always wins; the gate
// only applies to ID-less queries.
package route

import (
	"regexp"
	"strings"
)

// Incident identifier shapes. Matching is case-insensitive anywhere in
// the query; the extracted ID is canonicalized to upper-case.
var idPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(JSP|EUL|JIRA|INC|TICKET|BUG|ISSUE)-\d+\b`),
	regexp.MustCompile(`(?i)\bSLACK-\d+-\d+\b`),
}

// paymentVocabulary gates ID-less queries: a query mentioning none of
// these terms is out of domain. Includes bank and PSP names the corpus
// covers.
var paymentVocabulary = []string{
	"payment", "upi", "gateway", "card", "wallet", "bank", "refund",
	"settlement", "webhook", "api", "integration", "timeout", "error",
	"merchant", "transaction", "payout", "mandate", "chargeback",
	// gateways / PSPs
	"pinelabs", "payu", "razorpay", "stripe", "cashfree", "billdesk",
	"ccavenue", "phonepe", "gpay", "paytm", "amazonpay", "mobikwik",
	// banks and large merchants seen in incidents
	"hdfc", "axis", "icici", "sbi", "kotak", "yesbank", "indusind",
	"irctc", "snapdeal", "flipkart", "firstcry",
}

// ExtractIncidentID returns the first incident identifier found in the
// query, upper-cased, or "" when the query carries none.
func ExtractIncidentID(query string) string {
	for _, p := range idPatterns {
		if m := p.FindString(query); m != "" {
			return strings.ToUpper(m)
		}
	}
	return ""
}

// IsPaymentDomain reports whether the query mentions any payment-domain
// term. Queries carrying an incident ID bypass this gate entirely; the
// caller checks ExtractIncidentID first.
func IsPaymentDomain(query string) bool {
	lower := strings.ToLower(query)
	for _, term := range paymentVocabulary {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
