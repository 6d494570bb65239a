package textutil

import (
	"regexp"
	"strings"
)

// Domain is the payment sub-domain a text belongs to.
type Domain string

const (
	DomainWallet  Domain = "wallet"
	DomainCard    Domain = "card"
	DomainUPI     Domain = "upi"
	DomainWebhook Domain = "webhook"
	DomainGateway Domain = "gateway"
	DomainGeneral Domain = "general"
)

// Intent is the primary purpose behind a query or incident text.
type Intent string

const (
	IntentTroubleshooting Intent = "troubleshooting"
	IntentIntegration     Intent = "integration"
	IntentTesting         Intent = "testing"
	IntentGeneral         Intent = "general"
)

// Closed vocabularies. These encode the merchants, gateways and banks the
// corpus actually covers; extending them is a data change, not a code change.
var (
	knownMerchants = []string{
		"snapdeal", "firstcry", "mobikwik", "citymall", "flipkart", "amazon",
		"myntra", "meesho", "zomato", "swiggy",
	}

	knownGateways = []string{
		"pinelabs", "payu", "razorpay", "checkout", "stripe", "cashfree",
		"amazonpay", "phonepe", "gpay", "paytm", "billdesk", "ccavenue",
	}

	knownBanks = []string{
		"hdfc", "axis", "icici", "sbi", "kotak", "yesbank", "indusind",
	}

	// Error codes, crypto standards, and gateway-qualified terms that must
	// match exactly for the retrieval boost.
	exactErrorCodes = []string{
		"messagenotrecognized", "transienterror", "invalidrequest",
		"authenticationfailed", "insufficientfunds", "cardexpired",
		"invalidcvv", "invalidpin", "cardblocked", "limitexceeded",
		"internal_server_error", "server_error", "invalid_data",
		"400", "401", "403", "404", "500", "502", "503", "5003",
	}

	exactTechStandards = []string{
		"pkcs15", "pkcs1", "rsa", "aes", "sha256", "hmac",
		"jwt", "oauth", "ssl", "tls", "x509",
	}

	exactGatewayTerms = []string{
		"pinelabs-online", "pinelabs_online", "checkout", "razorpay", "payu",
		"amazonpay", "phonepe", "gpay", "paytm",
	}
)

var (
	merchantPatterns = []*regexp.Regexp{
		regexp.MustCompile(`merchant_id[:\s]+([a-z0-9_-]+)`),
		regexp.MustCompile(`\bmid[:\s]+([a-z0-9_-]+)`),
		regexp.MustCompile(`merchant:\s*([a-z0-9_-]+)`),
		regexp.MustCompile(`\b([a-z0-9_]+_test)\b`),
		regexp.MustCompile(`\b([a-z0-9_]+_prod)\b`),
	}

	gatewayPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bpg[:\s]+([a-z0-9_-]+)`),
		regexp.MustCompile(`payment[_\s]*gateway[:\s]+([a-z0-9_-]+)`),
		regexp.MustCompile(`\bgateway:\s*([a-z0-9_-]+)`),
	}

	gatewaySuffixes = []string{"_gateway", "_pg", "_online"}
)

// ExtractMerchant returns the merchant identifier mentioned in text, or ""
// when none is found. Matching is case-insensitive; pattern captures win
// over the closed list so "MID: snapdeal_test" yields the full test MID.
func ExtractMerchant(text string) string {
	lower := strings.ToLower(text)

	for _, p := range merchantPatterns {
		if m := p.FindStringSubmatch(lower); m != nil {
			return m[1]
		}
	}
	for _, merchant := range knownMerchants {
		if strings.Contains(lower, merchant) {
			return merchant
		}
	}
	return ""
}

// ExtractGateway returns the payment gateway mentioned in text, or "".
// Gateway decorations (_gateway, _pg, _online) are stripped so
// "pinelabs_online" and "pg: pinelabs" compare equal.
func ExtractGateway(text string) string {
	lower := strings.ToLower(text)

	for _, p := range gatewayPatterns {
		if m := p.FindStringSubmatch(lower); m != nil {
			return stripGatewaySuffix(m[1])
		}
	}
	for _, gw := range knownGateways {
		if strings.Contains(lower, gw) {
			return gw
		}
	}
	return ""
}

func stripGatewaySuffix(gw string) string {
	for _, suffix := range gatewaySuffixes {
		gw = strings.TrimSuffix(gw, suffix)
	}
	return gw
}

// ExactTerms extracts the technical terms that must match precisely between
// a query and an incident: error codes, crypto standards, and
// gateway-qualified identifiers.
func ExactTerms(text string) map[string]bool {
	lower := strings.ToLower(text)
	terms := make(map[string]bool)

	for _, group := range [][]string{exactErrorCodes, exactTechStandards, exactGatewayTerms} {
		for _, term := range group {
			if strings.Contains(lower, term) {
				terms[term] = true
			}
		}
	}
	return terms
}

// Entities extracts the named entities (merchants, gateways, banks, exact
// technical terms) present in text. Used for the relevance gate's overlap
// measure.
func Entities(text string) map[string]bool {
	lower := strings.ToLower(text)
	entities := make(map[string]bool)

	for _, group := range [][]string{knownMerchants, knownGateways, knownBanks} {
		for _, name := range group {
			if strings.Contains(lower, name) {
				entities[name] = true
			}
		}
	}

	for _, term := range []string{
		"messagenotrecognized", "pkcs15", "rsa", "ssl", "tls",
		"internal_server_error", "timeout", "webhook", "callback",
		"tokenization", "encryption", "decryption", "signature",
		"authentication", "authorization", "validation",
	} {
		if strings.Contains(lower, term) {
			entities[term] = true
		}
	}
	return entities
}

// ExtractDomain classifies text into a payment sub-domain by keyword
// presence. Order matters: the most specific vocabulary wins.
func ExtractDomain(text string) Domain {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "wallet", "mobikwik", "paytm", "phonepe_wallet", "amazonpay", "freecharge"):
		return DomainWallet
	case containsAny(lower, "card", "visa", "mastercard", "debit", "credit", "tokenization", "rupay"):
		return DomainCard
	case containsAny(lower, "upi", "bhim", "gpay", "phonepe_upi"):
		return DomainUPI
	case containsAny(lower, "webhook", "callback", "notification"):
		return DomainWebhook
	case containsAny(lower, "gateway", "api", "integration"):
		return DomainGateway
	default:
		return DomainGeneral
	}
}

// ExtractIntent classifies the primary intent behind text.
func ExtractIntent(text string) Intent {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "failed", "failing", "error", "timeout", "blocked", "stuck"):
		return IntentTroubleshooting
	case containsAny(lower, "integrate", "integration", "setup", "configure"):
		return IntentIntegration
	case containsAny(lower, "test", "testing", "sandbox", "debug"):
		return IntentTesting
	default:
		return IntentGeneral
	}
}

// DomainCompatibility scores how related two payment sub-domains are:
// 1.0 for the same domain, 0.5 for adjacent ones (every concrete domain is
// adjacent to gateway and general), 0.1 otherwise.
func DomainCompatibility(a, b Domain) float64 {
	if a == b {
		return 1.0
	}

	related := map[Domain][]Domain{
		DomainWallet:  {DomainGateway, DomainGeneral},
		DomainCard:    {DomainGateway, DomainGeneral},
		DomainUPI:     {DomainGateway, DomainGeneral},
		DomainWebhook: {DomainGateway, DomainGeneral},
		DomainGateway: {DomainWallet, DomainCard, DomainUPI, DomainWebhook, DomainGeneral},
		DomainGeneral: {DomainWallet, DomainCard, DomainUPI, DomainWebhook, DomainGateway},
	}
	for _, r := range related[a] {
		if r == b {
			return 0.5
		}
	}
	return 0.1
}

func containsAny(text string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}
