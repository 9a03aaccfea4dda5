package safety

import (
	"net/netip"
	"net/url"
	"regexp"
	"strings"
)

// Severity of a single finding. Only high findings make a URL unsafe.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// Reasons reported for rejected URLs
const (
	ReasonInvalidURL          = "invalid_url"
	ReasonShortenerChain      = "shortener_chain"
	ReasonBlockedTLD          = "blocked_tld"
	ReasonBlockedDomain       = "blocked_domain"
	ReasonSuspiciousPattern   = "suspicious_pattern"
	ReasonSuspiciousExtension = "suspicious_extension"
	ReasonPrivateIP           = "private_ip"
	ReasonInvalidScheme       = "invalid_scheme"
)

const maxURLLength = 2048

// Five or more labels, e.g. a.b.c.d.example.com
const maxHostDots = 4

// Issue is one finding against a URL
type Issue struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Detail   string   `json:"detail,omitempty"`
}

// Report is the outcome of CheckURL. When Safe is false Reason and Message
// describe the first high severity issue.
type Report struct {
	Safe     bool
	Reason   string
	Message  string
	Issues   []Issue
	Warnings []Issue
}

var shorteners = []string{
	"bit.ly", "bitly.com", "tinyurl.com", "t.co", "goo.gl", "ow.ly",
	"is.gd", "v.gd", "buff.ly", "j.mp", "short.io", "rebrand.ly",
	"tiny.cc", "cutt.ly", "shorturl.at", "rb.gy", "t.ly", "surl.li",
	"qr.ae", "adf.ly", "bc.vc", "po.st", "mcaf.ee", "su.pr",
	"yourls.org", "bl.ink", "clck.ru", "shortcm.li", "1url.com",
}

var blockedFragments = []string{
	"login-", "-login", "signin-", "-signin", "account-", "-account",
	"secure-", "-secure", "verify-", "-verify", "update-", "-update",
	"confirm-", "-confirm", "banking-", "-banking", "paypal-", "-paypal",
	"example-phishing.com",
}

var blockedTLDs = []string{".tk", ".ml", ".ga", ".cf", ".gq"}

var executableExtensions = []string{
	".exe", ".msi", ".bat", ".cmd", ".ps1", ".vbs", ".js", ".jar",
	".scr", ".pif", ".com", ".hta", ".wsf", ".wsh",
}

type pattern struct {
	name  string
	match func(raw, host string) bool
}

var (
	bareIPPattern      = regexp.MustCompile(`^https?://\d{1,3}(\.\d{1,3}){3}`)
	dataScheme         = regexp.MustCompile(`(?i)^data:`)
	javascriptScheme   = regexp.MustCompile(`(?i)^javascript:`)
	cyrillicLetters    = regexp.MustCompile(`\p{Cyrillic}`)
	latinLetters       = regexp.MustCompile(`[a-zA-Z]`)
	embeddedCredential = regexp.MustCompile(`^https?://[^:/@]+:[^@/]+@`)
)

var suspiciousPatterns = []pattern{
	{name: "ip_address", match: func(raw, _ string) bool { return bareIPPattern.MatchString(raw) }},
	{name: "deep_subdomains", match: func(_, host string) bool { return strings.Count(host, ".") >= maxHostDots }},
	{name: "data_uri", match: func(raw, _ string) bool { return dataScheme.MatchString(raw) }},
	{name: "javascript_uri", match: func(raw, _ string) bool { return javascriptScheme.MatchString(raw) }},
	{name: "mixed_script_host", match: func(_, host string) bool {
		return cyrillicLetters.MatchString(host) && latinLetters.MatchString(host)
	}},
	// RE2 caps counted repetition at 1000 so length is checked directly
	{name: "excessive_length", match: func(raw, _ string) bool { return len(raw) >= maxURLLength }},
	{name: "embedded_credentials", match: func(raw, _ string) bool { return embeddedCredential.MatchString(raw) }},
}

var messages = map[string]string{
	ReasonInvalidURL:          "Invalid URL format.",
	ReasonShortenerChain:      "Shortening other URL shorteners is not allowed.",
	ReasonBlockedTLD:          "This domain type is not allowed.",
	ReasonBlockedDomain:       "This domain is not allowed.",
	ReasonSuspiciousPattern:   "This URL contains suspicious patterns.",
	ReasonSuspiciousExtension: "URLs pointing to executable files are not allowed.",
	ReasonPrivateIP:           "URLs pointing to private/local addresses are not allowed.",
	ReasonInvalidScheme:       "Only http and https URLs are allowed.",
}

// Message returns the user facing text for a rejection reason
func Message(reason string) string {
	if msg, ok := messages[reason]; ok {
		return msg
	}
	return "This URL is not allowed."
}

// Classifier runs the static URL safety checks. It is stateless and safe for concurrent use.
type Classifier struct{}

// NewClassifier creates a classifier
func NewClassifier() *Classifier {
	return &Classifier{}
}

// CheckURL runs every check against raw and reports all findings
func (c *Classifier) CheckURL(raw string) Report {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Hostname() == "" {
		return Report{
			Reason:  ReasonInvalidURL,
			Message: Message(ReasonInvalidURL),
			Issues:  []Issue{{Type: ReasonInvalidURL, Severity: SeverityHigh}},
		}
	}

	host := strings.ToLower(parsed.Hostname())
	var issues []Issue

	if s, ok := matchShortener(host); ok {
		issues = append(issues, Issue{Type: ReasonShortenerChain, Severity: SeverityHigh, Detail: s})
	}
	if issue, ok := checkBlockedDomain(host); ok {
		issues = append(issues, issue)
	}
	for _, p := range suspiciousPatterns {
		if p.match(raw, host) {
			issues = append(issues, Issue{Type: ReasonSuspiciousPattern, Severity: SeverityHigh, Detail: p.name})
		}
	}
	if ext, ok := matchExtension(parsed.Path); ok {
		issues = append(issues, Issue{Type: ReasonSuspiciousExtension, Severity: SeverityMedium, Detail: ext})
	}
	if isPrivateHost(host) {
		issues = append(issues, Issue{Type: ReasonPrivateIP, Severity: SeverityHigh, Detail: host})
	}
	if scheme := strings.ToLower(parsed.Scheme); scheme != "http" && scheme != "https" {
		issues = append(issues, Issue{Type: ReasonInvalidScheme, Severity: SeverityHigh, Detail: scheme})
	}

	for _, issue := range issues {
		if issue.Severity == SeverityHigh {
			return Report{
				Reason:  issue.Type,
				Message: Message(issue.Type),
				Issues:  issues,
			}
		}
	}
	return Report{Safe: true, Warnings: issues}
}

func matchShortener(host string) (string, bool) {
	for _, s := range shorteners {
		if host == s || strings.HasSuffix(host, "."+s) {
			return s, true
		}
	}
	return "", false
}

// TLD entries only match as a suffix so hosts like tkmaxx.com pass
func checkBlockedDomain(host string) (Issue, bool) {
	for _, fragment := range blockedFragments {
		if strings.Contains(host, fragment) {
			return Issue{Type: ReasonBlockedDomain, Severity: SeverityHigh, Detail: fragment}, true
		}
	}
	for _, tld := range blockedTLDs {
		if strings.HasSuffix(host, tld) {
			return Issue{Type: ReasonBlockedTLD, Severity: SeverityHigh, Detail: tld}, true
		}
	}
	return Issue{}, false
}

func matchExtension(path string) (string, bool) {
	lower := strings.ToLower(path)
	for _, ext := range executableExtensions {
		if strings.HasSuffix(lower, ext) {
			return ext, true
		}
	}
	return "", false
}

// isPrivateHost only inspects literal addresses and reserved names; it never resolves DNS
func isPrivateHost(host string) bool {
	switch host {
	case "localhost", "127.0.0.1", "::1", "0.0.0.0":
		return true
	}
	if strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return true
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsPrivate() ||
		addr.IsLoopback() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified()
}
