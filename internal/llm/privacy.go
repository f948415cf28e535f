package llm

import (
	"regexp"

	"loginsight/internal/config"
	"loginsight/internal/model"
)

var (
	ipv4Re      = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	ipv6Re      = regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){2,7}[0-9a-fA-F]{1,4}\b`)
	emailRe     = regexp.MustCompile(`\b[\w.+-]+@[\w-]+\.[\w.-]+\b`)
	phoneRe     = regexp.MustCompile(`\b\+?\d{1,3}[-.\s]?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}\b`)
	urlRe       = regexp.MustCompile(`\bhttps?://[^\s"']+`)
	macRe       = regexp.MustCompile(`\b(?:[0-9a-fA-F]{2}:){5}[0-9a-fA-F]{2}\b`)
	creditRe    = regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`)
	credentialRe = regexp.MustCompile(`(?i)\b(api[_-]?key|token|secret|password|bearer)\s*[:=]\s*\S+`)
	userPathRe  = regexp.MustCompile(`(?i)(/home/|/users/|C:\\Users\\)[\w.\-]+`)
)

// PrivacyFilter redacts PII from event payloads before they cross the
// process boundary to an LLM provider. It never mutates persisted events —
// it operates on a copy built just for the outbound request.
type PrivacyFilter struct {
	cfg   config.PrivacyFilterConfig
	extra []*regexp.Regexp
}

// NewPrivacyFilter compiles cfg's ExtraPatterns once at construction so the
// redaction hot path never compiles a regex per call.
func NewPrivacyFilter(cfg config.PrivacyFilterConfig) *PrivacyFilter {
	f := &PrivacyFilter{cfg: cfg}
	for _, p := range cfg.ExtraPatterns {
		if re, err := regexp.Compile(p); err == nil {
			f.extra = append(f.extra, re)
		}
	}
	return f
}

// RedactEvent returns a copy of e with its outbound-visible fields redacted
// per the configured categories. Raw is dropped entirely: it's never sent to
// an LLM.
func (f *PrivacyFilter) RedactEvent(e model.Event) model.Event {
	out := e
	out.Raw = nil
	out.Message = f.redactText(e.Message)
	if f.cfg.RedactHosts {
		out.Host = "<host>"
	}
	if f.cfg.RedactPrograms {
		out.Program = "<program>"
	}
	return out
}

func (f *PrivacyFilter) redactText(s string) string {
	if f.cfg.RedactIPs {
		s = ipv6Re.ReplaceAllString(s, "<ipv6>")
		s = ipv4Re.ReplaceAllString(s, "<ipv4>")
	}
	if f.cfg.RedactEmails {
		s = emailRe.ReplaceAllString(s, "<email>")
	}
	if f.cfg.RedactPhones {
		s = phoneRe.ReplaceAllString(s, "<phone>")
	}
	if f.cfg.RedactURLs {
		s = urlRe.ReplaceAllString(s, "<url>")
	}
	if f.cfg.RedactMACs {
		s = macRe.ReplaceAllString(s, "<mac>")
	}
	if f.cfg.RedactCreditCards {
		s = creditRe.ReplaceAllString(s, "<card>")
	}
	if f.cfg.RedactCredentials {
		s = credentialRe.ReplaceAllString(s, "$1=<redacted>")
		s = userPathRe.ReplaceAllString(s, "$1<user>")
	}
	for _, re := range f.extra {
		s = re.ReplaceAllString(s, "<redacted>")
	}
	return s
}

// RedactBatch applies RedactEvent to every element, preserving order.
func (f *PrivacyFilter) RedactBatch(events []model.Event) []model.Event {
	out := make([]model.Event, len(events))
	for i, e := range events {
		out[i] = f.RedactEvent(e)
	}
	return out
}

// DefaultPrivacyFilterConfig returns every PII pattern category enabled, the
// safe default for a fresh deployment before an operator tunes app_config.
// Host and program stripping stay off.
func DefaultPrivacyFilterConfig() config.PrivacyFilterConfig {
	return config.PrivacyFilterConfig{
		RedactIPs:         true,
		RedactEmails:      true,
		RedactPhones:      true,
		RedactURLs:        true,
		RedactMACs:        true,
		RedactCreditCards: true,
		RedactCredentials: true,
		RedactHosts:       false,
		RedactPrograms:    false,
	}
}
