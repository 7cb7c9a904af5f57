// Package naming classifies batch files by name.
//
// A well-formed name is <prefix>_<date>_<time>.csv where date and time are
// digit runs whose lengths the schema declares.
package naming

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/logflow/rawgate/pkg/schema"
)

// DefaultPrefix is used when neither the config nor the schema names one.
const DefaultPrefix = "creditCardFraud"

// Verdict is the outcome of classifying a file name.
type Verdict int

const (
	Invalid Verdict = iota
	Valid
)

func (v Verdict) String() string {
	if v == Valid {
		return "valid"
	}
	return "invalid"
}

// Reason explains an Invalid verdict.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonPattern    Reason = "name does not match pattern"
	ReasonDateLength Reason = "date stamp length mismatch"
	ReasonTimeLength Reason = "time stamp length mismatch"
)

// Pattern matches well-formed batch file names for one prefix.
type Pattern struct {
	prefix string
	re     *regexp.Regexp
}

// NewPattern builds the pattern for prefix. The prefix is matched literally.
func NewPattern(prefix string) *Pattern {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Pattern{
		prefix: prefix,
		re:     regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `_(\d+)_(\d+)\.csv$`),
	}
}

// ForSpec builds the pattern for an explicit prefix, falling back to the
// prefix of the schema's sample file name.
func ForSpec(prefix string, spec *schema.Spec) *Pattern {
	if prefix == "" && spec != nil {
		prefix = spec.FilenamePrefix()
	}
	return NewPattern(prefix)
}

// Prefix returns the literal prefix.
func (p *Pattern) Prefix() string {
	return p.prefix
}

// String returns the regular expression.
func (p *Pattern) String() string {
	return p.re.String()
}

// Classify returns Valid only when filename matches the pattern and its
// date and time stamps have the lengths spec declares.
func (p *Pattern) Classify(filename string, spec *schema.Spec) Verdict {
	v, _ := p.Explain(filename, spec)
	return v
}

// Explain is Classify with the reason for an Invalid verdict.
func (p *Pattern) Explain(filename string, spec *schema.Spec) (Verdict, Reason) {
	m := p.re.FindStringSubmatch(filename)
	if m == nil {
		return Invalid, ReasonPattern
	}
	date, clock := m[1], m[2]
	if len(date) != spec.DateStampLength {
		return Invalid, ReasonDateLength
	}
	if len(clock) != spec.TimeStampLength {
		return Invalid, ReasonTimeLength
	}
	return Valid, ReasonNone
}

// Stamps returns the date and time stamps of a matching name.
func (p *Pattern) Stamps(filename string) (date, clock string, ok bool) {
	m := p.re.FindStringSubmatch(filename)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// Describe renders a verdict the way the name-validation stream records it.
func Describe(filename string, v Verdict, r Reason) string {
	if v == Valid {
		return fmt.Sprintf("Valid File name!! File moved to GoodRaw Folder :: %s", filename)
	}
	reason := strings.TrimSpace(string(r))
	if reason == "" {
		return fmt.Sprintf("Invalid File Name!! File moved to Bad Raw Folder :: %s", filename)
	}
	return fmt.Sprintf("Invalid File Name!! File moved to Bad Raw Folder :: %s (%s)", filename, reason)
}
