package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/logflow/rawgate/pkg/schema"
)

func TestClassify(t *testing.T) {
	spec := &schema.Spec{DateStampLength: 8, TimeStampLength: 6}
	p := NewPattern("creditCardFraud")

	tests := []struct {
		name   string
		want   Verdict
		reason Reason
	}{
		{"creditCardFraud_20230101_120000.csv", Valid, ReasonNone},
		{"creditCardFraud_2023_120000.csv", Invalid, ReasonDateLength},
		{"creditCardFraud_20230101_1200.csv", Invalid, ReasonTimeLength},
		{"badname.csv", Invalid, ReasonPattern},
		{"creditCardFraud_20230101_120000.CSV", Invalid, ReasonPattern},
		{"creditCardFraud_20230101_120000.csv.bak", Invalid, ReasonPattern},
		{"xcreditCardFraud_20230101_120000.csv", Invalid, ReasonPattern},
		{"creditCardFraud_2023a101_120000.csv", Invalid, ReasonPattern},
		{"creditCardFraud_20230101.csv", Invalid, ReasonPattern},
		{"creditCardFraud__120000.csv", Invalid, ReasonPattern},
		{"other_20230101_120000.csv", Invalid, ReasonPattern},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, r := p.Explain(tt.name, spec)
			assert.Equal(t, tt.want, v)
			assert.Equal(t, tt.reason, r)
			assert.Equal(t, tt.want, p.Classify(tt.name, spec))
		})
	}
}

func TestNewPattern_QuotesPrefix(t *testing.T) {
	p := NewPattern("a.b")
	spec := &schema.Spec{DateStampLength: 1, TimeStampLength: 1}

	assert.Equal(t, Valid, p.Classify("a.b_1_2.csv", spec))
	assert.Equal(t, Invalid, p.Classify("aXb_1_2.csv", spec))
}

func TestForSpec(t *testing.T) {
	spec := &schema.Spec{SampleFileName: "wafer_08012020_120000.csv"}
	assert.Equal(t, "wafer", ForSpec("", spec).Prefix())
	assert.Equal(t, "x", ForSpec("x", spec).Prefix())
	assert.Equal(t, DefaultPrefix, ForSpec("", &schema.Spec{}).Prefix())
}

func TestStamps(t *testing.T) {
	date, clock, ok := NewPattern("").Stamps("creditCardFraud_20230101_120000.csv")
	assert.True(t, ok)
	assert.Equal(t, "20230101", date)
	assert.Equal(t, "120000", clock)

	_, _, ok = NewPattern("").Stamps("nope.csv")
	assert.False(t, ok)
}

func TestDescribe(t *testing.T) {
	assert.Contains(t, Describe("a.csv", Valid, ReasonNone), "GoodRaw")
	assert.Contains(t, Describe("b.csv", Invalid, ReasonPattern), "(name does not match pattern)")
}
