package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"loginsight/internal/config"
	"loginsight/internal/model"
)

func TestPrivacyFilter_RedactEvent_DropsRawAndAppliesCategories(t *testing.T) {
	f := NewPrivacyFilter(config.PrivacyFilterConfig{
		RedactIPs:    true,
		RedactEmails: true,
		RedactHosts:  true,
	})

	e := model.Event{
		Host:    "db-primary-01",
		Message: "connection from 10.0.0.8 by alice@example.com refused",
		Raw:     map[string]any{"sensitive": "do-not-send"},
	}

	out := f.RedactEvent(e)

	assert.Nil(t, out.Raw, "Raw must never reach an outbound payload")
	assert.Equal(t, "<host>", out.Host)
	assert.Contains(t, out.Message, "<ipv4>")
	assert.Contains(t, out.Message, "<email>")
	assert.NotContains(t, out.Message, "10.0.0.8")
	assert.NotContains(t, out.Message, "alice@example.com")
}

func TestPrivacyFilter_DisabledCategoriesPassThrough(t *testing.T) {
	f := NewPrivacyFilter(config.PrivacyFilterConfig{})

	out := f.RedactEvent(model.Event{Host: "db-1", Message: "ip 10.0.0.8 ok"})

	assert.Equal(t, "db-1", out.Host, "RedactHosts disabled must leave the host untouched")
	assert.Contains(t, out.Message, "10.0.0.8", "RedactIPs disabled must leave the message untouched")
}

func TestPrivacyFilter_ExtraPatternsRedacted(t *testing.T) {
	f := NewPrivacyFilter(config.PrivacyFilterConfig{
		ExtraPatterns: []string{`ACC-\d+`},
	})

	out := f.RedactEvent(model.Event{Message: "charged account ACC-48213 twice"})
	assert.Contains(t, out.Message, "<redacted>")
	assert.NotContains(t, out.Message, "ACC-48213")
}

func TestPrivacyFilter_RedactBatch_PreservesOrder(t *testing.T) {
	f := NewPrivacyFilter(config.PrivacyFilterConfig{})
	events := []model.Event{{Message: "one"}, {Message: "two"}, {Message: "three"}}

	out := f.RedactBatch(events)

	assert.Len(t, out, 3)
	assert.Equal(t, "one", out[0].Message)
	assert.Equal(t, "three", out[2].Message)
}
