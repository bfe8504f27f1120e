package tui

import (
	"bytes"
	"errors"
	"testing"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestPrinter_PlainOutputWhenNotATerminal(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.Outcome(domain.Outcome{Status: domain.OutcomeSuccess, Value: "Hello, weft!"})
	p.Outcome(domain.Outcome{Status: domain.OutcomeError, Err: errors.New("boom")})
	p.Outcome(domain.Outcome{Status: domain.OutcomePending})

	e := domain.NewEffect("fetch", "/a")
	p.Effects([]*domain.Effect{e, domain.NewEffect("name", nil)})

	want := "success Hello, weft!\n" +
		"error boom\n" +
		"pending\n" +
		"  waiting fetch /a " + e.ID.String() + "\n" +
		"  waiting name " + domain.NewEffect("name", nil).ID.String() + "\n"
	assert.Equal(t, want, buf.String())
}
