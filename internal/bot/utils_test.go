package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		name  string
		price *float64
		want  string
	}{
		{"unknown", nil, MsgPriceUnknown},
		{"zero", price(0), "0 €"},
		{"small", price(15), "15 €"},
		{"thousands", price(12000), "12.000 €"},
		{"millions", price(1250000), "1.250.000 €"},
		{"cents", price(12.5), "12,50 €"},
		{"rounds up to whole", price(9.999), "10 €"},
		{"negative clamps to zero", price(-5), "0 €"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatPrice(tt.price))
		})
	}
}

func TestParseCommand(t *testing.T) {
	cmd, args := parseCommand("/kategorien@marktplatz_bot fahrzeuge")
	assert.Equal(t, "/kategorien", cmd)
	assert.Equal(t, []string{"fahrzeuge"}, args)

	cmd, args = parseCommand("/start")
	assert.Equal(t, "/start", cmd)
	assert.Empty(t, args)
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, "\\*neu\\* \\_OVP\\_ \\`x\\` \\[1]", escapeMarkdown("*neu* _OVP_ `x` [1]"))
}

func TestPluralize(t *testing.T) {
	assert.Equal(t, "1 Dokument", pluralize("Dokument", "Dokumenten", 1))
	assert.Equal(t, "3 Dokumenten", pluralize("Dokument", "Dokumenten", 3))
}
