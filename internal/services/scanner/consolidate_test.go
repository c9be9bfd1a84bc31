package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ghostleaks/internal/domain"
)

func TestConsolidate(t *testing.T) {
	in := []domain.Finding{
		{Name: "Adobe", Source: "hibp", Description: "first"},
		{Name: "Canva", Source: "hibp"},
		{Name: "Adobe", Source: "breach_directory"},
		{Name: "Adobe", Source: "hibp", Description: "second"},
		{Name: "Pastebin Leak", Source: "pastebin", Context: "https://pastebin.com/1"},
		{Name: "Pastebin Leak", Source: "pastebin", Context: "https://pastebin.com/2"},
	}
	got := Consolidate(in)

	assert.Len(t, got, 4)
	assert.Equal(t, "Adobe", got[0].Name)
	assert.Equal(t, "first", got[0].Description)
	assert.Equal(t, "Canva", got[1].Name)
	assert.Equal(t, "breach_directory", got[2].Source)
	assert.Equal(t, "https://pastebin.com/1", got[3].Context)
}

func TestConsolidateEmpty(t *testing.T) {
	assert.Empty(t, Consolidate(nil))
}
