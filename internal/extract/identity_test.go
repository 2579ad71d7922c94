package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/inboxvault/inboxvault/internal/models"
)

func TestIsGroupConversation(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected bool
	}{
		{"comma and word and", "Alice, Bob and 3 more", true},
		{"comma only", "great, see you then", false},
		{"word and only", "you and me", false},
		{"and inside another word", "Sandy, hello", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsGroupConversation(tt.text))
		})
	}
}

func TestDeriveID(t *testing.T) {
	t.Run("external id wins over everything", func(t *testing.T) {
		item := models.RawItem{
			ExternalID: "conv-42",
			HTML:       `<div data-item-id="conv-99"></div>`,
			Text:       "Alice, Bob and 3 more",
		}
		assert.Equal(t, "conv-42", DeriveID(item))
	})

	t.Run("markup attribute used when caller id missing", func(t *testing.T) {
		item := models.RawItem{
			HTML: `<div data-item-id="conv-99"><span>Carol</span></div>`,
			Text: "Carol · 1h\nhello",
		}
		assert.Equal(t, "conv-99", DeriveID(item))
	})

	t.Run("group fingerprint from normalized first line", func(t *testing.T) {
		item := models.RawItem{Text: "Alice, Bob and 3 more"}
		assert.Equal(t, GroupIDPrefix+"Alice, Bob and 3 more", DeriveID(item))
	})

	t.Run("single fingerprint strips volatile text", func(t *testing.T) {
		first := DeriveID(models.RawItem{Text: "Carol · 1h\ngreat, see you then"})
		second := DeriveID(models.RawItem{Text: "Carol · 2d\ngreat, see you then"})
		assert.Equal(t, first, second)
		assert.False(t, strings.HasPrefix(first, GroupIDPrefix))
	})

	t.Run("group fingerprint truncated to fifty runes", func(t *testing.T) {
		long := strings.Repeat("a", 60) + ", " + strings.Repeat("b", 20) + " and 2 more"
		id := DeriveID(models.RawItem{Text: long})
		assert.True(t, strings.HasPrefix(id, GroupIDPrefix))
		assert.Len(t, []rune(strings.TrimPrefix(id, GroupIDPrefix)), 50)
	})

	t.Run("single fingerprint truncated to thirty runes", func(t *testing.T) {
		id := DeriveID(models.RawItem{Text: strings.Repeat("x", 80)})
		assert.Len(t, []rune(id), 30)
	})

	t.Run("deterministic for identical input", func(t *testing.T) {
		item := models.RawItem{Text: "Dave\nsee you at the meeting"}
		assert.Equal(t, DeriveID(item), DeriveID(item))
	})
}
