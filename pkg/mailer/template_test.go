package mailer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTemplate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		content  string
		metadata map[string]any
		body     string
	}{
		{
			name:     "frontmatter and body",
			content:  "---\nSubject: Welcome {{.name}}\n---\n# Hello\n\nBody.\n",
			metadata: map[string]any{"Subject": "Welcome {{.name}}"},
			body:     "# Hello\n\nBody.\n",
		},
		{
			name:     "no frontmatter",
			content:  "# Hello\n\nPlain markdown.",
			metadata: map[string]any{},
			body:     "# Hello\n\nPlain markdown.",
		},
		{
			name:     "empty frontmatter",
			content:  "---\n---\nBody content here.",
			metadata: map[string]any{},
			body:     "Body content here.",
		},
		{
			name:     "windows line endings",
			content:  "---\r\nSubject: Test\r\n---\r\nBody",
			metadata: map[string]any{"Subject": "Test"},
			body:     "Body",
		},
		{
			name:     "empty body",
			content:  "---\nSubject: Test\n---\n",
			metadata: map[string]any{"Subject": "Test"},
			body:     "",
		},
		{
			name:     "numeric metadata",
			content:  "---\nSubject: Order\nOrderID: 12345\nAmount: 99.99\n---\nBody",
			metadata: map[string]any{"Subject": "Order", "OrderID": 12345, "Amount": 99.99},
			body:     "Body",
		},
		{
			name:     "empty content",
			content:  "",
			metadata: map[string]any{},
			body:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tmpl, err := ParseTemplate([]byte(tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.metadata, tmpl.Metadata)
			assert.Equal(t, tt.body, tmpl.Body)
		})
	}
}

func TestParseTemplate_BodyWithDelimiters(t *testing.T) {
	t.Parallel()

	tmpl, err := ParseTemplate([]byte("---\nSubject: Code\n---\nExample:\n\n```\n---\nkey: value\n---\n```\n"))
	require.NoError(t, err)
	assert.Equal(t, "Code", tmpl.Metadata["Subject"])
	assert.Contains(t, tmpl.Body, "key: value")
}

func TestParseTemplate_Invalid(t *testing.T) {
	t.Parallel()

	for name, content := range map[string]string{
		"missing closing delimiter": "---\nSubject: Test\nBody",
		"nothing after opening":     "---\n",
		"invalid yaml":              "---\nSubject: [unclosed\n---\nBody",
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tmpl, err := ParseTemplate([]byte(content))
			require.ErrorIs(t, err, ErrInvalidFrontmatter)
			assert.Nil(t, tmpl)
		})
	}
}
