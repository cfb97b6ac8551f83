package templates_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/courier/internal/templates"
	"github.com/dmitrymomot/courier/pkg/mailer"
)

func statusChanged() templates.Template {
	return templates.Template{
		Event: "request.status.changed",
		Name:  "request_status_changed.md",
		Variables: map[string]templates.Variable{
			"title":      {Type: templates.TypeString, Required: true},
			"link":       {Type: templates.TypeURL, Required: true},
			"changed_at": {Type: templates.TypeDate},
		},
	}
}

func TestLoad_Default(t *testing.T) {
	t.Parallel()

	reg, err := templates.Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"account.security_alert",
		"password.reset",
		"request.status.changed",
		"request.submitted",
		"user.invited",
	}, reg.Events())

	tpl, err := reg.Resolve("password.reset")
	require.NoError(t, err)
	assert.Equal(t, "password_reset.md", tpl.Name)
	assert.Equal(t, "Reset your password", tpl.Subject)
	assert.Equal(t, []string{"account", "security"}, tpl.Tags)
	assert.Equal(t, templates.Variable{Type: templates.TypeInteger, Required: true}, tpl.Variables["expires_in_minutes"])
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
events:
  - event: order.shipped
    template: order_shipped.md
    layout: plain.html
    variables:
      tracking_url: {type: url, required: true}
`), 0o600))

	reg, err := templates.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"order.shipped"}, reg.Events())

	_, err = templates.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParseCatalog_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"unknown key", "events:\n  - event: a\n    templat: a.md\n"},
		{"not yaml", "events: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := templates.ParseCatalog(strings.NewReader(tt.doc))
			require.ErrorIs(t, err, templates.ErrInvalidCatalog)
		})
	}
}

func TestNewRegistry_Invalid(t *testing.T) {
	t.Parallel()

	_, err := templates.NewRegistry([]templates.Entry{
		{Event: "a", Template: "a.md"},
		{Event: "a", Template: "a.md"},
		{Event: "b"},
		{Event: "c", Template: "c.md", Variables: map[string]templates.Variable{"x": {Type: "decimal"}}},
		{Template: "orphan.md"},
	})
	require.ErrorIs(t, err, templates.ErrInvalidCatalog)
	assert.Contains(t, err.Error(), "declared twice")
	assert.Contains(t, err.Error(), "template is empty")
	assert.Contains(t, err.Error(), `unknown type "decimal"`)
	assert.Contains(t, err.Error(), "event name is empty")
}

func TestRegistry_Resolve_Unknown(t *testing.T) {
	t.Parallel()

	reg, err := templates.NewRegistry(nil)
	require.NoError(t, err)

	_, err = reg.Resolve("nope")
	require.ErrorIs(t, err, templates.ErrUnknownEvent)
	assert.ErrorIs(t, err, templates.ErrConfiguration)
}

func TestRegistry_Check(t *testing.T) {
	t.Parallel()

	t.Run("embedded assets render", func(t *testing.T) {
		t.Parallel()

		reg, err := templates.Load("")
		require.NoError(t, err)

		renderer := mailer.NewRendererWithConfig(templates.Assets(), mailer.RendererConfig{
			TemplateDir: "emails",
			LayoutDir:   "layouts",
		})
		require.NoError(t, reg.Check(renderer, "base.html"))

		result, err := renderer.Render("base.html", "request_status_changed.md", map[string]any{
			"title":  "Laptop",
			"link":   "https://example.com/r/1",
			"status": "approved",
		})
		require.NoError(t, err)
		assert.Contains(t, result.HTML, "<strong>approved</strong>")
		assert.Contains(t, result.HTML, `href="https://example.com/r/1"`)
	})

	t.Run("reports broken entries", func(t *testing.T) {
		t.Parallel()

		reg, err := templates.NewRegistry([]templates.Entry{
			{Event: "a", Template: "a.md"},
			{Event: "b", Template: "missing.md"},
		})
		require.NoError(t, err)

		checker := checkerFunc(func(layout, name string) error {
			if name == "missing.md" {
				return mailer.ErrTemplateNotFound
			}
			assert.Equal(t, "base.html", layout)
			return nil
		})

		err = reg.Check(checker, "base.html")
		require.ErrorIs(t, err, mailer.ErrTemplateNotFound)
		assert.Contains(t, err.Error(), "event b")
	})
}

type checkerFunc func(layout, name string) error

func (f checkerFunc) Check(layout, name string) error { return f(layout, name) }

func TestValidate(t *testing.T) {
	t.Parallel()

	t.Run("missing required field", func(t *testing.T) {
		t.Parallel()

		err := templates.Validate(statusChanged(), map[string]any{"title": "Laptop"})

		var missing *templates.MissingRequiredError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, "link", missing.Field)
		assert.Equal(t, "request.status.changed", missing.Event)
		assert.ErrorIs(t, err, templates.ErrConfiguration)
		assert.ErrorIs(t, err, templates.ErrMissingRequired)
	})

	t.Run("empty string counts as missing", func(t *testing.T) {
		t.Parallel()

		err := templates.Validate(statusChanged(), map[string]any{"title": "", "link": "https://example.com"})
		require.ErrorIs(t, err, templates.ErrMissingRequired)
	})

	t.Run("type mismatch", func(t *testing.T) {
		t.Parallel()

		err := templates.Validate(statusChanged(), map[string]any{"title": "Laptop", "link": "not a url"})

		var mismatch *templates.TypeMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, "link", mismatch.Field)
		assert.Equal(t, templates.TypeURL, mismatch.Expected)
		assert.ErrorIs(t, err, templates.ErrConfiguration)
	})

	t.Run("first problem in field order", func(t *testing.T) {
		t.Parallel()

		err := templates.Validate(statusChanged(), map[string]any{"changed_at": 12})

		var mismatch *templates.TypeMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, "changed_at", mismatch.Field)
	})

	t.Run("valid with extras", func(t *testing.T) {
		t.Parallel()

		err := templates.Validate(statusChanged(), map[string]any{
			"title":      "Laptop",
			"link":       "https://example.com/r/1",
			"changed_at": "2026-03-01",
			"unrelated":  []int{1},
		})
		require.NoError(t, err)
	})

	t.Run("optional nil is skipped", func(t *testing.T) {
		t.Parallel()

		err := templates.Validate(statusChanged(), map[string]any{
			"title":      "Laptop",
			"link":       "https://example.com/r/1",
			"changed_at": nil,
		})
		require.NoError(t, err)
	})
}

func TestValidateAll(t *testing.T) {
	t.Parallel()

	err := templates.ValidateAll(statusChanged(), map[string]any{"changed_at": "yesterday"})
	require.Error(t, err)

	var count int
	for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
		count++
		assert.True(t, errors.Is(e, templates.ErrConfiguration))
	}
	assert.Equal(t, 3, count)

	assert.NoError(t, templates.ValidateAll(statusChanged(), map[string]any{
		"title": "Laptop",
		"link":  "http://example.com",
	}))
}

func TestTypes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ   templates.Type
		value any
		ok    bool
	}{
		{templates.TypeString, "x", true},
		{templates.TypeString, 1, false},
		{templates.TypeURL, "https://example.com/a?b=c", true},
		{templates.TypeURL, "ftp://example.com", false},
		{templates.TypeURL, "/relative", false},
		{templates.TypeInteger, 3, true},
		{templates.TypeInteger, int64(3), true},
		{templates.TypeInteger, float64(30), true},
		{templates.TypeInteger, 2.5, false},
		{templates.TypeInteger, json.Number("12"), true},
		{templates.TypeInteger, "12", false},
		{templates.TypeDate, "2026-03-01", true},
		{templates.TypeDate, "2026-03-01T10:00:00Z", true},
		{templates.TypeDate, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{templates.TypeDate, "03/01/2026", false},
		{templates.TypeEmail, "jane@example.com", true},
		{templates.TypeEmail, "Jane <jane@example.com>", false},
		{templates.TypeEmail, "jane", false},
		{templates.TypeBoolean, true, true},
		{templates.TypeBoolean, "true", false},
	}

	for _, tt := range tests {
		tpl := templates.Template{
			Event:     "e",
			Variables: map[string]templates.Variable{"v": {Type: tt.typ}},
		}
		err := templates.Validate(tpl, map[string]any{"v": tt.value})
		if tt.ok {
			assert.NoError(t, err, "%s %#v", tt.typ, tt.value)
		} else {
			assert.ErrorIs(t, err, templates.ErrTypeMismatch, "%s %#v", tt.typ, tt.value)
		}
	}
}
