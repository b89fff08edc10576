package view

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestRenderLoginPage(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	err = engine.Render(rec, "pages/login.html", TemplateData{
		Title:     "Login",
		CSRFToken: "tok123",
		Data: map[string]any{
			"Next":   "/samples",
			"Form":   struct{ Username string }{Username: "asha.nair"},
			"Errors": map[string]string{},
		},
	})
	require.NoError(t, err)

	out := rec.Body.String()
	assert.Contains(t, out, `action="/auth/login"`)
	assert.Contains(t, out, `value="tok123"`)
	assert.Contains(t, out, `value="/samples"`)
	assert.Contains(t, out, `value="asha.nair"`)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestRenderUnknownTemplate(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	assert.Error(t, engine.Render(rec, "pages/no-such-page.html", TemplateData{}))
}
