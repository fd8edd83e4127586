package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEmailBody(t *testing.T) {
	body, err := RenderEmailBody(
		`<p>Hello {{.Name}}</p><a href="{{.UnsubscribeURL}}">Unsubscribe</a>`,
		EmailData{
			Name:           "Olena",
			Email:          "olena@example.com",
			UnsubscribeURL: "https://vidbudova.example/api/newsletter/unsubscribe?token=tok",
		},
	)
	require.NoError(t, err)
	assert.Contains(t, body, "Hello Olena")
	assert.Contains(t, body, "token=tok")
}

func TestRenderEmailBodyEscapesName(t *testing.T) {
	body, err := RenderEmailBody("<p>{{.Name}}</p>", EmailData{Name: "<script>x</script>"})
	require.NoError(t, err)
	assert.NotContains(t, body, "<script>")
}

func TestRenderEmailBodyBadTemplate(t *testing.T) {
	_, err := RenderEmailBody("{{.Name", EmailData{})
	assert.Error(t, err)
}

func TestUnsubscribeURL(t *testing.T) {
	got := UnsubscribeURL("https://vidbudova.example", "tok-123")
	assert.Equal(t, "https://vidbudova.example/api/newsletter/unsubscribe?token=tok-123", got)
}
