package templates

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderCode(t *testing.T) {
	out := RenderCode("042917", 10)
	assert.Contains(t, out, `<p class="code">042917</p>`)
	assert.Contains(t, out, "expires in 10 minutes")
	assert.Contains(t, out, "#38bdf8 0%, #2563eb 100%")
	assert.NotContains(t, out, "%!")
}

func TestRenderPasswordReset(t *testing.T) {
	out := RenderPasswordReset(`https://freshfold.com/reset-password?token=a"b`, 10)
	assert.Contains(t, out, "token=a&#34;b")
	assert.NotContains(t, out, `token=a"b`)
	assert.Equal(t, 2, strings.Count(out, "token=a&#34;b"))
}

func TestRenderGenericEmailEscapes(t *testing.T) {
	out := RenderGenericEmail("<Hi>", "line one\n<script>")
	assert.Contains(t, out, "<h1>&lt;Hi&gt;</h1>")
	assert.Contains(t, out, "line one<br>&lt;script&gt;")
}
