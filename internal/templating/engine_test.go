package templating

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractVariables(t *testing.T) {
	tests := []struct {
		name     string
		template string
		want     []string
	}{
		{"two variables", "Hi {{name}}, your code is {{code}}", []string{"name", "code"}},
		{"duplicates kept", "{{name}} and {{ name }}", []string{"name", "name"}},
		{"dotted", "Hello {{user.name}}", []string{"user.name"}},
		{"no variables", "Plain text", []string{}},
		{"non-ascii name", "안녕 {{이름}}님", []string{"이름"}},
		{"hyphenated name", "Hi {{user-name}}", []string{"user-name"}},
		{"keyword-like names", "{{nil}} {{empty}} {{true}}", []string{"nil", "empty", "true"}},
		{"liquid tags are text", "Hi {% if name %}{{name}}", []string{"name"}},
		{"sections and raw tags skipped", "{{#vip}}{{perk}}{{/vip}}{{^vip}}-{{/vip}}{{{raw}}}{{&amp}}{{! note }}{{code}}", []string{"code"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractVariables(tt.template))
		})
	}
}

func TestExtractVariables_UndefinedVersusEmpty(t *testing.T) {
	assert.Nil(t, ExtractVariables(""))
	for _, bad := range []string{"Hi {{name", "{{#vip}}open", "{{/vip}}", "{{#a}}{{/b}}", "{{}}", "{{=<% %>=}}"} {
		assert.Nil(t, ExtractVariables(bad), bad)
	}

	empty := ExtractVariables("no placeholders")
	require.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestSubstitute(t *testing.T) {
	out := Substitute("Hi {{name}}, your code is {{code}}", map[string]any{"name": "Kim", "code": float64(1234)})
	assert.Equal(t, "Hi Kim, your code is 1234", out)
}

func TestSubstitute_MissingAndFalsyRoundTrip(t *testing.T) {
	data := map[string]any{"name": "", "code": float64(0), "flag": false}
	out := Substitute("{{name}}/{{code}}/{{flag}}/{{missing}}", data)
	assert.Equal(t, "{{name}}/{{code}}/{{flag}}/{{missing}}", out)
	assert.Equal(t, "", data["name"], "caller data must not be mutated")
	_, added := data["missing"]
	assert.False(t, added)
}

func TestSubstitute_IdempotentOnEmptyData(t *testing.T) {
	tpl := "Hi {{name}}, code {{ code }}"
	once := Substitute(tpl, map[string]any{})
	twice := Substitute(once, map[string]any{})
	assert.Equal(t, once, twice)
	assert.Equal(t, "Hi {{name}}, code {{code}}", once)
}

func TestSubstitute_TwoPassBinding(t *testing.T) {
	first := Substitute("{{name}} bought {{item}}", map[string]any{"item": "tea"})
	assert.Equal(t, "{{name}} bought tea", first)
	assert.Equal(t, "Lee bought tea", Substitute(first, map[string]any{"name": "Lee"}))
}

func TestSubstitute_DottedMissing(t *testing.T) {
	out := Substitute("Hello {{user.name}}", map[string]any{"user": map[string]any{}})
	assert.Equal(t, "Hello {{user.name}}", out)
	out = Substitute("Hello {{user.name}}", map[string]any{"user": map[string]any{"name": "Park"}})
	assert.Equal(t, "Hello Park", out)
}

func TestSubstitute_NamesAreNotExpressions(t *testing.T) {
	tests := []struct {
		name     string
		template string
		data     map[string]any
		want     string
	}{
		{"non-ascii kept", "안녕 {{이름}}님", map[string]any{}, "안녕 {{이름}}님"},
		{"non-ascii bound", "안녕 {{ 이름 }}님", map[string]any{"이름": "김"}, "안녕 김님"},
		{"hyphen kept", "Hi {{user-name}}", map[string]any{}, "Hi {{user-name}}"},
		{"hyphen bound", "Hi {{user-name}}", map[string]any{"user-name": "Jo"}, "Hi Jo"},
		{"keywords kept", "Hi {{empty}} and {{nil}} or {{true}}", map[string]any{}, "Hi {{empty}} and {{nil}} or {{true}}"},
		{"keywords bound", "{{nil}}-{{true}}", map[string]any{"nil": "x", "true": "y"}, "x-y"},
		{"liquid markup is literal", "{% if a %}{{a}}{% endif %}", map[string]any{"a": "1"}, "{% if a %}1{% endif %}"},
		{"filters are names", "{{ name | upcase }}", map[string]any{}, "{{name | upcase}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Substitute(tt.template, tt.data))
			// a second pass with no data leaves the output unchanged
			assert.Equal(t, tt.want, Substitute(tt.want, map[string]any{}))
		})
	}
}

func TestSubstitute_Sections(t *testing.T) {
	tpl := "{{#vip}}VIP {{/vip}}{{^vip}}Hi {{/vip}}{{name}}{{! hidden }}"
	assert.Equal(t, "VIP Kim", Substitute(tpl, map[string]any{"vip": true, "name": "Kim"}))
	assert.Equal(t, "Hi Kim", Substitute(tpl, map[string]any{"vip": false, "name": "Kim"}))
	assert.Equal(t, "Hi Kim", Substitute(tpl, map[string]any{"vip": []any{}, "name": "Kim"}))
	assert.Equal(t, "a<b>", Substitute("{{{x}}}", map[string]any{"x": "a<b>"}))
}

func TestSubstitute_UnparsableIsIdentity(t *testing.T) {
	assert.Equal(t, "Hi {{name", Substitute("Hi {{name", map[string]any{"name": "Kim"}))
}

func TestSubstitute_NilDataIsIdentity(t *testing.T) {
	assert.Equal(t, "Hi {{name}}", Substitute("Hi {{name}}", nil))
}

func TestToPlainText(t *testing.T) {
	assert.Equal(t, "Hi {{name}}!", ToPlainText("Hi @[{{name}}](name)!"))
	assert.Equal(t, "a b", ToPlainText("@[a](x) @[b](y)"))
	assert.Equal(t, "no mentions", ToPlainText("no mentions"))
}

func TestEngine_CachesParsedTemplates(t *testing.T) {
	e := NewEngine()
	e.Substitute("Hi {{name}}", map[string]any{"name": "A"})
	_, ok := e.cache.Load("Hi {{name}}")
	assert.True(t, ok)
}
