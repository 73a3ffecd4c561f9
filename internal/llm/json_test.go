package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSONBlock_Plain(t *testing.T) {
	got := ExtractJSONBlock(`{"a": 1}`)
	assert.JSONEq(t, `{"a": 1}`, string(got))
}

func TestExtractJSONBlock_Fenced(t *testing.T) {
	got := ExtractJSONBlock("```json\n{\"a\": 1}\n```")
	assert.JSONEq(t, `{"a": 1}`, string(got))
}

func TestExtractJSONBlock_SurroundingProse(t *testing.T) {
	got := ExtractJSONBlock(`Sure! Here is the data: {"a": {"b": 2}} hope that helps.`)
	assert.JSONEq(t, `{"a": {"b": 2}}`, string(got))
}

func TestExtractJSONBlock_BracesInsideStrings(t *testing.T) {
	got := ExtractJSONBlock(`{"note": "open { and close }", "n": 3}`)
	assert.JSONEq(t, `{"note": "open { and close }", "n": 3}`, string(got))
}

func TestExtractJSONBlock_NoJSON(t *testing.T) {
	assert.Nil(t, ExtractJSONBlock("no structured content at all"))
}

func TestExtractJSONBlock_Array(t *testing.T) {
	got := ExtractJSONBlock(`prefix [1, 2, 3] suffix`)
	assert.JSONEq(t, `[1, 2, 3]`, string(got))
}
