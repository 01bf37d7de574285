package fields

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	c := DefaultCatalog()
	require.NoError(t, c.Validate())
	assert.Equal(t, []string{
		"title", "tags", "shortDescription", "longDescription", "generatedPrompt",
		"colors", "mood", "style", "subject", "dimensions",
	}, c.Names())

	tags, ok := c.Lookup("tags")
	require.True(t, ok)
	assert.Equal(t, List, tags.Shape)
	assert.Equal(t, "Tags", tags.Label)

	_, ok = c.Lookup("sku")
	assert.False(t, ok)
}

func TestCatalogValidate(t *testing.T) {
	tests := []struct {
		name    string
		catalog Catalog
	}{
		{"empty", Catalog{}},
		{"blank name", Catalog{{Name: " ", Shape: Scalar}}},
		{"duplicate", Catalog{{Name: "a", Shape: Scalar}, {Name: "a", Shape: List}}},
		{"bad shape", Catalog{{Name: "a", Shape: "map"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.catalog.Validate())
		})
	}
}

func TestFilterKeepsCanonicalOrder(t *testing.T) {
	c := DefaultCatalog()
	got := c.Filter([]string{"mood", "title", "unknown", "tags"})
	assert.Equal(t, []string{"title", "tags", "mood"}, got.Names())
}

// Gateway returns {title:"Cat", tags:["cat","cute"], mood:null} with only
// title and tags enabled.
func TestNormalizeRestrictsToActiveFields(t *testing.T) {
	raw := map[string]interface{}{
		"title": "Cat",
		"tags":  []interface{}{"cat", "cute"},
		"mood":  nil,
		"style": "photo",
	}

	result := Normalize(DefaultCatalog(), []string{"title", "tags"}, raw)

	require.Len(t, result, len(DefaultCatalog()))
	assert.Equal(t, Text("Cat"), result["title"])
	assert.Equal(t, Items("cat", "cute"), result["tags"])
	assert.Equal(t, Text(""), result["mood"])
	assert.Equal(t, Text(""), result["style"], "inactive fields are forced empty")
	assert.Equal(t, Items(), result["colors"])
}

func TestNormalizeCoercesShapes(t *testing.T) {
	c := DefaultCatalog()
	raw := map[string]interface{}{
		"tags":       "red, blue ,, green",
		"colors":     []interface{}{"Blue", nil, " ", 3.0},
		"title":      []interface{}{"Sunset", "Beach"},
		"dimensions": 42.0,
	}

	result := Normalize(c, c.Names(), raw)

	assert.Equal(t, []string{"red", "blue", "green"}, result["tags"].Items)
	assert.Equal(t, []string{"Blue", "3"}, result["colors"].Items)
	assert.Equal(t, "Sunset, Beach", result["title"].Text)
	assert.Equal(t, "42", result["dimensions"].Text)
	assert.Equal(t, "", result["mood"].Text)
}

func TestValueJSON(t *testing.T) {
	data, err := json.Marshal(Result{
		"tags":  Items(),
		"title": Text("Cat"),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"tags":[],"title":"Cat"}`, string(data))

	var back Result
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, List, back["tags"].Shape)
	assert.Equal(t, "Cat", back["title"].Text)
}

func TestValueJoin(t *testing.T) {
	assert.Equal(t, "Blue, Dark; Red", Items("Blue, Dark", "Red").String())
	assert.Equal(t, "x", Text("x").Join("|"))
	assert.True(t, Items().IsEmpty())
	assert.False(t, Text("a").IsEmpty())
}

func TestResultClone(t *testing.T) {
	r := Result{"tags": Items("a")}
	clone := r.Clone()
	clone["tags"].Items[0] = "b"
	assert.Equal(t, "a", r["tags"].Items[0])
	assert.Equal(t, Value{Shape: Scalar}, r.Get("missing"))
}
