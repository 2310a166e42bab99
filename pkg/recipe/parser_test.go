package recipe

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blogRecipe = `<?xml version="1.0"?>
<Orchard>
  <Recipe>
    <Name>Blog</Name>
    <Description>A simple blog</Description>
    <Author>The Froyo Team</Author>
    <WebSite>https://example.com</WebSite>
    <Version>1.2</Version>
    <IsSetupRecipe>True</IsSetupRecipe>
    <ExportUtc>2024-03-01T10:15:00Z</ExportUtc>
    <Category>Sites</Category>
    <Tags>blog, posts</Tags>
  </Recipe>
  <Settings>
    <SiteSettingsPart PageSize="20" />
  </Settings>
  <ContentTypes>
    <Post DisplayName="Post" />
  </ContentTypes>
  <Content>
    <Post Id="/alias=hello" Status="Published" />
  </Content>
</Orchard>`

func TestParseRecipeMetadata(t *testing.T) {
	r, err := ParseRecipe(blogRecipe)
	require.NoError(t, err)

	assert.Equal(t, "Blog", r.Name)
	assert.Equal(t, "A simple blog", r.Description)
	assert.Equal(t, "The Froyo Team", r.Author)
	assert.Equal(t, "https://example.com", r.WebSite)
	assert.Equal(t, "1.2", r.Version)
	assert.Equal(t, "Sites", r.Category)
	assert.Equal(t, "blog, posts", r.Tags)
	assert.True(t, r.IsSetupRecipe)

	require.NotNil(t, r.ExportUtc)
	assert.True(t, r.ExportUtc.Equal(time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC)))
	assert.Equal(t, time.UTC, r.ExportUtc.Location())
}

func TestParseRecipeMetadataJoinsDescendantText(t *testing.T) {
	r, err := ParseRecipe(`<Orchard>
  <Recipe>
    <Name><!-- renamed -->Foo</Name>
    <Description>A <b>bold</b> <![CDATA[<site>]]></Description>
    <IsSetupRecipe><?pi x?>true</IsSetupRecipe>
  </Recipe>
</Orchard>`)
	require.NoError(t, err)

	assert.Equal(t, "Foo", r.Name)
	assert.Equal(t, "A bold <site>", r.Description)
	assert.True(t, r.IsSetupRecipe)
}

func TestParseRecipeStepsPreserveDocumentOrder(t *testing.T) {
	r, err := ParseRecipe(blogRecipe)
	require.NoError(t, err)

	assert.Equal(t, []string{"Settings", "ContentTypes", "Content"}, r.StepNames())

	settings := r.RecipeSteps[0].Step
	require.NotNil(t, settings)
	assert.Equal(t, "Settings", settings.Tag)
	part := settings.SelectElement("SiteSettingsPart")
	require.NotNil(t, part)
	assert.Equal(t, "20", part.SelectAttrValue("PageSize", ""))
}

func TestParseRecipeIsIdempotent(t *testing.T) {
	first, err := ParseRecipe(blogRecipe)
	require.NoError(t, err)
	second, err := ParseRecipe(blogRecipe)
	require.NoError(t, err)

	assert.Equal(t, first.StepNames(), second.StepNames())
	assert.Equal(t, first.Name, second.Name)
}

func TestParseRecipeUnrecognizedMetadataIsWarning(t *testing.T) {
	var buf bytes.Buffer
	parser := NewParser(zerolog.New(&buf))

	r, err := parser.ParseRecipe(`<Orchard>
  <Recipe>
    <Name>Tiny</Name>
    <Licence>MIT</Licence>
  </Recipe>
  <Command>echo</Command>
</Orchard>`)
	require.NoError(t, err)

	assert.Equal(t, "Tiny", r.Name)
	assert.Equal(t, []string{"Command"}, r.StepNames())
	assert.Contains(t, buf.String(), "Unrecognized recipe metadata element")
	assert.Contains(t, buf.String(), `"element":"Licence"`)
}

func TestParseRecipeMetadataDefaults(t *testing.T) {
	r, err := ParseRecipe(`<Orchard><Recipe><IsSetupRecipe></IsSetupRecipe><ExportUtc /></Recipe></Orchard>`)
	require.NoError(t, err)

	assert.False(t, r.IsSetupRecipe)
	assert.Nil(t, r.ExportUtc)
	assert.Empty(t, r.RecipeSteps)
}

func TestParseRecipeExportUtcForms(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Time
	}{
		{"zulu", "2023-12-31T23:00:00Z", time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC)},
		{"offset", "2024-01-01T01:00:00+02:00", time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC)},
		{"fractional", "2024-01-01T00:00:00.5Z", time.Date(2024, 1, 1, 0, 0, 0, 500000000, time.UTC)},
		{"no zone", "2024-01-01T08:30:00", time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC)},
		{"date only", "2024-01-01", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseRecipe("<Orchard><Recipe><ExportUtc>" + tt.value + "</ExportUtc></Recipe></Orchard>")
			require.NoError(t, err)
			require.NotNil(t, r.ExportUtc)
			assert.True(t, r.ExportUtc.Equal(tt.want), "got %s", r.ExportUtc)
		})
	}
}

func TestParseRecipeErrors(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		reason string
	}{
		{"empty", "", "recipe is empty"},
		{"whitespace", "  \n\t ", "recipe is empty"},
		{"malformed", "<Orchard><Settings></Orchard>", "not well-formed"},
		{"unterminated", "<Orchard><Settings>", "not well-formed"},
		{"no root", "just some text", "no root element"},
		{"two roots", "<A/><B/>", "2 root elements"},
		{"bad setup flag", "<Orchard><Recipe><IsSetupRecipe>yes</IsSetupRecipe></Recipe></Orchard>", "IsSetupRecipe"},
		{"bad export date", "<Orchard><Recipe><ExportUtc>yesterday</ExportUtc></Recipe></Orchard>", "ExportUtc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseRecipe(tt.text)
			require.Error(t, err)
			assert.Nil(t, r)
			assert.True(t, IsParseError(err), "expected ParseError, got %T", err)
			assert.True(t, strings.Contains(err.Error(), tt.reason), "error %q should mention %q", err, tt.reason)
		})
	}
}

func TestStepPayloadRoundTrip(t *testing.T) {
	r, err := ParseRecipe(`<Orchard><Script><![CDATA[set_setting("a", "b")]]></Script></Orchard>`)
	require.NoError(t, err)
	require.Len(t, r.RecipeSteps, 1)

	text, err := MarshalStep(r.RecipeSteps[0].Step)
	require.NoError(t, err)

	el, err := UnmarshalStep(text)
	require.NoError(t, err)
	assert.Equal(t, "Script", el.Tag)
	assert.Equal(t, `set_setting("a", "b")`, el.Text())
}

func TestMarshalStepRejectsNil(t *testing.T) {
	_, err := MarshalStep(nil)
	assert.Error(t, err)
}

func TestExecutionResultStatus(t *testing.T) {
	msg := "Bad schema"
	result := &ExecutionResult{
		ExecutionID: "exec-1",
		Steps: []StepResultRecord{
			{StepName: "Settings", IsCompleted: true, IsSuccessful: true},
			{StepName: "Content", Position: 1, IsCompleted: true, ErrorMessage: &msg},
		},
	}

	assert.True(t, result.IsCompleted())
	assert.False(t, result.IsSuccessful())

	failed, ok := result.FailedStep()
	require.True(t, ok)
	assert.Equal(t, "Content", failed.StepName)

	pending := &ExecutionResult{Steps: []StepResultRecord{{StepName: "Settings"}}}
	assert.False(t, pending.IsCompleted())
	assert.False(t, pending.IsSuccessful())
}
