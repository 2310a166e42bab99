package recipe

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/rs/zerolog"
)

// MetadataElement is the name of the root child that holds recipe metadata.
const MetadataElement = "Recipe"

// ParseError reports a recipe document that cannot be parsed. No partial
// Recipe is ever returned alongside it.
type ParseError struct {
	// Reason is a short description of what is wrong with the document.
	Reason string

	// Err is the underlying decoder or conversion error, if any.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to parse recipe: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("failed to parse recipe: %s", e.Reason)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseError returns true if err is or wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// Parser turns recipe documents into Recipe values.
type Parser struct {
	logger zerolog.Logger
}

// NewParser creates a parser that reports non-fatal warnings to logger.
func NewParser(logger zerolog.Logger) *Parser {
	return &Parser{
		logger: logger.With().Str("component", "recipe_parser").Logger(),
	}
}

// ParseRecipe parses text with a parser that discards warnings.
func ParseRecipe(text string) (*Recipe, error) {
	return NewParser(zerolog.Nop()).ParseRecipe(text)
}

// ParseRecipe parses a recipe document.
func (p *Parser) ParseRecipe(text string) (*Recipe, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ParseError{Reason: "recipe is empty"}
	}

	doc := etree.NewDocument()
	doc.ReadSettings.PreserveCData = true
	if err := doc.ReadFromString(text); err != nil {
		return nil, &ParseError{Reason: "document is not well-formed", Err: err}
	}

	roots := doc.ChildElements()
	switch {
	case len(roots) == 0:
		return nil, &ParseError{Reason: "document has no root element"}
	case len(roots) > 1:
		return nil, &ParseError{Reason: fmt.Sprintf("document has %d root elements", len(roots))}
	}

	recipe := &Recipe{}
	steps := make([]RecipeStep, 0)

	for _, element := range roots[0].ChildElements() {
		if element.Tag == MetadataElement {
			if err := p.parseMetadata(recipe, element); err != nil {
				return nil, err
			}
			continue
		}

		steps = append(steps, RecipeStep{
			Name: element.Tag,
			Step: element.Copy(),
		})
	}

	recipe.RecipeSteps = steps

	p.logger.Debug().
		Str("recipe", recipe.Name).
		Int("steps", len(steps)).
		Msg("Recipe parsed")

	return recipe, nil
}

// parseMetadata populates recipe from the children of the metadata element.
func (p *Parser) parseMetadata(recipe *Recipe, metadata *etree.Element) error {
	for _, field := range metadata.ChildElements() {
		value := elementValue(field)

		switch field.Tag {
		case "Name":
			recipe.Name = value
		case "Description":
			recipe.Description = value
		case "Author":
			recipe.Author = value
		case "WebSite":
			recipe.WebSite = value
		case "Version":
			recipe.Version = value
		case "IsSetupRecipe":
			isSetup, err := parseBool(value)
			if err != nil {
				return &ParseError{Reason: "invalid IsSetupRecipe value", Err: err}
			}
			recipe.IsSetupRecipe = isSetup
		case "ExportUtc":
			exportUtc, err := parseUtc(value)
			if err != nil {
				return &ParseError{Reason: "invalid ExportUtc value", Err: err}
			}
			recipe.ExportUtc = exportUtc
		case "Category":
			recipe.Category = value
		case "Tags":
			recipe.Tags = value
		default:
			p.logger.Warn().
				Str("element", field.Tag).
				Msg("Unrecognized recipe metadata element encountered; skipping")
		}
	}
	return nil
}

// elementValue concatenates the text of e and all its descendants in
// document order, skipping comments and processing instructions.
func elementValue(e *etree.Element) string {
	var b strings.Builder
	var walk func(*etree.Element)
	walk = func(e *etree.Element) {
		for _, tok := range e.Child {
			switch t := tok.(type) {
			case *etree.CharData:
				b.WriteString(t.Data)
			case *etree.Element:
				walk(t)
			}
		}
	}
	walk(e)
	return b.String()
}

// parseBool accepts "true" and "false" in any case. Empty means false.
func parseBool(value string) (bool, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return false, nil
	case strings.EqualFold(value, "true"):
		return true, nil
	case strings.EqualFold(value, "false"):
		return false, nil
	default:
		return false, fmt.Errorf("%q is not a boolean", value)
	}
}

// utcLayouts are the xs:dateTime forms accepted for ExportUtc. Values
// without a zone are taken as UTC.
var utcLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// parseUtc parses an xs:dateTime value into UTC. Empty means nil.
func parseUtc(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	for _, layout := range utcLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			utc := t.UTC()
			return &utc, nil
		}
	}
	return nil, fmt.Errorf("%q is not a valid date and time", value)
}
