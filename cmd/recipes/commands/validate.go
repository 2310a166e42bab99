package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/beevik/etree"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"

	"github.com/openfroyo/recipes/pkg/recipe"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <recipe.xml>",
		Short: "Parse a recipe and list its steps",
		Long: `Parse a recipe document without queuing it.

This command checks:
  - the document is well-formed with a single root element
  - the Recipe metadata values (IsSetupRecipe, ExportUtc) are valid
and prints the recipe metadata and its steps in execution order as a tree.`,
		Example: `  # Validate a recipe
  recipes validate ./recipes/blog.xml

  # Print the parsed recipe as JSON
  recipes validate --json ./recipes/blog.xml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			log.Debug().Str("path", path).Msg("Validating recipe")

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read recipe: %w", err)
			}

			r, err := recipe.NewParser(log.Logger).ParseRecipe(string(data))
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(r)
			}

			fmt.Println(recipeTree(r))
			return nil
		},
	}

	return cmd
}

// recipeTree renders the metadata and steps of r, with the elements and
// attributes of each step.
func recipeTree(r *recipe.Recipe) string {
	tree := treeprint.New()
	tree.SetValue(displayName(r.Name))

	if r.Version != "" {
		tree.AddMetaNode("version", r.Version)
	}
	if r.Description != "" {
		tree.AddMetaNode("description", r.Description)
	}
	if r.IsSetupRecipe {
		tree.AddMetaNode("setup", "true")
	}

	steps := tree.AddBranch(fmt.Sprintf("steps (%d)", len(r.RecipeSteps)))
	for i, step := range r.RecipeSteps {
		node := steps.AddMetaBranch(i, step.Name)
		if step.Step == nil {
			continue
		}
		for _, child := range step.Step.ChildElements() {
			node.AddNode(describeElement(child))
		}
	}

	return tree.String()
}

func describeElement(e *etree.Element) string {
	var b strings.Builder
	b.WriteString(e.Tag)
	for _, attr := range e.Attr {
		fmt.Fprintf(&b, " %s=%q", attr.Key, attr.Value)
	}
	return b.String()
}

func displayName(name string) string {
	if name == "" {
		return "(unnamed)"
	}
	return name
}
