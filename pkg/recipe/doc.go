// Package recipe defines the recipe domain model and the recipe parser.
//
// # Overview
//
// A recipe is an XML document describing site configuration and content as an
// ordered list of steps. The root element's children are read in document
// order:
//
//	<Orchard>
//	  <Recipe>
//	    <Name>Blog</Name>
//	    <IsSetupRecipe>false</IsSetupRecipe>
//	  </Recipe>
//	  <Settings>...</Settings>
//	  <ContentTypes>...</ContentTypes>
//	  <Content>...</Content>
//	</Orchard>
//
// The Recipe element carries metadata only. Every other element becomes a
// RecipeStep whose Name is the element's local tag and whose Step payload is
// the element itself. The payload is opaque to this package; step handlers
// interpret it.
//
// # Execution Types
//
// QueuedStep, StepResultRecord, Context and FileToImport are the types the
// execution engine moves between the step queue, the result store and the
// step handlers. See package engine for the executor.
package recipe
