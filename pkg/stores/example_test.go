package stores_test

import (
	"context"
	"fmt"
	"log"

	"github.com/openfroyo/recipes/pkg/recipe"
	"github.com/openfroyo/recipes/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	store, err := stores.NewSQLiteStore(stores.Config{
		Path: stores.MemoryPath,
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_Dequeue demonstrates draining a queue one step at a time.
func ExampleSQLiteStore_Dequeue() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: stores.MemoryPath})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	r, err := recipe.ParseRecipe(`<Orchard><Settings/><Content/></Orchard>`)
	if err != nil {
		log.Fatal(err)
	}

	steps := make([]recipe.QueuedStep, len(r.RecipeSteps))
	for i, s := range r.RecipeSteps {
		steps[i] = recipe.QueuedStep{RecipeStep: s}
	}
	if err := store.Enqueue(ctx, "exec-1", r.Name, steps); err != nil {
		log.Fatal(err)
	}

	for {
		step, err := store.Dequeue(ctx, "exec-1")
		if err != nil {
			log.Fatal(err)
		}
		if step == nil {
			break
		}
		fmt.Println(step.Position, step.Name)
		if err := store.CompleteStep(ctx, step); err != nil {
			log.Fatal(err)
		}
	}
	// Output:
	// 0 Settings
	// 1 Content
}

// ExampleSQLiteStore_FailStep demonstrates abort-on-failure draining.
func ExampleSQLiteStore_FailStep() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: stores.MemoryPath})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	r, _ := recipe.ParseRecipe(`<Orchard><A/><B/><C/></Orchard>`)
	steps := make([]recipe.QueuedStep, len(r.RecipeSteps))
	for i, s := range r.RecipeSteps {
		steps[i] = recipe.QueuedStep{RecipeStep: s}
	}
	_ = store.Enqueue(ctx, "exec-1", "", steps)

	step, _ := store.Dequeue(ctx, "exec-1")
	drained, err := store.FailStep(ctx, step, "Bad schema")
	if err != nil {
		log.Fatal(err)
	}

	results, _ := store.ListStepResults(ctx, "exec-1")
	fmt.Println("drained:", drained)
	fmt.Println(results[0].StepName, *results[0].ErrorMessage)
	// Output:
	// drained: 2
	// A Bad schema
}
