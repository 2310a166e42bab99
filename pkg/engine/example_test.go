package engine_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/openfroyo/recipes/pkg/engine"
	"github.com/openfroyo/recipes/pkg/recipe"
	"github.com/openfroyo/recipes/pkg/stores"
)

// Example_execution submits a recipe and runs it one step per call, the
// way a scheduler tick would.
func Example_execution() {
	ctx := context.Background()

	store, _ := stores.NewSQLiteStore(stores.Config{Path: stores.MemoryPath})
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	manager, _ := engine.NewManager(store)
	id, _ := manager.Submit(ctx, `<Orchard><Settings/><Content/></Orchard>`,
		engine.SubmitOptions{ExecutionID: "example"})

	handler := engine.HandlerFunc(func(_ context.Context, rc *recipe.Context) error {
		fmt.Println("applying", rc.RecipeStep.Name)
		rc.Executed = true
		return nil
	})

	executor, _ := engine.NewExecutor(store, []engine.StepHandler{handler})
	for {
		more, err := executor.ExecuteNextStep(ctx, id)
		if err != nil || !more {
			break
		}
	}

	result, _ := manager.GetResult(ctx, id)
	fmt.Println("successful:", result.IsSuccessful())

	// Output:
	// applying Settings
	// applying Content
	// successful: true
}

// ExampleDriver_Run shows how a failing step aborts the execution.
func ExampleDriver_Run() {
	ctx := context.Background()

	store, _ := stores.NewSQLiteStore(stores.Config{Path: stores.MemoryPath})
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	manager, _ := engine.NewManager(store)
	id, _ := manager.Submit(ctx, `<Orchard><Settings/><Content/><Media/></Orchard>`,
		engine.SubmitOptions{ExecutionID: "example"})

	handler := engine.HandlerFunc(func(_ context.Context, rc *recipe.Context) error {
		if rc.RecipeStep.Name == "Content" {
			return errors.New("Bad schema")
		}
		rc.Executed = true
		return nil
	})

	executor, _ := engine.NewExecutor(store, []engine.StepHandler{handler})
	driver, _ := engine.NewDriver(executor, store)

	err := driver.Run(ctx, id)
	fmt.Println(err)

	exec, _ := store.GetExecution(ctx, id)
	fmt.Println("status:", exec.Status)

	// Output:
	// recipe execution with ID example failed because the step 'Content' failed to execute: Bad schema
	// status: fail
}
