package telemetry_test

import (
	"context"
	"fmt"

	"github.com/openfroyo/recipes/pkg/recipe"
	"github.com/openfroyo/recipes/pkg/telemetry"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Output = "discard"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	logger := tel.Logger.NewComponentLogger("cli").Zerolog()
	logger.Info().Msg("Application started")

	fmt.Println(tel.Metrics != nil, tel.Events != nil)
	// Output: true true
}

// ExampleEventPublisher demonstrates streaming step progress to a subscriber.
func ExampleEventPublisher() {
	events, _ := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})

	events.Subscribe(func(event telemetry.Event) {
		fmt.Println(event.Type, event.StepName)
	}, telemetry.FilterByExecutionID("exec-1"))

	ctx := context.Background()
	rc := &recipe.Context{ExecutionID: "exec-1", RecipeStep: recipe.RecipeStep{Name: "Settings"}}
	_ = events.RecipeStepExecuting(ctx, "exec-1", rc)
	_ = events.RecipeStepExecuted(ctx, "exec-1", rc)
	_ = events.ExecutionComplete(ctx, "exec-2")
	_ = events.ExecutionComplete(ctx, "exec-1")
	// Output:
	// step.executing Settings
	// step.executed Settings
	// execution.complete
}
