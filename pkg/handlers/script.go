package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/openfroyo/recipes/pkg/recipe"
	"github.com/openfroyo/recipes/pkg/stores"
)

// DefaultScriptTimeout bounds a Script step when no timeout is configured.
const DefaultScriptTimeout = 30 * time.Second

const contextKey = "context"

// ScriptHandler applies Script steps by running the element text as a
// Starlark program. Scripts can read and write site settings:
//
//	setting(key)            returns the value or None
//	set_setting(key, value) stores a value
//	log(msg)                writes an info log line
//
// The step's attributes are available as the dict "attrs" and the
// execution ID as "execution_id".
type ScriptHandler struct {
	settings SettingsStore
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewScriptHandler creates a script handler. A zero timeout means
// DefaultScriptTimeout.
func NewScriptHandler(settings SettingsStore, timeout time.Duration, logger zerolog.Logger) *ScriptHandler {
	if timeout <= 0 {
		timeout = DefaultScriptTimeout
	}
	return &ScriptHandler{
		settings: settings,
		timeout:  timeout,
		logger:   logger.With().Str("handler", ScriptStepName).Logger(),
	}
}

// ExecuteRecipeStep runs the step's script.
func (h *ScriptHandler) ExecuteRecipeStep(ctx context.Context, rc *recipe.Context) error {
	if rc.RecipeStep.Name != ScriptStepName {
		return nil
	}

	step := rc.RecipeStep.Step
	if step == nil || strings.TrimSpace(step.Text()) == "" {
		return fmt.Errorf("script step is empty")
	}

	logger := h.logger.With().Str("execution_id", rc.ExecutionID).Logger()
	startTime := time.Now()

	if err := h.run(ctx, logger, rc, dedent(step.Text())); err != nil {
		return err
	}

	logger.Debug().Dur("duration", time.Since(startTime)).Msg("Script executed")

	rc.Executed = true
	return nil
}

// run executes script, cancelling the Starlark thread when the timeout
// expires or ctx is done.
func (h *ScriptHandler) run(ctx context.Context, logger zerolog.Logger, rc *recipe.Context, script string) error {
	evalCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name: "recipe-script",
		Print: func(_ *starlark.Thread, msg string) {
			logger.Debug().Str("output", msg).Msg("Script print")
		},
	}
	thread.SetLocal(contextKey, evalCtx)

	attrs := starlark.NewDict(0)
	for _, attr := range rc.RecipeStep.Step.Attr {
		if err := attrs.SetKey(starlark.String(attr.Key), starlark.String(attr.Value)); err != nil {
			return fmt.Errorf("failed to expose step attributes: %w", err)
		}
	}
	attrs.Freeze()

	predeclared := starlark.StringDict{
		"struct":       starlarkstruct.Default,
		"attrs":        attrs,
		"execution_id": starlark.String(rc.ExecutionID),
		"setting":      starlark.NewBuiltin("setting", h.builtinSetting),
		"set_setting":  starlark.NewBuiltin("set_setting", h.builtinSetSetting(rc.ExecutionID)),
		"log":          starlark.NewBuiltin("log", builtinLog(logger)),
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-evalCtx.Done():
			thread.Cancel(evalCtx.Err().Error())
		case <-done:
		}
	}()

	_, err := starlark.ExecFile(thread, rc.RecipeStep.Name+".star", script, predeclared)
	if err == nil {
		return nil
	}

	if ctxErr := evalCtx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("script timed out after %v", h.timeout)
		}
		return ctx.Err()
	}

	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return fmt.Errorf("script failed: %s", evalErr.Backtrace())
	}
	return fmt.Errorf("script failed: %w", err)
}

func threadContext(thread *starlark.Thread) context.Context {
	if ctx, ok := thread.Local(contextKey).(context.Context); ok {
		return ctx
	}
	return context.Background()
}

func (h *ScriptHandler) builtinSetting(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "key", &key); err != nil {
		return nil, err
	}

	setting, err := h.settings.GetSetting(threadContext(thread), key)
	if errors.Is(err, stores.ErrNotFound) {
		return starlark.None, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.String(setting.Value), nil
}

func (h *ScriptHandler) builtinSetSetting(executionID string) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			key   string
			value starlark.Value
		)
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "key", &key, "value", &value); err != nil {
			return nil, err
		}

		text, ok := starlark.AsString(value)
		if !ok {
			text = value.String()
		}

		setting := stores.Setting{Key: key, Value: text, ExecutionID: executionID}
		if err := h.settings.UpsertSetting(threadContext(thread), setting); err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return starlark.None, nil
	}
}

func builtinLog(logger zerolog.Logger) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var msg string
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "msg", &msg); err != nil {
			return nil, err
		}
		logger.Info().Str("source", "script").Msg(msg)
		return starlark.None, nil
	}
}

// dedent removes the indentation shared by all non-blank lines, so scripts
// can be indented along with the surrounding markup.
func dedent(script string) string {
	lines := strings.Split(strings.ReplaceAll(script, "\r\n", "\n"), "\n")

	prefix := ""
	first := true
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		switch {
		case first:
			prefix, first = indent, false
		default:
			for !strings.HasPrefix(indent, prefix) {
				prefix = prefix[:len(prefix)-1]
			}
		}
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = ""
			continue
		}
		lines[i] = strings.TrimPrefix(line, prefix)
	}
	return strings.Join(lines, "\n")
}
