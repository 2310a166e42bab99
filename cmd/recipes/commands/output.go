package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gosuri/uitable"

	"github.com/openfroyo/recipes/pkg/recipe"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B"))
)

// column pads s to width, measuring only the visible characters.
func column(s string, width int) string {
	return lipgloss.NewStyle().Width(width).Render(s)
}

func statusText(status recipe.ExecutionStatus) string {
	switch status {
	case recipe.ExecutionStatusSuccess:
		return successStyle.Render(string(status))
	case recipe.ExecutionStatusFail:
		return failStyle.Render(string(status))
	case recipe.ExecutionStatusCancelled:
		return mutedStyle.Render(string(status))
	default:
		return pendingStyle.Render(string(status))
	}
}

func stepOutcome(step recipe.StepResultRecord) string {
	switch {
	case !step.IsCompleted:
		return pendingStyle.Render("pending")
	case step.IsSuccessful:
		return successStyle.Render("done")
	default:
		return failStyle.Render("failed")
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return mutedStyle.Render("-")
	}
	return t.Local().Format(time.DateTime)
}

// printResult prints the step results of an execution.
func printResult(result *recipe.ExecutionResult) {
	fmt.Println(headerStyle.Render("Execution " + result.ExecutionID))
	for _, step := range result.Steps {
		line := column(strconv.Itoa(step.Position), 4) +
			column(step.StepName, 24) +
			column(stepOutcome(step), 10) +
			formatTime(step.CompletedAt)
		fmt.Println(line)
		if step.ErrorMessage != nil {
			fmt.Println(column("", 4) + failStyle.Render(*step.ErrorMessage))
		}
	}

	switch {
	case result.IsSuccessful():
		fmt.Println(successStyle.Render("completed successfully"))
	case result.IsCompleted():
		fmt.Println(failStyle.Render("completed with failures"))
	default:
		fmt.Println(pendingStyle.Render("in progress"))
	}
}

// printExecutions prints one row per execution.
func printExecutions(executions []*recipe.Execution) {
	table := uitable.New()
	table.MaxColWidth = 60
	table.AddRow("ID", "RECIPE", "STATUS", "STARTED", "COMPLETED")
	for _, exec := range executions {
		completed := "-"
		if exec.CompletedAt != nil {
			completed = exec.CompletedAt.Local().Format(time.DateTime)
		}
		table.AddRow(exec.ID, displayName(exec.RecipeName), exec.Status,
			exec.StartedAt.Local().Format(time.DateTime), completed)
	}
	fmt.Println(table)
}

// printExecution prints the status line of one execution.
func printExecution(exec *recipe.Execution) {
	fmt.Printf("%s %s (%s)\n", headerStyle.Render(displayName(exec.RecipeName)), statusText(exec.Status), exec.ID)
	if exec.Error != nil {
		fmt.Println(failStyle.Render(*exec.Error))
	}
}

// printJournal prints journal entries oldest first.
func printJournal(entries []*recipe.JournalEntry) {
	for _, e := range entries {
		step := ""
		if e.Position != nil {
			step = fmt.Sprintf("%d:%s", *e.Position, e.StepName)
		}
		ts := e.Timestamp
		fmt.Println(mutedStyle.Render(formatTime(&ts)) + " " +
			column(string(e.Type), 20) +
			column(step, 24) +
			e.Message)
	}
}
