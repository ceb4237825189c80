package cli

import (
	"fmt"

	"github.com/deepnoodle-ai/phoenix/plan"
	"github.com/deepnoodle-ai/phoenix/run"
)

// runFormatter prints run progress to stdout.
type runFormatter struct{}

func (f *runFormatter) PrintStepStart(stepID, action string) {
	fmt.Printf("%s %s %s\n", stepStyle.Sprintf("[%s]", stepID), arrow, action)
}

func (f *runFormatter) PrintStepResult(result *plan.StepResult) {
	if result.Success {
		fmt.Printf("%s %s %s\n",
			stepStyle.Sprintf("[%s]", result.StepID),
			outputStyle.Sprint(checkmark),
			result.Result)
		return
	}
	fmt.Printf("%s %s %s\n",
		stepStyle.Sprintf("[%s]", result.StepID),
		errorStyle.Sprint(xmark),
		result.Result)
	if result.ErrorKind != "" {
		fmt.Printf("    %s\n", mutedStyle.Sprintf("error kind: %s", result.ErrorKind))
	}
}

func (f *runFormatter) PrintRecovery(stepID string, action run.Action, reason string) {
	fmt.Printf("%s %s %s\n",
		stepStyle.Sprintf("[%s]", stepID),
		warningStyle.Sprintf("%s %s", bullet, action),
		mutedStyle.Sprint(reason))
}
