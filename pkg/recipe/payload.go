package recipe

import (
	"fmt"

	"github.com/beevik/etree"
)

// MarshalStep serializes a step payload for storage in the step queue.
func MarshalStep(step *etree.Element) (string, error) {
	if step == nil {
		return "", fmt.Errorf("step payload is nil")
	}

	doc := etree.NewDocument()
	doc.SetRoot(step.Copy())

	text, err := doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("failed to serialize step payload: %w", err)
	}
	return text, nil
}

// UnmarshalStep restores a step payload serialized by MarshalStep.
func UnmarshalStep(text string) (*etree.Element, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.PreserveCData = true
	if err := doc.ReadFromString(text); err != nil {
		return nil, fmt.Errorf("failed to read step payload: %w", err)
	}

	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("step payload has no element")
	}
	return root, nil
}
