package httpapi

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"forged/pkg/types"
)

// Request bounds. Dimensions must satisfy the image model's latent grid, so
// they are also forced to multiples of 8.
const (
	promptMinLen = 3
	promptMaxLen = 2000
	dimMin       = 512
	dimMax       = 2048
	stepsMin     = 10
	stepsMax     = 100

	defaultWidth  = 1024
	defaultHeight = 1024
	defaultSteps  = 25
)

func validatePrompt(prompt string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(prompt))
	if n < promptMinLen || n > promptMaxLen {
		return fmt.Errorf("prompt must be %d to %d characters", promptMinLen, promptMaxLen)
	}
	return nil
}

func validateDim(name string, v int) error {
	if v < dimMin || v > dimMax {
		return fmt.Errorf("%s must be between %d and %d", name, dimMin, dimMax)
	}
	if v%8 != 0 {
		return fmt.Errorf("%s must be a multiple of 8", name)
	}
	return nil
}

func validateSteps(v int) error {
	if v < stepsMin || v > stepsMax {
		return fmt.Errorf("steps must be between %d and %d", stepsMin, stepsMax)
	}
	return nil
}

// validateImageRequest fills defaults and checks bounds in place.
func validateImageRequest(req *types.GenerateImageRequest) error {
	if err := validatePrompt(req.Prompt); err != nil {
		return err
	}
	if req.Width == 0 {
		req.Width = defaultWidth
	}
	if req.Height == 0 {
		req.Height = defaultHeight
	}
	if req.Steps == 0 {
		req.Steps = defaultSteps
	}
	if err := validateDim("width", req.Width); err != nil {
		return err
	}
	if err := validateDim("height", req.Height); err != nil {
		return err
	}
	return validateSteps(req.Steps)
}

// validatePipelineRequest fills defaults and checks bounds in place.
func validatePipelineRequest(req *types.GeneratePipelineRequest) error {
	if err := validatePrompt(req.Prompt); err != nil {
		return err
	}
	if req.Steps == 0 {
		req.Steps = defaultSteps
	}
	return validateSteps(req.Steps)
}
