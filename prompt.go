package mathchat

import "strings"

// problemPlaceholder is replaced with the user's literal problem text.
const problemPlaceholder = "{{problem}}"

// DefaultPromptTemplate instructs the model to answer with a single
// black-and-white solution image.
const DefaultPromptTemplate = `You are a math expert. Your task is to solve a math problem and present the solution as a single, clear, visually appealing image.

Design Requirements:
- Style: Minimalist, professional, high-contrast.
- Color Scheme: Black and White (grayscale is okay for shading).
- Background: White.
- Text: Dark black/gray, clean legible font.

Content:
1. The original problem, clearly stated.
2. A step-by-step breakdown of the solution.
3. The final answer, boxed or highlighted.

The entire explanation must be contained within this single image. Do not output any text response, only the image.

The user's problem is: "` + problemPlaceholder + `"`

// BuildPrompt interpolates the problem text into the template.
// A template without the placeholder gets the problem appended.
func BuildPrompt(template, problem string) string {
	if template == "" {
		template = DefaultPromptTemplate
	}
	if !strings.Contains(template, problemPlaceholder) {
		return template + "\n\n" + problem
	}
	return strings.Replace(template, problemPlaceholder, problem, 1)
}
