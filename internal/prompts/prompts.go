// Package prompts assembles the conversations sent to the language model.
package prompts

import (
	"strconv"
	"strings"

	"github.com/hpungsan/testsmith/internal/llm"
)

const fence = "```"

// Assistant is the system prompt of the general test assistant (atr).
const Assistant = `You are a helpful assistant and an expert automation test engineer specializing in Playwright with TypeScript and Java Selenium.
Your expertise includes:
- Creating automation test cases with enterprise automation frameworks for Playwright with TypeScript and Java Selenium.
- You can only provide information about automation related queries and help the user create automation test cases.
- You can look up test execution reports, results and history, and which test cases are already automated.
- Playwright API test cases can be created with the "playwright-api-test-creator" command.`

// APICreator is the system prompt of the playwright-api-test-creator command.
const APICreator = `You are a helpful assistant and an expert automation test engineer specializing in Playwright with TypeScript.
Your expertise includes:
- Creating maintainable Page Object Models for API testing
- Writing clean and efficient test cases
- Implementing robust API test frameworks with proper authentication
- Setting up test fixtures and data management patterns
- Writing tests with proper separation of concerns
- Generating production-ready automation tests with detailed comments explaining the approach. Focus on maintainability, readability, and robustness. Include proper error handling and reporting.
- Providing clear and concise explanations for each step of the process.
- Providing necessary comments.
- Providing a summary of the code at the end.
- If you are unsure about something, ask clarifying questions before proceeding.
- If you need to make assumptions, clearly state them in your response.`

// Expert is used when no command is given.
const Expert = `You are an expert automation test engineer specializing in Playwright with TypeScript.
Your expertise includes:
- Creating maintainable Page Object Models for web UI testing
- Implementing robust API test frameworks with proper authentication
- Setting up test fixtures and data management patterns
- Implementing reporting and CI/CD integration
- Writing tests with proper separation of concerns

Generate production-ready automation tests with detailed comments explaining the approach.
Focus on maintainability, readability, and robustness. Include proper error handling and reporting.`

// Enhancer rewrites the contents of an editor buffer into a test.
const Enhancer = `You are an expert automation test engineer specializing in Playwright.
Analyze the existing code or request and generate a production-ready automation test.

If existing code is present:
- Enhance it with better patterns and practices
- Add proper error handling and reporting
- Improve selector strategies (prefer data-testid attributes)
- Add detailed comments
- Implement proper test setup and teardown

If no code exists:
- Create a well-structured test based on the last request
- Use Page Object Model for UI tests
- Implement proper test fixtures

IMPORTANT: Output ONLY executable code without markdown formatting or additional explanations.`

// EmptyBuffer replaces an empty buffer in the enhancer conversation.
const EmptyBuffer = "Create a new Playwright test"

const apiTemplate = `
// Required imports
import { test, expect } from '@playwright/test';
// Any additional imports

// Test fixtures and setup (if needed)

test.describe('Feature: [derived from user query]', () => {
    // Your test implementation here
});`

const webTemplate = `
// Required imports
import { test, expect } from '@playwright/test';
// Any additional imports

// Page Object class (if needed)
class PageName {
    // Page object implementation
}

// Test fixtures and setup (if needed)

test.describe('Feature: [derived from user query]', () => {
    // Your test implementation here
});`

var apiRules = []string{
	"Use TypeScript and Playwright's test framework",
	"Include all necessary imports",
	"Include proper setup and teardown",
	"Add comprehensive assertions",
	"Include error handling",
	"Add detailed comments explaining the test flow",
}

var webRules = []string{
	"Use TypeScript and Playwright's test framework",
	"Use Page Object Model pattern",
	"Include all necessary imports",
	"Include proper setup and teardown",
	"Use data-testid for selectors when possible",
	"Add comprehensive assertions",
	"Include error handling",
	"Add detailed comments explaining the test flow",
}

// APITest builds the API test generation conversation. targetPath may be empty.
func APITest(query, targetPath string) []llm.Message {
	return []llm.Message{llm.User(testPrompt("API", query, targetPath, apiRules, apiTemplate))}
}

// WebTest builds the web UI test generation conversation.
func WebTest(query, targetPath string) []llm.Message {
	return []llm.Message{llm.User(testPrompt("Web UI", query, targetPath, webRules, webTemplate))}
}

// ForKind returns APITest or WebTest.
func ForKind(kind, query, targetPath string) []llm.Message {
	if kind == "web" {
		return WebTest(query, targetPath)
	}
	return APITest(query, targetPath)
}

func testPrompt(label, query, targetPath string, rules []string, template string) string {
	var b strings.Builder
	b.WriteString("Generate a complete Playwright " + label + " test case for the following requirement:\n")
	b.WriteString(query + "\n")
	if targetPath != "" {
		b.WriteString("\nTarget file: " + targetPath + "\n")
		b.WriteString("Ensure the test integrates well with existing tests in the file.\n")
	}
	b.WriteString("\nWrite ONLY the test code following these rules:\n")
	for i, r := range rules {
		b.WriteString(strconv.Itoa(i+1) + ". " + r + "\n")
	}
	b.WriteString("\nStructure the test following this pattern:\n")
	b.WriteString(fence + "typescript\n" + template + "\n" + fence + "\n")
	b.WriteString("\nIMPORTANT: Output ONLY the executable test code, no explanations outside the code comments.")
	return b.String()
}

// Play builds the demonstration test conversation.
func Play(query string) []llm.Message {
	return []llm.Message{llm.User(`You are an automated test generator specialized in Playwright with TypeScript.
Create a simple yet comprehensive demonstration test that showcases key features of Playwright.
Include detailed comments explaining each part of the test.
The example should be educational for someone new to Playwright testing.

Some concepts to include:
- Browser and page setup
- Navigation
- Element selection and interaction
- Assertions
- Screenshots

Make the test practical, showing a real-world scenario that's easy to understand.
If the user has a specific request, adapt your sample to address it.

User request (if any): ` + query)}
}

// Conversation builds a chat turn: system prompt, previous assistant
// replies in order, then the user's prompt.
func Conversation(system string, history []string, query string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.System(system))
	for _, h := range history {
		msgs = append(msgs, llm.Assistant(h))
	}
	return append(msgs, llm.User(query))
}

// Enhance builds the editor command conversation for the current buffer text.
func Enhance(bufferText string) []llm.Message {
	if strings.TrimSpace(bufferText) == "" {
		bufferText = EmptyBuffer
	}
	return []llm.Message{llm.System(Enhancer), llm.User(bufferText)}
}
