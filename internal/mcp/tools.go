package mcp

import "github.com/mark3labs/mcp-go/mcp"

var extractToolDef = mcp.NewTool("testgen_extract",
	mcp.WithDescription("Extract Playwright test code from a model reply. Returns the first typescript fenced block, or the whole reply with fence markers stripped, with the default import prepended when the code imports nothing."),
	mcp.WithString("text", mcp.Required(), mcp.Description("Complete model reply")),
	mcp.WithArray("fence_tags", mcp.WithStringItems(), mcp.Description("Fence language tags that mark test code (default: typescript, ts)")),
	mcp.WithBoolean("skip_import", mcp.Description("Do not prepend the default import line")),
)

var locateToolDef = mcp.NewTool("testgen_locate",
	mcp.WithDescription("Pick a collision-free test file path inside the workspace and create it empty. Ambiguous placement is settled by create_dir and directory instead of asking."),
	mcp.WithString("kind", mcp.Required(), mcp.Enum("api", "web"), mcp.Description("Test kind")),
	mcp.WithString("prompt", mcp.Required(), mcp.Description("User prompt the file name is derived from")),
	mcp.WithArray("roots", mcp.WithStringItems(), mcp.Description("Absolute workspace root directories, in priority order")),
	mcp.WithBoolean("create_dir", mcp.Description("Create <first root>/tests/<kind> when no test directory exists")),
	mcp.WithString("directory", mcp.Description("Directory to use when several roots have a test directory (absolute, or a path suffix such as e2e)")),
)

var nameToolDef = mcp.NewTool("testgen_name",
	mcp.WithDescription("Derive the test file name for a prompt without touching the filesystem."),
	mcp.WithString("prompt", mcp.Required(), mcp.Description("User prompt")),
	mcp.WithString("kind", mcp.Required(), mcp.Enum("api", "web"), mcp.Description("Test kind")),
)

var listToolDef = mcp.NewTool("history_list",
	mcp.WithDescription("List recorded test generations, newest first, without their code."),
	mcp.WithString("kind", mcp.Description("Filter by kind (api or web)")),
	mcp.WithString("status", mcp.Enum("written", "displayed", "failed"), mcp.Description("Filter by outcome")),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
)

var fetchToolDef = mcp.NewTool("history_fetch",
	mcp.WithDescription("Fetch one recorded generation with its code, by id or the most recent one."),
	mcp.WithString("id", mcp.Description("Generation id")),
	mcp.WithBoolean("latest", mcp.Description("Fetch the most recent generation instead of by id")),
	mcp.WithString("kind", mcp.Description("Narrows latest to api or web")),
)
