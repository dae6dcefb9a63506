package claude

// DefaultPermissions returns the allow rules written into a fresh settings
// file: the package-manager and git commands the browser-automation task
// relies on, plus the playwright MCP browser tools it drives.
func DefaultPermissions() []string {
	return []string{
		`Bash(npm install:*)`,
		`Bash(npx:*)`,
		`Bash(mkdir:*)`,
		`Bash(npm test:*)`,
		`Bash(npm run test:debug:*)`,
		`Bash(npm run test:headed:*)`,
		`Bash(npm run test:report:*)`,
		`Bash(node:*)`,
		`Bash(timeout 60s npm run test:visual:headed)`,
		`Bash(git init:*)`,
		`Bash(git add:*)`,
		`Bash(git commit:*)`,
		`Bash(git checkout:*)`,
		`Bash(rm:*)`,
		`WebFetch(domain:)`,
		`Bash(find:*)`,
		`Bash(ls:*)`,
		`Bash(export:*)`,
		`Bash(open:*)`,

		// playwright MCP browser tools
		`mcp__playwright__browser_navigate`,
		`mcp__playwright__browser_click`,
		`mcp__playwright__browser_type`,
		`mcp__playwright__browser_snapshot`,
		`mcp__playwright__browser_select_option`,
		`mcp__playwright__browser_take_screenshot`,
	}
}
