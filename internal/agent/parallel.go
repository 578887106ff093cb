package agent

import "github.com/loomrun/loom/pkg/models"

// parallelSafeTools is the allowlist of read-only tools that may execute
// concurrently within a single batch. A batch containing any tool off
// this list runs sequentially: mutating tools can race each other and
// the filesystem.
var parallelSafeTools = map[string]bool{
	"http_fetch":       true,
	"web_fetch":        true,
	"web_search":       true,
	"file_read":        true,
	"read_file":        true,
	"file_list":        true,
	"file_find":        true,
	"file_grep":        true,
	"memory_search":    true,
	"memory_list":      true,
	"mesh_peers":       true,
	"mesh_status":      true,
	"goal_list":        true,
	"process_list":     true,
	"process_output":   true,
	"process":          true,
	"terminal_view":    true,
	"sub_agent_status": true,
	"sessions_list":    true,
	"sessions_history": true,
	"session_status":   true,
	"job_status":       true,
	"job_list":         true,
	"cron_list":        true,
	"models":           true,
}

// AllParallelSafe reports whether every call in the batch is on the
// read-only allowlist.
func AllParallelSafe(calls []models.ToolCall) bool {
	for _, tc := range calls {
		if !parallelSafeTools[tc.Name] {
			return false
		}
	}
	return true
}
