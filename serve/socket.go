package serve

import (
	"fmt"
	"os"
	"path/filepath"
)

// SocketPath returns the daemon socket location.
// Resolution order: $ZSH_AI_CMD_SOCKET > $XDG_RUNTIME_DIR/zsh-ai-cmd.sock > /tmp/zsh-ai-cmd-<uid>.sock
func SocketPath() string {
	if path := os.Getenv("ZSH_AI_CMD_SOCKET"); path != "" {
		return path
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "zsh-ai-cmd.sock")
	}
	return fmt.Sprintf("/tmp/zsh-ai-cmd-%d.sock", os.Getuid())
}
