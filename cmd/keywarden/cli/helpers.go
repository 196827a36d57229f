package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/keywarden/keywarden/internal/config"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// KEYWARDEN_DATA_DIR env var, or ~/.keywarden as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("KEYWARDEN_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return home + "/.keywarden"
}

// openKeyStore opens the key store. A non-sqlite backend can be selected via
// the store.driver and store.dsn config values; the default is an embedded
// SQLite database under the data dir.
func openKeyStore() (*config.Store, error) {
	driver := viper.GetString("store.driver")
	if driver == "" || driver == "sqlite" {
		return config.NewStore(resolveDataDir())
	}
	dsn := viper.GetString("store.dsn")
	if dsn == "" {
		return nil, fmt.Errorf("store.dsn is required for driver %q", driver)
	}
	return config.Open(driver, dsn)
}

// confirm asks a yes/no question on the terminal. Non-interactive sessions
// (stdin not a TTY) refuse, so scripts must pass --force explicitly.
func confirm(prompt string) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "stdin is not a terminal; use --force to skip confirmation")
		return false
	}

	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
