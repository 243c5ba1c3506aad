// Command totpkey prints a fresh base64 master key for TWOFACTOR_MASTER_KEY.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dmitrymomot/twofactor/pkg/logger"
	"github.com/dmitrymomot/twofactor/pkg/secrets"
)

func main() {
	key, err := secrets.GenerateEncodedKey()
	if err != nil {
		slog.Error("failed to generate master key", logger.Error(err))
		os.Exit(1)
	}
	fmt.Println(key)
}
