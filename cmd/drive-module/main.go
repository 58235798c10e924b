// Точка входа Drive Module — выдача файлов drive по HTTP.
// Без подкоманды запускает сервер (serve). Операторские подкоманды:
// migrate, url, put, version.
package main

import (
	"fmt"
	"os"
)

func main() {
	root := newRootCommand()
	root.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newURLCommand(),
		newPutCommand(),
		newVersionCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
