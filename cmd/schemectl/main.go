// Package main содержит утилиту schemectl для проверки каталога программ и анкет без запуска сервера.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
