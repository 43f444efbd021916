//go:build js && wasm

package main

import "github.com/flatterer/web/internal/ui/wasm"

func main() {
	wasm.RunApp()
}
