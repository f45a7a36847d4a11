// Command dnncompile lowers a quantized CNN graph description into a
// packed 32-bit instruction stream for a systolic-array FPGA accelerator
// (§6). It replaces the teacher's single-binary gocnn-inference/
// gocnn-benchmark split with one multi-command cobra binary, in the idiom
// CWBudde-go-pocket-tts's pockettts command tree uses.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
